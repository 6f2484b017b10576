package anki

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// NoteOptions controls duplicate handling for created notes.
type NoteOptions struct {
	AllowDuplicate bool   `json:"allowDuplicate"`
	DuplicateScope string `json:"duplicateScope"`
}

// DefaultNoteOptions disallows duplicates within the note's own deck.
func DefaultNoteOptions() NoteOptions {
	return NoteOptions{AllowDuplicate: false, DuplicateScope: "deck"}
}

// Note is the payload for addNotes.
type Note struct {
	Deck    string            `json:"deckName"`
	Model   string            `json:"modelName"`
	Fields  map[string]string `json:"fields"`
	Options NoteOptions       `json:"options"`
}

// AddResult is the per-note outcome of a bulk addNotes call. Exactly one of
// NoteID and Err is meaningful.
type AddResult struct {
	NoteID int64
	Err    error
}

// FieldValue is one field of a remote note as reported by notesInfo.
type FieldValue struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// NoteInfo is the remote metadata for one note. A note that vanished
// remotely comes back as the zero NoteInfo; check Found before use.
type NoteInfo struct {
	NoteID int64                 `json:"noteId"`
	Model  string                `json:"modelName"`
	Fields map[string]FieldValue `json:"fields"`
	Cards  []int64               `json:"cards"`
}

// Found reports whether the remote store still has this note.
func (n *NoteInfo) Found() bool {
	return n.NoteID != 0
}

// Request is one sub-action inside a multi call.
type Request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

// Result is the per-item outcome of a multi call. Raw holds the sub-action
// result for callers that need it; Err is non-nil when the bridge reported
// a per-item error.
type Result struct {
	Raw json.RawMessage
	Err error
}

// Version performs the protocol handshake and returns the bridge's version.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	if err := c.invoke(ctx, "version", nil, &v); err != nil {
		return 0, err
	}

	if v < ProtocolVersion {
		return v, &BridgeError{
			Action:  "version",
			Message: fmt.Sprintf("bridge speaks version %d, need %d", v, ProtocolVersion),
			Err:     ErrVersion,
		}
	}

	return v, nil
}

// DeckNames returns the names of all remote decks.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.invoke(ctx, "deckNames", nil, &names); err != nil {
		return nil, err
	}

	return names, nil
}

// CreateDeck creates a deck (and any missing parents in a "::" hierarchy).
// Creating an existing deck is a no-op on the bridge side.
func (c *Client) CreateDeck(ctx context.Context, name string) error {
	params := struct {
		Deck string `json:"deck"`
	}{Deck: name}

	return c.invoke(ctx, "createDeck", params, nil)
}

// AddNotes creates notes in bulk. The response is positionally aligned with
// the input; a null id for one note becomes AddResult{Err: ErrNoteRejected}
// and never aborts the batch.
func (c *Client) AddNotes(ctx context.Context, notes []Note) ([]AddResult, error) {
	params := struct {
		Notes []Note `json:"notes"`
	}{Notes: notes}

	var ids []*int64
	if err := c.invoke(ctx, "addNotes", params, &ids); err != nil {
		return nil, err
	}

	if len(ids) != len(notes) {
		return nil, &BridgeError{
			Action:  "addNotes",
			Message: fmt.Sprintf("got %d results for %d notes", len(ids), len(notes)),
			Err:     ErrUnreachable,
		}
	}

	results := make([]AddResult, len(ids))
	for i, id := range ids {
		if id == nil || *id == 0 {
			results[i] = AddResult{Err: ErrNoteRejected}
			continue
		}

		results[i] = AddResult{NoteID: *id}
	}

	return results, nil
}

// NotesInfo fetches remote metadata for the given note ids in one bulk
// call. The response is positionally aligned; a vanished note yields the
// zero NoteInfo at its position.
func (c *Client) NotesInfo(ctx context.Context, ids []int64) ([]NoteInfo, error) {
	params := struct {
		Notes []int64 `json:"notes"`
	}{Notes: ids}

	var infos []NoteInfo
	if err := c.invoke(ctx, "notesInfo", params, &infos); err != nil {
		return nil, err
	}

	if len(infos) != len(ids) {
		return nil, &BridgeError{
			Action:  "notesInfo",
			Message: fmt.Sprintf("got %d results for %d ids", len(infos), len(ids)),
			Err:     ErrUnreachable,
		}
	}

	return infos, nil
}

// UpdateNoteFields rewrites the fields of one existing note.
func (c *Client) UpdateNoteFields(ctx context.Context, id int64, fields map[string]string) error {
	return c.invoke(ctx, "updateNoteFields", updateFieldsParams(id, fields), nil)
}

// Multi executes several sub-actions in one round trip. Each element of the
// response is decoded independently; a per-item error or null result never
// aborts the batch.
func (c *Client) Multi(ctx context.Context, reqs []Request) ([]Result, error) {
	params := struct {
		Actions []Request `json:"actions"`
	}{Actions: reqs}

	var raw []response
	if err := c.invoke(ctx, "multi", params, &raw); err != nil {
		return nil, err
	}

	if len(raw) != len(reqs) {
		return nil, &BridgeError{
			Action:  "multi",
			Message: fmt.Sprintf("got %d results for %d actions", len(raw), len(reqs)),
			Err:     ErrUnreachable,
		}
	}

	results := make([]Result, len(raw))
	for i, r := range raw {
		results[i] = Result{Raw: r.Result}

		if r.Error != nil && *r.Error != "" {
			results[i].Err = &BridgeError{
				Action:  reqs[i].Action,
				Message: *r.Error,
				Err:     ErrAction,
			}
		}
	}

	return results, nil
}

// UpdateFieldsRequest builds a multi sub-request for updateNoteFields.
func UpdateFieldsRequest(id int64, fields map[string]string) Request {
	return Request{
		Action:  "updateNoteFields",
		Version: ProtocolVersion,
		Params:  updateFieldsParams(id, fields),
	}
}

// ChangeDeckRequest builds a multi sub-request moving the given cards to a
// deck. The bridge addresses deck membership by card id, not note id.
func ChangeDeckRequest(cardIDs []int64, deck string) Request {
	return Request{
		Action:  "changeDeck",
		Version: ProtocolVersion,
		Params: struct {
			Cards []int64 `json:"cards"`
			Deck  string  `json:"deck"`
		}{Cards: cardIDs, Deck: deck},
	}
}

func updateFieldsParams(id int64, fields map[string]string) any {
	type noteUpdate struct {
		ID     int64             `json:"id"`
		Fields map[string]string `json:"fields"`
	}

	return struct {
		Note noteUpdate `json:"note"`
	}{Note: noteUpdate{ID: id, Fields: fields}}
}

// StoreMediaFile uploads one media file under the given name, replacing any
// existing file with that name. Data is base64-encoded for the JSON
// envelope.
func (c *Client) StoreMediaFile(ctx context.Context, name string, data []byte) error {
	params := struct {
		Filename string `json:"filename"`
		Data     string `json:"data"`
	}{Filename: name, Data: base64.StdEncoding.EncodeToString(data)}

	return c.invoke(ctx, "storeMediaFile", params, nil)
}

// MediaFileNames returns the names of all files in the remote media store.
func (c *Client) MediaFileNames(ctx context.Context) ([]string, error) {
	params := struct {
		Pattern string `json:"pattern"`
	}{Pattern: "*"}

	var names []string
	if err := c.invoke(ctx, "getMediaFilesNames", params, &names); err != nil {
		return nil, err
	}

	return names, nil
}

// DeleteNotes removes the given notes (and their cards) in one bulk call.
func (c *Client) DeleteNotes(ctx context.Context, ids []int64) error {
	params := struct {
		Notes []int64 `json:"notes"`
	}{Notes: ids}

	return c.invoke(ctx, "deleteNotes", params, nil)
}
