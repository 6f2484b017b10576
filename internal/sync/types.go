// Package sync implements the reconciliation engine: it builds the remote
// representation of every local card, diffs it against the remote store
// through the AnkiConnect bridge, and executes the resulting create,
// update, delete, and media-upload operations while maintaining the
// durable label → note-id map.
package sync

import (
	"context"
	"time"

	"github.com/tonimelisma/ankimd/internal/anki"
	"github.com/tonimelisma/ankimd/internal/render"
)

// RemoteRecord is the candidate remote representation of one local card,
// rebuilt from scratch every run.
type RemoteRecord struct {
	Label     string
	NoteID    int64 // 0 = not yet created remotely
	Deck      string
	Fields    map[string]string // {"Front": html, "Back": html}
	MediaRefs []render.MediaRef // in render order, front then back
}

// LabelEntry is one row of the label map.
type LabelEntry struct {
	Label  string `json:"label"`
	NoteID int64  `json:"note_id"`
}

// Partition is the four-way classification of all known records: a true
// partition over (local candidates) ∪ (label-map entries with no local
// card). Ordering within each set is stable.
type Partition struct {
	Create []RemoteRecord
	Update []RemoteRecord
	Delete []LabelEntry // no local record exists for these anymore
	Ignore []RemoteRecord

	// Cards holds, for every record in Update, the remote card ids reported
	// by the metadata fetch. Deck reassignment addresses cards, not notes.
	Cards map[int64][]int64
}

// MediaUpload is one media file queued for transfer.
type MediaUpload struct {
	Key  string
	Path string
}

// CardFailure is a structured per-card error surfaced in the report
// instead of aborting the batch.
type CardFailure struct {
	Label string `json:"label,omitempty"`
	Path  string `json:"path,omitempty"`
	Stage string `json:"stage"` // "render", "create", "update", "deck", "media"
	Err   string `json:"error"`
}

// Failure stages.
const (
	StageRender = "render"
	StageCreate = "create"
	StageUpdate = "update"
	StageDeck   = "deck"
	StageMedia  = "media"
)

// Report summarizes one sync run.
type Report struct {
	RunID    string        `json:"run_id"`
	DryRun   bool          `json:"dry_run,omitempty"`
	Scanned  int           `json:"scanned"`
	Skipped  int           `json:"skipped"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Ignored  int           `json:"ignored"`
	Deleted  int           `json:"deleted"`
	Uploaded int           `json:"uploaded"`
	Failures []CardFailure `json:"failures,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Bridge is the AnkiConnect surface the engine consumes. Defined at the
// consumer per "accept interfaces, return structs"; *anki.Client is the
// real implementation.
type Bridge interface {
	DeckNames(ctx context.Context) ([]string, error)
	CreateDeck(ctx context.Context, name string) error
	AddNotes(ctx context.Context, notes []anki.Note) ([]anki.AddResult, error)
	NotesInfo(ctx context.Context, ids []int64) ([]anki.NoteInfo, error)
	Multi(ctx context.Context, reqs []anki.Request) ([]anki.Result, error)
	MediaFileNames(ctx context.Context) ([]string, error)
	StoreMediaFile(ctx context.Context, name string, data []byte) error
	DeleteNotes(ctx context.Context, ids []int64) error
}

// LabelGetter is the read-only label map view the record builder needs.
type LabelGetter interface {
	Get(ctx context.Context, label string) (int64, bool, error)
}

// LabelMap is the narrow label map surface the orchestrator mutates. It is
// written strictly after the corresponding remote mutation is acknowledged,
// never speculatively, so it stays a truthful cache of remote state.
type LabelMap interface {
	LabelGetter
	Set(ctx context.Context, label string, noteID int64) error
	Remove(ctx context.Context, label string) error
	Entries(ctx context.Context) ([]LabelEntry, error)
}

// Renderer converts one field's markdown into HTML plus extracted media
// references. *render.Renderer is the real implementation.
type Renderer interface {
	Render(source, docDir string) (string, []render.MediaRef, error)
}
