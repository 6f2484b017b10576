//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

// invokeBridge issues one raw AnkiConnect action. The e2e package cannot
// import internal/, so it speaks the wire protocol directly with stdlib.
func invokeBridge(t *testing.T, action string, params any, out any) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"action":  action,
		"version": 6,
		"params":  params,
	})
	if err != nil {
		t.Fatalf("marshaling %s request: %v", action, err)
	}

	resp, err := http.Post(bridgeURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("bridge %s: %v", action, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *string         `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding %s response: %v", action, err)
	}

	if envelope.Error != nil {
		t.Fatalf("bridge %s: %s", action, *envelope.Error)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			t.Fatalf("decoding %s result: %v", action, err)
		}
	}
}

// deleteNoteByLabelFields removes the note whose Front field matches the
// given text, simulating a user deleting it in Anki.
func deleteNoteByLabelFields(t *testing.T, frontText string) {
	t.Helper()

	var ids []int64
	invokeBridge(t, "findNotes", map[string]any{
		"query": fmt.Sprintf("deck:%s \"Front:*%s*\"", rootDeck, frontText),
	}, &ids)

	if len(ids) == 0 {
		t.Fatalf("no remote note found with front %q", frontText)
	}

	invokeBridge(t, "deleteNotes", map[string]any{"notes": ids}, nil)
}
