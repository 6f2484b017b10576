package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/tonimelisma/ankimd/internal/anki"
	"github.com/tonimelisma/ankimd/internal/render"
)

// fakeLabels is an in-memory LabelMap that records mutation order.
type fakeLabels struct {
	mu  gosync.Mutex
	m   map[string]int64
	ops []string // "set:label=id" / "remove:label"

	getErr error
	setErr error
}

func newFakeLabels() *fakeLabels {
	return &fakeLabels{m: make(map[string]int64)}
}

func (f *fakeLabels) Get(_ context.Context, label string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return 0, false, f.getErr
	}

	id, ok := f.m[label]

	return id, ok, nil
}

func (f *fakeLabels) Set(_ context.Context, label string, noteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return f.setErr
	}

	f.m[label] = noteID
	f.ops = append(f.ops, fmt.Sprintf("set:%s=%d", label, noteID))

	return nil
}

func (f *fakeLabels) Remove(_ context.Context, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.m, label)
	f.ops = append(f.ops, "remove:"+label)

	return nil
}

func (f *fakeLabels) Entries(_ context.Context) ([]LabelEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Deterministic iteration order: sorted by label, matching LabelStore.
	labels := make([]string, 0, len(f.m))
	for label := range f.m {
		labels = append(labels, label)
	}

	for i := 1; i < len(labels); i++ {
		for j := i; j > 0 && labels[j] < labels[j-1]; j-- {
			labels[j], labels[j-1] = labels[j-1], labels[j]
		}
	}

	entries := make([]LabelEntry, len(labels))
	for i, label := range labels {
		entries[i] = LabelEntry{Label: label, NoteID: f.m[label]}
	}

	return entries, nil
}

// fakeBridge scripts bridge responses and records call order.
type fakeBridge struct {
	mu    gosync.Mutex
	calls []string

	deckNames    []string
	deckNamesErr error

	createDeckErr error

	addResults []anki.AddResult
	addErr     error

	notesInfos   []anki.NoteInfo
	notesInfoErr error

	// multiResults is a queue consumed per Multi call; when empty, every
	// item succeeds.
	multiResults [][]anki.Result
	multiErr     error

	mediaNames    []string
	mediaNamesErr error

	storeMediaErr error

	deleteErr error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{}
}

func (f *fakeBridge) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBridge) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeBridge) DeckNames(_ context.Context) ([]string, error) {
	f.record("deckNames")
	return f.deckNames, f.deckNamesErr
}

func (f *fakeBridge) CreateDeck(_ context.Context, name string) error {
	f.record("createDeck:" + name)
	return f.createDeckErr
}

func (f *fakeBridge) AddNotes(_ context.Context, notes []anki.Note) ([]anki.AddResult, error) {
	f.record(fmt.Sprintf("addNotes:%d", len(notes)))

	if f.addErr != nil {
		return nil, f.addErr
	}

	if f.addResults != nil {
		return f.addResults, nil
	}

	// Default: every note accepted with a synthetic id.
	results := make([]anki.AddResult, len(notes))
	for i := range notes {
		results[i] = anki.AddResult{NoteID: int64(9000 + i)}
	}

	return results, nil
}

func (f *fakeBridge) NotesInfo(_ context.Context, ids []int64) ([]anki.NoteInfo, error) {
	f.record(fmt.Sprintf("notesInfo:%v", ids))

	if f.notesInfoErr != nil {
		return nil, f.notesInfoErr
	}

	return f.notesInfos, nil
}

func (f *fakeBridge) Multi(_ context.Context, reqs []anki.Request) ([]anki.Result, error) {
	action := ""
	if len(reqs) > 0 {
		action = reqs[0].Action
	}

	f.record(fmt.Sprintf("multi:%s:%d", action, len(reqs)))

	if f.multiErr != nil {
		return nil, f.multiErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.multiResults) > 0 {
		results := f.multiResults[0]
		f.multiResults = f.multiResults[1:]

		return results, nil
	}

	return make([]anki.Result, len(reqs)), nil
}

func (f *fakeBridge) MediaFileNames(_ context.Context) ([]string, error) {
	f.record("mediaFileNames")
	return f.mediaNames, f.mediaNamesErr
}

func (f *fakeBridge) StoreMediaFile(_ context.Context, name string, _ []byte) error {
	f.record("storeMediaFile:" + name)
	return f.storeMediaErr
}

func (f *fakeBridge) DeleteNotes(_ context.Context, ids []int64) error {
	f.record(fmt.Sprintf("deleteNotes:%v", ids))
	return f.deleteErr
}

// fakeRenderer renders by wrapping the source in a paragraph tag; the
// optional refs func scripts media extraction.
type fakeRenderer struct {
	err  error
	refs func(source string) []render.MediaRef
}

func (f *fakeRenderer) Render(source, _ string) (string, []render.MediaRef, error) {
	if f.err != nil {
		return "", nil, f.err
	}

	var refs []render.MediaRef
	if f.refs != nil {
		refs = f.refs(source)
	}

	return "<p>" + source + "</p>", refs, nil
}
