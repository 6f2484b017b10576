package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/ankimd/internal/render"
	"github.com/tonimelisma/ankimd/internal/vault"
)

func TestDeckName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		root      string
		perFolder bool
		cardPath  string
		want      string
	}{
		{"folders-enabled-nested", "Deck", true, "a/b/note.md", "Deck::a::b"},
		{"folders-enabled-root-doc", "Deck", true, "note.md", "Deck"},
		{"empty-root-with-folder", "", true, "a/note.md", "a"},
		{"empty-root-root-doc", "", true, "note.md", "Default"},
		{"folders-disabled", "Deck", false, "a/b/note.md", "Deck"},
		{"folders-disabled-empty-root", "", false, "a/note.md", "Default"},
		{"deep-nesting", "V", true, "x/y/z/w/n.md", "V::x::y::z::w"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, deckName(tt.root, tt.perFolder, tt.cardPath))
		})
	}
}

func TestBuild_PopulatesRecord(t *testing.T) {
	t.Parallel()

	labels := newFakeLabels()
	labels.m["known"] = 42

	b := NewBuilder(labels, &fakeRenderer{}, BuildConfig{
		VaultDir:      "/vault",
		RootDeck:      "Deck",
		DeckPerFolder: true,
		Workers:       2,
	}, testLogger(t))

	rec, err := b.Build(context.Background(), vault.Card{
		Label: "known",
		Front: "q",
		Back:  "a",
		Path:  "topic/note.md",
	})
	require.NoError(t, err)

	assert.Equal(t, "known", rec.Label)
	assert.Equal(t, int64(42), rec.NoteID)
	assert.Equal(t, "Deck::topic", rec.Deck)
	assert.Equal(t, map[string]string{"Front": "<p>q</p>", "Back": "<p>a</p>"}, rec.Fields)
}

func TestBuild_UnmappedLabelIsNormal(t *testing.T) {
	t.Parallel()

	b := NewBuilder(newFakeLabels(), &fakeRenderer{}, BuildConfig{RootDeck: "D"}, testLogger(t))

	rec, err := b.Build(context.Background(), vault.Card{Label: "new", Path: "n.md"})
	require.NoError(t, err)
	assert.Zero(t, rec.NoteID)
}

func TestBuild_MediaRefsFrontThenBack(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{refs: func(source string) []render.MediaRef {
		if source == "front" {
			return []render.MediaRef{{Key: "f.png", Path: "/v/f.png"}}
		}

		return []render.MediaRef{{Key: "b.png", Path: "/v/b.png"}}
	}}

	b := NewBuilder(newFakeLabels(), r, BuildConfig{RootDeck: "D"}, testLogger(t))

	rec, err := b.Build(context.Background(), vault.Card{Label: "x", Front: "front", Back: "back", Path: "n.md"})
	require.NoError(t, err)

	require.Len(t, rec.MediaRefs, 2)
	assert.Equal(t, "f.png", rec.MediaRefs[0].Key)
	assert.Equal(t, "b.png", rec.MediaRefs[1].Key)
}

func TestBuildAll_PreservesInputOrder(t *testing.T) {
	t.Parallel()

	b := NewBuilder(newFakeLabels(), &fakeRenderer{}, BuildConfig{
		RootDeck: "D",
		Workers:  4,
	}, testLogger(t))

	cards := []vault.Card{
		{Label: "c1", Path: "a.md"},
		{Label: "c2", Path: "a.md"},
		{Label: "c3", Path: "a.md"},
		{Label: "c4", Path: "a.md"},
		{Label: "c5", Path: "a.md"},
	}

	records, failures := b.BuildAll(context.Background(), cards)
	require.Empty(t, failures)
	require.Len(t, records, 5)

	for i, rec := range records {
		assert.Equal(t, cards[i].Label, rec.Label)
	}
}

func TestBuildAll_RenderFailureSkipsCardOnly(t *testing.T) {
	t.Parallel()

	renderErr := errors.New("bad markdown")

	// Fail only the card whose front is "boom".
	r := &fakeRenderer{}
	b := NewBuilder(newFakeLabels(), &failingRenderer{inner: r, failOn: "boom", err: renderErr},
		BuildConfig{RootDeck: "D", Workers: 2}, testLogger(t))

	cards := []vault.Card{
		{Label: "ok1", Front: "fine", Path: "a.md"},
		{Label: "bad", Front: "boom", Path: "a.md", Line: 7},
		{Label: "ok2", Front: "fine", Path: "b.md"},
	}

	records, failures := b.BuildAll(context.Background(), cards)

	require.Len(t, records, 2)
	assert.Equal(t, "ok1", records[0].Label)
	assert.Equal(t, "ok2", records[1].Label)

	require.Len(t, failures, 1)
	assert.Equal(t, "bad", failures[0].Label)
	assert.Equal(t, StageRender, failures[0].Stage)
	assert.Contains(t, failures[0].Err, "bad markdown")
}

// failingRenderer fails renders whose source matches failOn.
type failingRenderer struct {
	inner  Renderer
	failOn string
	err    error
}

func (f *failingRenderer) Render(source, docDir string) (string, []render.MediaRef, error) {
	if source == f.failOn {
		return "", nil, f.err
	}

	return f.inner.Render(source, docDir)
}
