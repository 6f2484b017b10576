package anki

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testWriter adapts t.Log to io.Writer so engine logs land in test output.
type testWriter struct {
	t *testing.T
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(&testWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// noSleep replaces the retry backoff so tests run instantly.
func noSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// newTestClient builds a client against the given handler with retries
// enabled but sleeps stubbed out.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.URL, "", testLogger(t), WithSleepFunc(noSleep))

	return c, srv
}

// decodeEnvelope parses the request body into a generic envelope for
// assertions on the wire format.
func decodeEnvelope(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	var env map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&env))

	return env
}

func TestInvoke_EnvelopeShape(t *testing.T) {
	t.Parallel()

	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeEnvelope(t, r)
		w.Write([]byte(`{"result": 6, "error": null}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "secret", testLogger(t), WithSleepFunc(noSleep))

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	assert.Equal(t, "version", got["action"])
	assert.Equal(t, float64(ProtocolVersion), got["version"])
	assert.Equal(t, "secret", got["key"])
}

func TestInvoke_OmitsEmptyKey(t *testing.T) {
	t.Parallel()

	var got map[string]any

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeEnvelope(t, r)
		w.Write([]byte(`{"result": ["Default"], "error": null}`))
	})

	_, err := c.DeckNames(context.Background())
	require.NoError(t, err)

	_, hasKey := got["key"]
	assert.False(t, hasKey, "empty API key must be omitted from the envelope")
}

func TestInvoke_RetriesServerErrorThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls int

	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Write([]byte(`{"result": 6, "error": null}`))
	})

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, v)
	assert.Equal(t, 3, calls)
}

func TestInvoke_UnreachableAfterRetries(t *testing.T) {
	t.Parallel()

	var calls int

	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Version(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, defaultMaxRetries+1, calls)

	var be *BridgeError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "version", be.Action)
	assert.Equal(t, http.StatusServiceUnavailable, be.StatusCode)
}

func TestInvoke_ActionErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls int

	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(`{"result": null, "error": "deck was not found: Nope"}`))
	})

	err := c.CreateDeck(context.Background(), "Nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAction)
	assert.Equal(t, 1, calls, "action errors must not be retried")
	assert.Contains(t, err.Error(), "deck was not found")
}

func TestInvoke_MalformedResponseIsUnreachable(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	})

	_, err := c.DeckNames(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestInvoke_ConnectionRefused(t *testing.T) {
	t.Parallel()

	// Port 1 is never listening.
	c := New("http://127.0.0.1:1", "", testLogger(t), WithSleepFunc(noSleep), WithMaxRetries(1))

	_, err := c.Version(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestVersion_TooOld(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"result": 4, "error": null}`))
	})

	v, err := c.Version(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersion)
	assert.Equal(t, 4, v)
}

func TestAddNotes_NullIDTolerated(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"result": [1496198395707, null, 1496198395708], "error": null}`))
	})

	notes := []Note{
		{Deck: "D", Model: "Basic", Fields: map[string]string{"Front": "a"}},
		{Deck: "D", Model: "Basic", Fields: map[string]string{"Front": "b"}},
		{Deck: "D", Model: "Basic", Fields: map[string]string{"Front": "c"}},
	}

	results, err := c.AddNotes(context.Background(), notes)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, int64(1496198395707), results[0].NoteID)
	assert.NoError(t, results[0].Err)

	assert.Zero(t, results[1].NoteID)
	assert.ErrorIs(t, results[1].Err, ErrNoteRejected)

	assert.Equal(t, int64(1496198395708), results[2].NoteID)
}

func TestAddNotes_LengthMismatchFatal(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"result": [1], "error": null}`))
	})

	_, err := c.AddNotes(context.Background(), make([]Note, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestNotesInfo_VanishedNoteIsZero(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"result": [
			{"noteId": 42, "modelName": "Basic",
			 "fields": {"Front": {"value": "<p>hi</p>", "order": 0}},
			 "cards": [421, 422]},
			{}
		], "error": null}`))
	})

	infos, err := c.NotesInfo(context.Background(), []int64{42, 43})
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.True(t, infos[0].Found())
	assert.Equal(t, "<p>hi</p>", infos[0].Fields["Front"].Value)
	assert.Equal(t, []int64{421, 422}, infos[0].Cards)

	assert.False(t, infos[1].Found(), "vanished note must report Found() == false")
}

func TestMulti_PerItemErrors(t *testing.T) {
	t.Parallel()

	var got map[string]any

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeEnvelope(t, r)
		w.Write([]byte(`{"result": [
			{"result": null, "error": null},
			{"result": null, "error": "note was not found: 99"}
		], "error": null}`))
	})

	reqs := []Request{
		UpdateFieldsRequest(42, map[string]string{"Front": "x"}),
		UpdateFieldsRequest(99, map[string]string{"Front": "y"}),
	}

	results, err := c.Multi(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.ErrorIs(t, results[1].Err, ErrAction)

	assert.Equal(t, "multi", got["action"])
}

func TestChangeDeckRequest_Shape(t *testing.T) {
	t.Parallel()

	req := ChangeDeckRequest([]int64{1, 2}, "Deck::a")
	assert.Equal(t, "changeDeck", req.Action)
	assert.Equal(t, ProtocolVersion, req.Version)

	payload, err := json.Marshal(req.Params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cards": [1, 2], "deck": "Deck::a"}`, string(payload))
}

func TestStoreMediaFile_Base64(t *testing.T) {
	t.Parallel()

	var got map[string]any

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeEnvelope(t, r)
		w.Write([]byte(`{"result": "img.png", "error": null}`))
	})

	err := c.StoreMediaFile(context.Background(), "img.png", []byte("hello"))
	require.NoError(t, err)

	params, ok := got["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "img.png", params["filename"])
	assert.Equal(t, "aGVsbG8=", params["data"])
}

func TestInvoke_ContextCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "", testLogger(t), WithSleepFunc(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := c.Version(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
