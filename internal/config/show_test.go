package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	t.Parallel()

	r := &Resolved{
		VaultDir:      "/v",
		RootDeck:      "Deck",
		DeckPerFolder: true,
		NoteType:      "Basic",
		BridgeURL:     "http://127.0.0.1:8765",
		BridgeKey:     "secret",
		StateDir:      "/state",
		LogLevel:      "info",
		BuildWorkers:  4,
		MediaWorkers:  4,
		PollInterval:  5 * time.Minute,
		Debounce:      2 * time.Second,
	}

	var sb strings.Builder
	require.NoError(t, RenderEffective(r, &sb))

	out := sb.String()
	assert.Contains(t, out, `vault_dir       = "/v"`)
	assert.Contains(t, out, `root_deck       = "Deck"`)
	assert.Contains(t, out, "deck_per_folder = true")
	assert.Contains(t, out, `poll_interval   = "5m0s"`)

	// The key value itself must never be printed.
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "bridge_key      = (set)")
}

func TestRenderEffective_OmitsUnsetKey(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	require.NoError(t, RenderEffective(&Resolved{}, &sb))
	assert.NotContains(t, sb.String(), "bridge_key")
}

func TestWriteStarter_RefusesOverwrite(t *testing.T) {
	path := writeTestConfig(t, "vault_dir = \"/v\"\n")

	err := WriteStarter(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestWriteStarter_CreatesParseableFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/sub/config.toml"

	require.NoError(t, WriteStarter(path))

	// The starter is all comments, so loading it must yield pure defaults.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
