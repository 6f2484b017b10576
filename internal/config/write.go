package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// starterTemplate is the commented config file written by "config init".
// Every key is present with its default so users can uncomment and edit.
const starterTemplate = `# ankimd configuration
# Synchronizes markdown study cards against Anki through AnkiConnect.

# Markdown vault to scan for cards (required for sync).
#vault_dir = "~/vault"

# Root deck for synced notes. Subdecks are derived from folders when
# deck_per_folder is enabled; "" puts folder decks at the top level.
#root_deck = "Vault"
#deck_per_folder = true

# Anki note type for created notes. Must have Front and Back fields.
#note_type = "Basic"

# AnkiConnect endpoint and optional API key.
#bridge_url = "http://127.0.0.1:8765"
#bridge_key = ""

# Where the label map database lives. Default: ~/.local/share/ankimd
#state_dir = ""

# debug, info, warn, or error.
#log_level = "info"

# Parallel workers for card rendering and media file reads.
#build_workers = 4
#media_workers = 4

# Watch mode: full-rescan safety interval and quiet period after changes.
#poll_interval = "5m"
#debounce = "2s"
`

// File permissions for created config artifacts. The config file may hold
// a bridge API key, so keep it user-only.
const (
	configDirPerm  = 0o700
	configFilePerm = 0o600
)

// WriteStarter writes the commented starter config to path, creating parent
// directories as needed. Refuses to overwrite an existing file.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(starterTemplate), configFilePerm); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
