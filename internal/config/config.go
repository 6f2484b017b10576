// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for ankimd. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import (
	"path/filepath"
	"time"
)

// Config is the configuration structure parsed from a TOML file. Fields left
// unset in the file keep their defaults because decoding starts from
// DefaultConfig().
type Config struct {
	VaultDir      string `toml:"vault_dir"`
	RootDeck      string `toml:"root_deck"`
	DeckPerFolder bool   `toml:"deck_per_folder"`
	NoteType      string `toml:"note_type"`
	BridgeURL     string `toml:"bridge_url"`
	BridgeKey     string `toml:"bridge_key"`
	StateDir      string `toml:"state_dir"`
	LogLevel      string `toml:"log_level"`
	BuildWorkers  int    `toml:"build_workers"`
	MediaWorkers  int    `toml:"media_workers"`
	PollInterval  string `toml:"poll_interval"`
	Debounce      string `toml:"debounce"`
}

// Resolved is the working configuration after all four override layers have
// been applied: paths expanded, durations parsed, every field usable as-is.
type Resolved struct {
	VaultDir      string        `json:"vault_dir"`
	RootDeck      string        `json:"root_deck"`
	DeckPerFolder bool          `json:"deck_per_folder"`
	NoteType      string        `json:"note_type"`
	BridgeURL     string        `json:"bridge_url"`
	BridgeKey     string        `json:"-"`
	StateDir      string        `json:"state_dir"`
	LogLevel      string        `json:"log_level"`
	BuildWorkers  int           `json:"build_workers"`
	MediaWorkers  int           `json:"media_workers"`
	PollInterval  time.Duration `json:"poll_interval"`
	Debounce      time.Duration `json:"debounce"`
}

// LabelDBPath returns the path of the label map database inside the state
// directory. Empty when the state directory could not be determined.
func (r *Resolved) LabelDBPath() string {
	if r.StateDir == "" {
		return ""
	}

	return filepath.Join(r.StateDir, labelDBFileName)
}

// LockPath returns the path of the single-instance lock file.
func (r *Resolved) LockPath() string {
	if r.StateDir == "" {
		return ""
	}

	return filepath.Join(r.StateDir, lockFileName)
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Command-local flags (--dry-run, --watch) go straight
// to their commands and never pass through here.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
}
