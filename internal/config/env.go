package config

import (
	"os"
	"strconv"
)

// Environment variable names for overrides.
const (
	EnvConfig        = "ANKIMD_CONFIG"
	EnvVaultDir      = "ANKIMD_VAULT_DIR"
	EnvRootDeck      = "ANKIMD_ROOT_DECK"
	EnvDeckPerFolder = "ANKIMD_DECK_PER_FOLDER"
	EnvNoteType      = "ANKIMD_NOTE_TYPE"
	EnvBridgeURL     = "ANKIMD_BRIDGE_URL"
	EnvBridgeKey     = "ANKIMD_BRIDGE_KEY"
	EnvStateDir      = "ANKIMD_STATE_DIR"
	EnvLogLevel      = "ANKIMD_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
// String fields use "" for "not set"; DeckPerFolder uses nil.
type EnvOverrides struct {
	ConfigPath    string
	VaultDir      string
	RootDeck      *string // pointer: empty string is a meaningful root deck
	DeckPerFolder *bool
	NoteType      string
	BridgeURL     string
	BridgeKey     string
	StateDir      string
	LogLevel      string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify any Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	ov := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		VaultDir:   os.Getenv(EnvVaultDir),
		NoteType:   os.Getenv(EnvNoteType),
		BridgeURL:  os.Getenv(EnvBridgeURL),
		BridgeKey:  os.Getenv(EnvBridgeKey),
		StateDir:   os.Getenv(EnvStateDir),
		LogLevel:   os.Getenv(EnvLogLevel),
	}

	if v, ok := os.LookupEnv(EnvRootDeck); ok {
		ov.RootDeck = &v
	}

	if v, ok := os.LookupEnv(EnvDeckPerFolder); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			ov.DeckPerFolder = &b
		}
	}

	return ov
}
