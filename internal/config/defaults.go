package config

// Default values for configuration options. These are layer 0 of the
// four-layer override chain and work out of the box against a stock
// AnkiConnect install.
const (
	defaultRootDeck     = "Vault"
	defaultNoteType     = "Basic"
	defaultBridgeURL    = "http://127.0.0.1:8765"
	defaultLogLevel     = "info"
	defaultBuildWorkers = 4
	defaultMediaWorkers = 4
	defaultPollInterval = "5m"
	defaultDebounce     = "2s"

	labelDBFileName = "labels.db"
	lockFileName    = "ankimd.lock"
)

// DefaultConfig returns a Config populated with all default values. It is
// both the starting point for TOML decoding (unset fields retain defaults)
// and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		RootDeck:      defaultRootDeck,
		DeckPerFolder: true,
		NoteType:      defaultNoteType,
		BridgeURL:     defaultBridgeURL,
		LogLevel:      defaultLogLevel,
		BuildWorkers:  defaultBuildWorkers,
		MediaWorkers:  defaultMediaWorkers,
		PollInterval:  defaultPollInterval,
		Debounce:      defaultDebounce,
	}
}
