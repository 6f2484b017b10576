package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports the zero-config
// first-run experience against a local AnkiConnect with default settings.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain: defaults ->
// config file -> environment variables. The --config flag wins over the
// ANKIMD_CONFIG env var when both name a file; command-local flags like
// --dry-run are applied by their commands on top of the resolved config.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default.
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists).
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides.
	applyEnv(cfg, env)

	// 4. Parse and expand into the working form.
	return finalize(cfg)
}

// applyEnv overlays environment variable values onto cfg.
func applyEnv(cfg *Config, env EnvOverrides) {
	if env.VaultDir != "" {
		cfg.VaultDir = env.VaultDir
	}

	if env.RootDeck != nil {
		cfg.RootDeck = *env.RootDeck
	}

	if env.DeckPerFolder != nil {
		cfg.DeckPerFolder = *env.DeckPerFolder
	}

	if env.NoteType != "" {
		cfg.NoteType = env.NoteType
	}

	if env.BridgeURL != "" {
		cfg.BridgeURL = env.BridgeURL
	}

	if env.BridgeKey != "" {
		cfg.BridgeKey = env.BridgeKey
	}

	if env.StateDir != "" {
		cfg.StateDir = env.StateDir
	}

	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}
}

// finalize validates cfg, expands paths, and parses duration strings into
// the Resolved working form.
func finalize(cfg *Config) (*Resolved, error) {
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	stateDir := expandTilde(cfg.StateDir)
	if stateDir == "" {
		stateDir = DefaultDataDir()
	}

	// Durations were validated by Validate; parse errors cannot occur here.
	poll, _ := time.ParseDuration(cfg.PollInterval)
	debounce, _ := time.ParseDuration(cfg.Debounce)

	return &Resolved{
		VaultDir:      expandTilde(cfg.VaultDir),
		RootDeck:      cfg.RootDeck,
		DeckPerFolder: cfg.DeckPerFolder,
		NoteType:      cfg.NoteType,
		BridgeURL:     cfg.BridgeURL,
		BridgeKey:     cfg.BridgeKey,
		StateDir:      stateDir,
		LogLevel:      cfg.LogLevel,
		BuildWorkers:  cfg.BuildWorkers,
		MediaWorkers:  cfg.MediaWorkers,
		PollInterval:  poll,
		Debounce:      debounce,
	}, nil
}
