package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Worker count bounds. More than maxWorkers parallel renders or media reads
// gains nothing against a local HTTP bridge and risks fd exhaustion.
const (
	minWorkers = 1
	maxWorkers = 64
)

// minPollInterval guards against accidental hot-loop rescans in watch mode.
const minPollInterval = 10 * time.Second

// validLogLevels are the accepted log_level values.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks a Config for structural problems. It validates what can
// be checked without touching the filesystem or network; existence of the
// vault directory is checked by the commands that need it.
func Validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("invalid log_level %q (use debug, info, warn, or error)", cfg.LogLevel))
	}

	if err := validateBridgeURL(cfg.BridgeURL); err != nil {
		errs = append(errs, err)
	}

	if cfg.NoteType == "" {
		errs = append(errs, errors.New("note_type must not be empty"))
	}

	if cfg.BuildWorkers < minWorkers || cfg.BuildWorkers > maxWorkers {
		errs = append(errs, fmt.Errorf("build_workers must be between %d and %d, got %d",
			minWorkers, maxWorkers, cfg.BuildWorkers))
	}

	if cfg.MediaWorkers < minWorkers || cfg.MediaWorkers > maxWorkers {
		errs = append(errs, fmt.Errorf("media_workers must be between %d and %d, got %d",
			minWorkers, maxWorkers, cfg.MediaWorkers))
	}

	if err := validateDuration("poll_interval", cfg.PollInterval, minPollInterval); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("debounce", cfg.Debounce, 0); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// validateBridgeURL checks that the bridge URL parses and uses an HTTP
// scheme. AnkiConnect listens on plain HTTP locally; HTTPS is accepted for
// reverse-proxy setups.
func validateBridgeURL(raw string) error {
	if raw == "" {
		return errors.New("bridge_url must not be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid bridge_url %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("bridge_url %q must use http or https", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("bridge_url %q has no host", raw)
	}

	return nil
}

// validateDuration checks that a duration string parses and is at least min.
func validateDuration(key, value string, min time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}

	if d < min {
		return fmt.Errorf("%s %q below minimum %s", key, value, min)
	}

	return nil
}
