// Package testutil provides shared test environment helpers for E2E tests.
// It depends only on stdlib so that E2E tests (which cannot import
// internal/) can use it.
package testutil

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// BridgeURLEnv names the variable that points E2E tests at a live
// AnkiConnect instance. Unset means the E2E suite skips.
const BridgeURLEnv = "ANKIMD_E2E_BRIDGE_URL"

// RootDeckEnv optionally overrides the throwaway deck the E2E suite creates
// its notes under.
const RootDeckEnv = "ANKIMD_E2E_ROOT_DECK"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, "\"'")

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// BridgeURL returns the configured E2E bridge endpoint, or "" when the
// suite should skip.
func BridgeURL() string {
	return os.Getenv(BridgeURLEnv)
}

// RootDeck returns the deck name the E2E suite works under.
func RootDeck() string {
	if deck := os.Getenv(RootDeckEnv); deck != "" {
		return deck
	}

	return "AnkimdE2E"
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
