package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as a human-readable
// summary to w. This powers "config show", giving users visibility into the
// effective values after all four override layers (defaults -> file -> env
// -> CLI) have been applied.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")
	ew.printf("vault_dir       = %q\n", r.VaultDir)
	ew.printf("root_deck       = %q\n", r.RootDeck)
	ew.printf("deck_per_folder = %t\n", r.DeckPerFolder)
	ew.printf("note_type       = %q\n", r.NoteType)
	ew.printf("bridge_url      = %q\n", r.BridgeURL)

	if r.BridgeKey != "" {
		ew.printf("bridge_key      = (set)\n")
	}

	ew.printf("state_dir       = %q\n", r.StateDir)
	ew.printf("log_level       = %q\n", r.LogLevel)
	ew.printf("build_workers   = %d\n", r.BuildWorkers)
	ew.printf("media_workers   = %d\n", r.MediaWorkers)
	ew.printf("poll_interval   = %q\n", r.PollInterval)
	ew.printf("debounce        = %q\n", r.Debounce)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain printf
// calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
