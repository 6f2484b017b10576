package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ankimd/internal/anki"
	"github.com/tonimelisma/ankimd/internal/sync"
)

// errCheckFailed signals problems found by "check"; main() maps it to exit
// code 1 without the generic error banner.
var errCheckFailed = errors.New("label map check failed")

// Problem kinds reported by the audit.
const (
	problemVanished  = "note missing remotely"
	problemDuplicate = "note id mapped by multiple labels"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Audit the label map against Anki",
		Long: `Check every label map entry against Anki: report entries whose note no
longer exists remotely and note ids claimed by more than one label.

Read-only — the next sync run self-heals vanished notes by recreating them.
Exit code 1 if any problems are found.`,
		RunE: runCheck,
	}
}

// checkProblem is one audit finding.
type checkProblem struct {
	Label   string `json:"label"`
	NoteID  int64  `json:"note_id"`
	Problem string `json:"problem"`
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg

	dbPath := cfg.LabelDBPath()
	if dbPath == "" {
		return fmt.Errorf("cannot determine label database path")
	}

	// No database means no sync has ever run; nothing to audit.
	if _, err := os.Stat(dbPath); err != nil {
		cc.Statusf("Label map is empty (no sync has run yet)\n")
		return nil
	}

	store, err := sync.OpenLabelStore(dbPath, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Entries(cmd.Context())
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		cc.Statusf("Label map is empty\n")
		return nil
	}

	bridge := anki.New(cfg.BridgeURL, cfg.BridgeKey, cc.Logger)

	problems, err := auditEntries(cmd.Context(), bridge, entries)
	if err != nil {
		return err
	}

	if err := printCheck(cc, len(entries), problems); err != nil {
		return err
	}

	if len(problems) > 0 {
		return errCheckFailed
	}

	return nil
}

// auditEntries fetches remote metadata for every mapped note id in one bulk
// call and collects vanished notes and duplicate id claims.
func auditEntries(ctx context.Context, bridge *anki.Client, entries []sync.LabelEntry) ([]checkProblem, error) {
	ids := make([]int64, len(entries))
	for i := range entries {
		ids[i] = entries[i].NoteID
	}

	infos, err := bridge.NotesInfo(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching remote metadata: %w", err)
	}

	var problems []checkProblem

	// The unique index makes duplicates impossible through the store API;
	// this catches a database edited or restored by hand.
	claimed := make(map[int64]string, len(entries))

	for i, entry := range entries {
		if i < len(infos) && !infos[i].Found() {
			problems = append(problems, checkProblem{
				Label:   entry.Label,
				NoteID:  entry.NoteID,
				Problem: problemVanished,
			})
		}

		if first, dup := claimed[entry.NoteID]; dup {
			problems = append(problems, checkProblem{
				Label:   entry.Label,
				NoteID:  entry.NoteID,
				Problem: fmt.Sprintf("%s (also %q)", problemDuplicate, first),
			})

			continue
		}

		claimed[entry.NoteID] = entry.Label
	}

	return problems, nil
}

func printCheck(cc *CLIContext, total int, problems []checkProblem) error {
	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if err := enc.Encode(problems); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	if len(problems) == 0 {
		fmt.Printf("Checked %d entries, no problems found.\n", total)
		return nil
	}

	fmt.Printf("Checked %d entries, %d problems:\n\n", total, len(problems))

	headers := []string{"LABEL", "NOTE ID", "PROBLEM"}
	rows := make([][]string, len(problems))

	for i, p := range problems {
		rows[i] = []string{p.Label, fmt.Sprint(p.NoteID), p.Problem}
	}

	printTable(os.Stdout, headers, rows)

	return nil
}
