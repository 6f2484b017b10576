package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ankimd/internal/anki"
)

func newDecksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decks",
		Short: "List decks in Anki",
		Long:  "List the deck names currently present in Anki, sorted alphabetically.",
		RunE:  runDecks,
	}
}

func runDecks(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg

	bridge := anki.New(cfg.BridgeURL, cfg.BridgeKey, cc.Logger)

	names, err := bridge.DeckNames(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing decks: %w", err)
	}

	sort.Strings(names)

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if err := enc.Encode(names); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	for _, name := range names {
		fmt.Println(name)
	}

	return nil
}
