package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ankimd/internal/anki"
	"github.com/tonimelisma/ankimd/internal/render"
	"github.com/tonimelisma/ankimd/internal/sync"
	"github.com/tonimelisma/ankimd/internal/vault"
)

func newSyncCmd() *cobra.Command {
	var (
		flagWatch  bool
		flagDryRun bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize vault cards with Anki",
		Long: `Scan the markdown vault for cards and reconcile them against Anki:
create new notes, update changed ones, delete notes whose cards were removed,
and upload referenced media.

Use --dry-run to preview what would happen without making changes.
Use --watch to keep running and re-sync on vault changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, flagWatch, flagDryRun)
		},
	}

	cmd.Flags().BoolVar(&flagWatch, "watch", false, "continuous sync on vault changes")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "preview sync actions without executing")

	return cmd
}

func runSync(cmd *cobra.Command, watch, dryRun bool) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg
	logger := cc.Logger

	if cfg.VaultDir == "" {
		return fmt.Errorf("vault_dir not configured — set it in the config file or via ANKIMD_VAULT_DIR")
	}

	if _, err := os.Stat(cfg.VaultDir); err != nil {
		return fmt.Errorf("vault directory %s: %w", cfg.VaultDir, err)
	}

	// Single-instance guard. Also creates the state directory, which the
	// label store needs before it can open its database.
	cleanup, err := writePIDFile(cfg.LockPath())
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(cmd.Context(), logger)

	bridge := anki.New(cfg.BridgeURL, cfg.BridgeKey, logger)

	// Handshake before touching any state: a stale or missing bridge should
	// fail fast with a clear message.
	bridgeVersion, err := bridge.Version(ctx)
	if err != nil {
		return fmt.Errorf("bridge handshake with %s: %w", cfg.BridgeURL, err)
	}

	logger.Debug("bridge handshake ok", "version", bridgeVersion)

	store, err := sync.OpenLabelStore(cfg.LabelDBPath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := sync.NewEngine(sync.EngineConfig{
		Bridge: bridge,
		Labels: store,
		Builder: sync.NewBuilder(store, render.New(), sync.BuildConfig{
			VaultDir:      cfg.VaultDir,
			RootDeck:      cfg.RootDeck,
			DeckPerFolder: cfg.DeckPerFolder,
			Workers:       cfg.BuildWorkers,
		}, logger),
		NoteType:     cfg.NoteType,
		Logger:       logger,
		DryRun:       dryRun,
		MediaWorkers: cfg.MediaWorkers,
	})

	scanner := vault.NewScanner(logger)

	runOnce := func(ctx context.Context) error {
		result, err := scanner.Scan(ctx, cfg.VaultDir)
		if err != nil {
			return err
		}

		report, err := engine.Run(ctx, result.Cards)
		if err != nil {
			return err
		}

		// Grammar issues (unlabeled cards, duplicate labels) skip their card
		// the same way render failures do.
		report.Skipped += len(result.Issues)

		for _, issue := range result.Issues {
			cc.Statusf("skipped %s:%d: %s\n", issue.Path, issue.Line, issue.Reason)
		}

		return printReport(os.Stdout, report, cc.Flags.JSON, isTTY(os.Stdout))
	}

	if err := runOnce(ctx); err != nil {
		return err
	}

	if !watch {
		return nil
	}

	cc.Statusf("Watching %s for changes (Ctrl-C to stop)\n", cfg.VaultDir)

	watcher := vault.NewWatcher(logger)

	err = watcher.Watch(ctx, cfg.VaultDir, cfg.Debounce, cfg.PollInterval, runOnce)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
