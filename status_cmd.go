package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ankimd/internal/anki"
	"github.com/tonimelisma/ankimd/internal/sync"
	"github.com/tonimelisma/ankimd/internal/vault"
)

// Bridge state strings for status display.
const (
	bridgeStateUnreachable = "unreachable"
	lastSyncedNever        = "never"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, label map, and bridge status",
		Long: `Display the effective configuration, label map size and last sync time,
bridge reachability, and vault card counts.

Works when the bridge is down — reports it as unreachable instead of failing.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runStatus,
	}
}

// statusInfo is the status snapshot, shaped for both JSON and text output.
type statusInfo struct {
	ConfigPath string `json:"config_path"`
	VaultDir   string `json:"vault_dir"`
	RootDeck   string `json:"root_deck"`
	NoteType   string `json:"note_type"`
	BridgeURL  string `json:"bridge_url"`

	Bridge     string `json:"bridge"`
	Labels     int    `json:"labels"`
	LastSynced string `json:"last_synced"`
	Files      int    `json:"files"`
	Cards      int    `json:"cards"`
	Issues     int    `json:"issues"`
	WatchPID   int    `json:"watch_pid,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	// Annotated command: resolve config here so a missing file still yields
	// a useful default-valued summary.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info := statusInfo{
		ConfigPath: effectiveConfigPath(cc.Flags.ConfigPath),
		VaultDir:   cfg.VaultDir,
		RootDeck:   cfg.RootDeck,
		NoteType:   cfg.NoteType,
		BridgeURL:  cfg.BridgeURL,
		LastSynced: lastSyncedNever,
	}

	fillLabelStatus(cmd.Context(), &info, cfg.LabelDBPath(), logger)
	fillVaultStatus(cmd.Context(), &info, cfg.VaultDir, logger)

	// Degraded mode: a down bridge is a status to report, not a failure.
	bridge := anki.New(cfg.BridgeURL, cfg.BridgeKey, logger)
	if v, err := bridge.Version(cmd.Context()); err != nil {
		logger.Debug("bridge unreachable for status", "error", err)
		info.Bridge = bridgeStateUnreachable
	} else {
		info.Bridge = fmt.Sprintf("reachable (version %d)", v)
	}

	info.WatchPID = runningSyncPID(cfg.LockPath())

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if err := enc.Encode(info); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	printStatusText(&info)

	return nil
}

// fillLabelStatus reads map size and last sync time. A missing database
// means no sync has run yet; opening it here would create it as a side
// effect, so stat first.
func fillLabelStatus(ctx context.Context, info *statusInfo, dbPath string, logger *slog.Logger) {
	if dbPath == "" {
		return
	}

	if _, err := os.Stat(dbPath); err != nil {
		return
	}

	store, err := sync.OpenLabelStore(dbPath, logger)
	if err != nil {
		logger.Debug("could not open label store for status", "error", err)
		return
	}
	defer store.Close()

	if n, err := store.Len(ctx); err == nil {
		info.Labels = n
	}

	if ts, err := store.LastSynced(ctx); err == nil && ts > 0 {
		info.LastSynced = time.Unix(0, ts).Format(time.RFC3339)
	}
}

// fillVaultStatus scans the vault for file and card counts.
func fillVaultStatus(ctx context.Context, info *statusInfo, vaultDir string, logger *slog.Logger) {
	if vaultDir == "" {
		return
	}

	if _, err := os.Stat(vaultDir); err != nil {
		return
	}

	result, err := vault.NewScanner(logger).Scan(ctx, vaultDir)
	if err != nil {
		logger.Debug("could not scan vault for status", "error", err)
		return
	}

	info.Files = result.Files
	info.Cards = len(result.Cards)
	info.Issues = len(result.Issues)
}

func printStatusText(info *statusInfo) {
	fmt.Printf("Config:  %s\n", info.ConfigPath)

	vaultDir := info.VaultDir
	if vaultDir == "" {
		vaultDir = "(not set)"
	}

	fmt.Printf("Vault:   %s (%d files, %d cards", vaultDir, info.Files, info.Cards)

	if info.Issues > 0 {
		fmt.Printf(", %d issues", info.Issues)
	}

	fmt.Println(")")

	fmt.Printf("Deck:    %s (note type %s)\n", info.RootDeck, info.NoteType)
	fmt.Printf("Bridge:  %s (%s)\n", info.BridgeURL, info.Bridge)
	fmt.Printf("Labels:  %d mapped, last synced %s\n", info.Labels, info.LastSynced)

	if info.WatchPID > 0 {
		fmt.Printf("Watch:   running (PID %d)\n", info.WatchPID)
	}
}
