//go:build e2e

// Package e2e exercises the built ankimd binary against a live AnkiConnect
// instance. The suite runs only when ANKIMD_E2E_BRIDGE_URL is set; it
// isolates all state in temp directories and creates its notes under a
// dedicated throwaway deck.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/tonimelisma/ankimd/testutil"
)

var (
	binaryPath string
	bridgeURL  string
	rootDeck   string
)

func TestMain(m *testing.M) {
	moduleRoot := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(moduleRoot, ".env"))

	bridgeURL = testutil.BridgeURL()
	if bridgeURL == "" {
		fmt.Fprintf(os.Stderr, "skipping e2e: %s not set\n", testutil.BridgeURLEnv)
		os.Exit(0)
	}

	rootDeck = testutil.RootDeck()

	// Build binary to temp dir.
	tmpDir, err := os.MkdirTemp("", "ankimd-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	binaryPath = filepath.Join(tmpDir, "ankimd")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = moduleRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// testEnv is one isolated CLI environment: its own vault, state directory,
// and config file pointing at the live bridge.
type testEnv struct {
	vaultDir string
	stateDir string
	cfgPath  string
}

// newTestEnv creates an isolated environment under t.TempDir.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	env := &testEnv{
		vaultDir: filepath.Join(root, "vault"),
		stateDir: filepath.Join(root, "state"),
		cfgPath:  filepath.Join(root, "config.toml"),
	}

	if err := os.MkdirAll(env.vaultDir, 0o755); err != nil {
		t.Fatalf("creating vault dir: %v", err)
	}

	cfg := fmt.Sprintf("vault_dir = %q\nroot_deck = %q\nbridge_url = %q\nstate_dir = %q\n",
		env.vaultDir, rootDeck, bridgeURL, env.stateDir)

	if err := os.WriteFile(env.cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	return env
}

// writeNote writes a markdown file into the vault, creating parent folders.
func (env *testEnv) writeNote(t *testing.T, relPath, content string) {
	t.Helper()

	path := filepath.Join(env.vaultDir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating note dir: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing note: %v", err)
	}
}

// removeNote deletes a markdown file from the vault.
func (env *testEnv) removeNote(t *testing.T, relPath string) {
	t.Helper()

	if err := os.Remove(filepath.Join(env.vaultDir, relPath)); err != nil {
		t.Fatalf("removing note: %v", err)
	}
}

// runCLI runs the binary against this environment and fails the test on a
// non-zero exit.
func (env *testEnv) runCLI(t *testing.T, args ...string) (string, string) {
	t.Helper()

	out, errOut, err := env.tryCLI(args...)
	if err != nil {
		t.Fatalf("CLI command %v failed: %v\nstdout: %s\nstderr: %s", args, err, out, errOut)
	}

	return out, errOut
}

// tryCLI runs the binary and returns the raw outcome, for tests asserting
// on failures.
func (env *testEnv) tryCLI(args ...string) (string, string, error) {
	fullArgs := append([]string{"--config", env.cfgPath}, args...)
	cmd := exec.Command(binaryPath, fullArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

// syncReport mirrors the report fields the e2e assertions need.
type syncReport struct {
	Scanned  int `json:"scanned"`
	Skipped  int `json:"skipped"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Ignored  int `json:"ignored"`
	Deleted  int `json:"deleted"`
	Uploaded int `json:"uploaded"`
	Failures []struct {
		Stage string `json:"stage"`
		Label string `json:"label"`
		Err   string `json:"error"`
	} `json:"failures"`
}

// sync runs one sync and decodes the JSON report.
func (env *testEnv) sync(t *testing.T, extra ...string) syncReport {
	t.Helper()

	args := append([]string{"--json", "sync"}, extra...)
	out, _ := env.runCLI(t, args...)

	var report syncReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decoding sync report: %v\noutput: %s", err, out)
	}

	return report
}
