package main

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/ankimd/internal/config"
)

// CLIFlags holds the persistent flag values parsed by the root command.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries the resolved configuration, logger, and flags that
// every subcommand needs. It is attached to the command context in
// PersistentPreRunE; Cfg is nil for commands annotated to skip config
// loading.
type CLIContext struct {
	Cfg    *config.Resolved
	Logger *slog.Logger
	Flags  CLIFlags
}

// cliContextKey is the private context key for the CLIContext.
type cliContextKeyType struct{}

var cliContextKey = cliContextKeyType{}

// withCLIContext returns a context carrying cc.
func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey, cc)
}

// mustCLIContext extracts the CLIContext set by the root pre-run. Panics if
// absent — that is a wiring bug, not a runtime condition.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey).(*CLIContext)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}
