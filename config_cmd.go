package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ankimd/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the ankimd configuration file",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  "Show the effective configuration after defaults, config file, environment, and CLI flags are applied.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			return config.RenderEffective(cc.Cfg, os.Stdout)
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Write a commented starter config file",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			path := effectiveConfigPath(cc.Flags.ConfigPath)
			if path == "" {
				return fmt.Errorf("cannot determine config file path")
			}

			if err := config.WriteStarter(path); err != nil {
				return err
			}

			cc.Statusf("Wrote starter config to %s\n", path)

			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the config file path",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			path := effectiveConfigPath(cc.Flags.ConfigPath)
			if path == "" {
				return fmt.Errorf("cannot determine config file path")
			}

			fmt.Println(path)

			return nil
		},
	}
}

// effectiveConfigPath resolves the config file location the same way config
// resolution does: CLI flag > ANKIMD_CONFIG > platform default.
func effectiveConfigPath(cliPath string) string {
	if cliPath != "" {
		return cliPath
	}

	if env := os.Getenv(config.EnvConfig); env != "" {
		return env
	}

	return config.DefaultConfigPath()
}
