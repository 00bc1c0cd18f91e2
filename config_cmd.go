package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudplay/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if cc.Flags.JSON {
				return printJSON(os.Stdout, cc.Cfg)
			}

			return config.RenderEffective(cc.Cfg, os.Stdout)
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Write a commented default config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			path := initConfigPath(cc.Flags.ConfigPath, config.ReadEnvOverrides())

			if path == "" {
				return fmt.Errorf("cannot determine config path; pass --config")
			}

			if err := config.WriteDefault(path, cc.Logger); err != nil {
				return err
			}

			cc.Statusf("Wrote %s\n", path)

			return nil
		},
	}
}

// initConfigPath picks the file "config init" writes: --config, then
// CLOUDPLAY_CONFIG, then the platform default.
func initConfigPath(flagPath string, env config.EnvOverrides) string {
	switch {
	case flagPath != "":
		return flagPath
	case env.ConfigPath != "":
		return env.ConfigPath
	default:
		return config.DefaultConfigPath()
	}
}
