package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/graph-mailer/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			return showConfig(cmd.OutOrStdout(), cc.Cfg, cc.CfgPath, cc.Flags.JSON)
		},
	}
}

// showConfig prints cfg with the client secret redacted.
func showConfig(w io.Writer, cfg *config.Config, path string, asJSON bool) error {
	if !asJSON {
		return config.RenderEffective(cfg, path, w)
	}

	redacted := *cfg
	if redacted.OAuth.ClientSecret != "" {
		redacted.OAuth.ClientSecret = "********"
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(redacted)
}
