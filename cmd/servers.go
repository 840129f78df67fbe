package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"toolgate/internal/config"
	"toolgate/internal/registry"
)

// newServersCmd creates the command listing the configured server catalogue.
func newServersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List the tool servers in the catalogue",
		Long: `List every tool server in the catalogue together with its auth mode
and whether its credential bindings resolve in the current environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultConfigPathOrPanic()
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			reg, err := registry.Load(cfg.Storage.CataloguePath)
			if err != nil {
				return err
			}

			servers := reg.List()
			if len(servers) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", text.FgYellow.Sprint("No servers in the catalogue"))
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"SLUG", "NAME", "AUTH MODE", "CONFIGURED"})
			for _, server := range servers {
				configured := text.FgRed.Sprint("no")
				if reg.IsConfigured(server) {
					configured = text.FgGreen.Sprint("yes")
				}
				t.AppendRow(table.Row{server.Slug, server.Name, string(server.AuthMode), configured})
			}
			t.Render()
			return nil
		},
	}
}
