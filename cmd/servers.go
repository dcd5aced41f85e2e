package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newServersCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List proxy servers visible to you",
		RunE: func(cmd *cobra.Command, _ []string) error {
			endpoints := app.directory.List(cmd.Context(), app.session)
			if len(endpoints) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No servers configured. Add a [[servers]] entry to ~/.mkx/config.toml.")
				return nil
			}

			rows := make([][]string, 0, len(endpoints))
			for _, endpoint := range endpoints {
				selected := ""
				if endpoint.URL == app.session.SelectedServer {
					selected = "*"
				}
				rows = append(rows, []string{
					string(endpoint.ID),
					endpoint.URL,
					strings.Join(endpoint.Tags, ", "),
					selected,
				})
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "URL", "Tags", "Selected"}, rows))
			return nil
		},
	}
}
