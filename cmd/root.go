package cmd

import "github.com/spf13/cobra"

// Execute runs the CLI. Cleanup happens here rather than in a PostRun
// hook: cobra skips PostRun hooks when a subcommand returns an error, and
// the sink flush and store close must run on the failure path too.
func Execute() error {
	root, cleanup := newRootCmd()
	defer cleanup()
	return root.Execute()
}

func newRootCmd() (*cobra.Command, func()) {
	rootCmd := &cobra.Command{
		Use:           "mkx",
		Short:         "monoklix CLI (mkx): run AI generation workflows against proxy servers",
		Long:          "mkx drives Imagen and Veo generation workflows through monoklix proxy servers, managing credentials, shared token pools, and server selection from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd, func() {}
	}
	rootCmd.PersistentFlags().StringVar(&app.session.SelectedServer, "server", app.session.SelectedServer,
		"Proxy server URL to use for this invocation")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServersCmd(app),
		newGenerateCmd(app),
		newComposeCmd(app),
		newVideoCmd(app),
		newTokenCmd(app),
		newPoolCmd(app),
	)

	return rootCmd, app.close
}
