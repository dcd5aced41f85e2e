package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/monoklix/mkx-cli/internal/application"
	"github.com/monoklix/mkx-cli/internal/domain"
)

func newTokenCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage and test your personal auth token",
	}

	cmd.AddCommand(
		newTokenSetCmd(app),
		newTokenShowCmd(app),
		newTokenTestCmd(app),
		newTokenScanCmd(app),
	)

	return cmd
}

func newTokenSetCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <token>",
		Short: "Store a personal auth token on your profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(args[0])
			if token == "" {
				return errors.New("token is empty")
			}

			profile, err := app.store.GetProfile(cmd.Context(), app.session.UserID)
			if errors.Is(err, domain.ErrProfileNotFound) {
				profile = domain.Profile{
					ID:       app.session.UserID,
					Username: app.session.Username,
					Role:     app.session.Role,
				}
			} else if err != nil {
				return err
			}

			profile.PersonalAuthToken = token
			if err := app.store.SaveProfile(cmd.Context(), profile); err != nil {
				return err
			}
			if err := app.cache.Put(cmd.Context(), profile); err != nil {
				app.logger.Warn("profile cache refresh failed", "error", err)
			}

			credential := domain.Credential{Token: token}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Token %s stored for user %s\n",
				credential.Redacted(), profile.ID)
			return nil
		},
	}
}

func newTokenShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored token (redacted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile, err := app.store.GetProfile(cmd.Context(), app.session.UserID)
			if errors.Is(err, domain.ErrProfileNotFound) || (err == nil && profile.PersonalAuthToken == "") {
				return domain.ErrNoCredential
			}
			if err != nil {
				return err
			}

			credential := domain.Credential{Token: profile.PersonalAuthToken}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), credential.Redacted())
			return nil
		},
	}
}

func newTokenTestCmd(app *app) *cobra.Command {
	var (
		service   string
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "test [token]",
		Short: "Test a token against the generation services",
		Long:  "Issues real generation calls with the token and reports per-service results. Without an argument the stored personal token is tested.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = strings.TrimSpace(args[0])
			}
			if token == "" {
				profile, err := app.store.GetProfile(cmd.Context(), app.session.UserID)
				if err != nil || profile.PersonalAuthToken == "" {
					return domain.ErrNoCredential
				}
				token = profile.PersonalAuthToken
			}

			results, err := app.probes.TestToken(cmd.Context(), app.session, token, service, probeServer(app, serverURL))
			if err != nil {
				return err
			}

			printProbeResults(cmd, results)
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "all", "Service to test (imagen, veo, all)")
	cmd.Flags().StringVar(&serverURL, "test-server", "", "Server to test against (default: selected server)")

	return cmd
}

func newTokenScanCmd(app *app) *cobra.Command {
	var (
		pool      string
		service   string
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Test every token in a shared pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := app.probes.ScanPool(cmd.Context(), app.session,
				domain.TokenPool(pool), service, probeServer(app, serverURL))
			// Partial results are still worth showing when the scan was cut short.
			printProbeResults(cmd, results)
			return err
		},
	}

	cmd.Flags().StringVar(&pool, "pool", string(domain.PoolVeo), "Pool to scan (veo, imagen)")
	cmd.Flags().StringVar(&service, "service", "all", "Service to test (imagen, veo, all)")
	cmd.Flags().StringVar(&serverURL, "test-server", "", "Server to test against (default: selected server)")

	return cmd
}

func probeServer(app *app, override string) string {
	if override != "" {
		return override
	}
	return app.session.SelectedServer
}

func printProbeResults(cmd *cobra.Command, results []application.TokenTestResult) {
	if len(results) == 0 {
		return
	}

	rows := make([][]string, 0, len(results))
	for _, result := range results {
		verdict := "FAIL"
		if result.OK {
			verdict = "OK"
		}
		rows = append(rows, []string{
			domain.Credential{Token: result.Token}.Redacted(),
			string(result.Service),
			verdict,
			result.Detail,
		})
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Token", "Service", "Result", "Detail"}, rows))
}
