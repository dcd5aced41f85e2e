package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/monoklix/mkx-cli/internal/domain"
)

func newPoolCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Manage shared token pools",
	}

	cmd.AddCommand(
		newPoolListCmd(app),
		newPoolAddCmd(app),
		newPoolRemoveCmd(app),
		newPoolClaimCmd(app),
	)

	return cmd
}

func newPoolListCmd(app *app) *cobra.Command {
	var pool string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tokens in a pool with their usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := app.store.ListTokens(cmd.Context(), domain.TokenPool(pool))
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Pool %q is empty\n", pool)
				return nil
			}

			rows := make([][]string, 0, len(tokens))
			for _, token := range tokens {
				state := "available"
				if token.Exhausted() {
					state = "exhausted"
				}
				rows = append(rows, []string{
					domain.Credential{Token: token.Token}.Redacted(),
					strconv.Itoa(token.UsageCount) + "/" + strconv.Itoa(token.UsageCeiling),
					state,
					token.CreatedAt.Format(time.DateOnly),
				})
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Token", "Usage", "State", "Added"}, rows, 2))
			return nil
		},
	}

	cmd.Flags().StringVar(&pool, "pool", string(domain.PoolVeo), "Pool name (veo, imagen)")

	return cmd
}

func newPoolAddCmd(app *app) *cobra.Command {
	var (
		pool    string
		ceiling int
	)

	cmd := &cobra.Command{
		Use:   "add <token>",
		Short: "Add a token to a shared pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := domain.PoolToken{
				Token:        strings.TrimSpace(args[0]),
				Pool:         domain.TokenPool(pool),
				CreatedAt:    time.Now().UTC(),
				UsageCeiling: ceiling,
			}
			if err := app.store.AddToken(cmd.Context(), token); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added %s to pool %q (ceiling %d)\n",
				domain.Credential{Token: token.Token}.Redacted(), pool, ceiling)
			return nil
		},
	}

	cmd.Flags().StringVar(&pool, "pool", string(domain.PoolVeo), "Pool name (veo, imagen)")
	cmd.Flags().IntVar(&ceiling, "ceiling", 3, "Usage ceiling for the token")

	return cmd
}

func newPoolRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <token>",
		Short: "Remove a token from its pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.store.RemoveToken(cmd.Context(), strings.TrimSpace(args[0])); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Token removed")
			return nil
		},
	}
}

func newPoolClaimCmd(app *app) *cobra.Command {
	var (
		pool   string
		userID string
	)

	cmd := &cobra.Command{
		Use:   "claim [token]",
		Short: "Claim a pool token as your personal token",
		Long:  "Takes one usage slot on a pool token and assigns the token to the user's profile. Without an argument the first token with remaining capacity is claimed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := userID
			if target == "" {
				target = app.session.UserID
			}

			var credential domain.Credential
			var err error
			if len(args) == 1 {
				credential, err = app.claims.Claim(cmd.Context(), target, strings.TrimSpace(args[0]))
			} else {
				credential, err = app.claims.ClaimFirstAvailable(cmd.Context(), target, domain.TokenPool(pool))
			}
			if errors.Is(err, domain.ErrPoolSlotUnavailable) {
				return fmt.Errorf("no pool token with remaining capacity in %q", pool)
			}
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Claimed %s for user %s\n",
				credential.Redacted(), target)
			return nil
		},
	}

	cmd.Flags().StringVar(&pool, "pool", string(domain.PoolVeo), "Pool name (veo, imagen)")
	cmd.Flags().StringVar(&userID, "user", "", "Assign to this user ID (default: you)")

	return cmd
}
