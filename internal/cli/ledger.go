package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newBalanceCmd(opts *rootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the cached credit balance",
		Long: `Show the locally cached credit balance. The cache is refreshed from the ledger
server first when it has never been fetched, or when --refresh is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			snap, err := rt.client.Balance(ctx, rt.userID)
			if err != nil {
				return fmt.Errorf("failed to read cached balance: %w", err)
			}
			if refresh || !snap.Known {
				rt.client.FetchCredits(ctx, rt.userID, rt.token(ctx))
				if snap, err = rt.client.Balance(ctx, rt.userID); err != nil {
					return fmt.Errorf("failed to read cached balance: %w", err)
				}
			}

			if !snap.Known {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: balance unknown (ledger unreachable)\n", rt.userID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d credits\n", rt.userID, snap.Balance)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Refresh from the ledger server before printing")
	return cmd
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Overwrite the cached balance with the server balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			snap, err := rt.client.Refresh(ctx, rt.userID, rt.token(ctx))
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d credits\n", rt.userID, snap.Balance)
			return nil
		},
	}
}

func newRedeemCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem CODE",
		Short: "Redeem a code for credits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.rest == nil {
				return errors.New("redeem requires the rest transport")
			}

			ctx := cmd.Context()
			res, err := rt.rest.Redeem(ctx, args[0], rt.token(ctx))
			if err != nil {
				return fmt.Errorf("redeem failed: %w", err)
			}

			// サーバーの残高で上書きし、キャッシュを権威ある値に揃える
			if _, err := rt.client.Refresh(ctx, rt.userID, rt.token(ctx)); err != nil {
				if _, err := rt.client.Credit(ctx, rt.userID, res.Credits); err != nil {
					rt.logger.Warn(ctx, "Failed to apply redeemed credits to cache", map[string]interface{}{
						"user_id": rt.userID,
						"error":   err.Error(),
					})
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Redeemed %s: +%d credits (balance %d)\n", res.Code, res.Credits, res.BalanceAfter)
			return nil
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print an auth token from the configured identity provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			tok, err := rt.tokens.Token(cmd.Context())
			if err != nil {
				return fmt.Errorf("no token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the cached balance for this user",
		Long:  `Reset the local balance cache to unknown. The server balance is not changed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.client.Reset(cmd.Context(), rt.userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed out %s\n", rt.userID)
			return nil
		},
	}
}
