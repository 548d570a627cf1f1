// Package cli ledgerctlのコマンド定義
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"credit-ledger/internal/infrastructure/config"
)

type rootOptions struct {
	configPath string
	userID     string
}

// NewRootCmd ledgerctlのルートコマンドを作成
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Credit ledger client for the CV assistant",
		Long: `ledgerctl keeps a local cache of your credit balance, spends credits on paid
CV actions (job analysis, networking search, email lookup) and keeps the cache in
sync with the credit ledger server.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config.toml (default ~/.ledgerctl/config.toml)")
	root.PersistentFlags().StringVarP(&opts.userID, "user", "u", "", "User ID (overrides identity.user_id)")

	root.AddCommand(
		newBalanceCmd(opts),
		newRefreshCmd(opts),
		newRedeemCmd(opts),
		newTokenCmd(opts),
		newLogoutCmd(opts),
		newAnalyzeCmd(opts),
		newSearchCmd(opts),
		newEmailCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// Execute ルートコマンドを実行
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// load 設定を読み込み、フラグで上書きする
func (o *rootOptions) load() (*config.ClientConfig, error) {
	cfg, err := config.LoadClient(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.userID != "" {
		cfg.Identity.UserID = o.userID
	}
	if cfg.Identity.UserID == "" {
		return nil, fmt.Errorf("user id is required: set identity.user_id, LEDGERCTL_USER_ID or --user")
	}
	return cfg, nil
}

// open 設定を読み込み、ランタイムを組み立てる
func (o *rootOptions) open(cmd *cobra.Command) (*runtime, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return newRuntime(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
}
