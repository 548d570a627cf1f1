package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"credit-ledger/internal/domain/event"
	"credit-ledger/internal/infrastructure/messaging"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the cached balance in sync and report purchases",
		Long: `Subscribe to balance change events for the signed-in user and refresh the cached
balance on each event and on a fixed interval. A completed purchase is reported once.
Prometheus metrics are served on metrics.listen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if interval <= 0 {
				interval = rt.cfg.NATS.Refresh.Duration
			}
			if interval <= 0 {
				interval = time.Minute
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			nc, err := messaging.Connect(rt.cfg.NATS.URL, "ledgerctl")
			if err != nil {
				return err
			}
			defer nc.Close()

			subscriber := messaging.NewSubscriber(nc, rt.cfg.NATS.Subject, "", messaging.ForUser(rt.userID), rt.logger)

			mux := http.NewServeMux()
			mux.Handle("/metrics", rt.metrics.Handler())
			srv := &http.Server{
				Addr:              rt.cfg.Metrics.Listen,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			// 起動時に一度取得する
			rt.client.FetchCredits(ctx, rt.userID, rt.token(ctx))
			fmt.Fprintf(cmd.OutOrStdout(), "Watching credits for %s (metrics on %s)\n", rt.userID, rt.cfg.Metrics.Listen)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return subscriber.Run(ctx, func(ctx context.Context, e event.BalanceChanged) error {
					rt.client.FetchCredits(ctx, rt.userID, rt.token(ctx))
					return nil
				})
			})
			g.Go(func() error {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						rt.client.FetchCredits(ctx, rt.userID, rt.token(ctx))
					}
				}
			})
			g.Go(func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Refresh interval (default nats.refresh_interval)")
	return cmd
}
