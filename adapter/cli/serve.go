package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/maximegiguere1one/chiroflow/adapter/api"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveWorkers bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API and the public token links.

With --workers (the default) the outbox relay and the offer expiry sweep
run in the same process, which is what a single-node SQLite install wants.
Disable it when cmd/worker runs separately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		cfg := api.DefaultServerConfig()
		cfg.Addr = a.Config.HTTPAddr
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}
		if a.Config.HTTPReadTimeout > 0 {
			cfg.ReadTimeout = a.Config.HTTPReadTimeout
		}
		if a.Config.HTTPWriteTimeout > 0 {
			cfg.WriteTimeout = a.Config.HTTPWriteTimeout
		}
		server := api.NewServer(cfg, a.Container)

		if serveWorkers {
			if err := a.OutboxProcessor.Start(ctx); err != nil {
				return fmt.Errorf("failed to start outbox processor: %w", err)
			}
			go func() {
				if err := a.OfferExpiryWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					cliLogger().Error("offer expiry worker stopped", "error", err)
				}
			}()
		}

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveWorkers, "workers", true, "run the outbox relay and offer expiry sweep in process")
	rootCmd.AddCommand(serveCmd)
}
