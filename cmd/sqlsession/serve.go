package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/aretw0/sqlsession/internal/adapters/http"
	"github.com/aretw0/sqlsession/internal/cli"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the demo HTTP host",
	Long: `Serves session cycles over HTTP: GET/PUT/DELETE /sessions/{id},
POST /sessions/{id}/append, POST /gc, and /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cfg, logger, err := runtime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		opts := []httpAdapter.Option{httpAdapter.WithLogger(logger)}
		if cfg.Server.Metrics {
			opts = append(opts, httpAdapter.WithMetrics(rt.Registry))
		}
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           httpAdapter.NewHandler(rt.Provider, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting sqlsession server",
				"addr", srv.Addr,
				"strategy", rt.Provider.Strategy(),
			)
			serverErrors <- srv.ListenAndServe()
		}()

		out := cli.NewPrinter(cmd.OutOrStdout())
		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			logger.Info("Shutdown requested")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				out.Warn("Graceful shutdown did not complete in %v: %v", shutdownTimeout, err)
				return srv.Close()
			}
			out.Success("sqlsession server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}
