package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/presentation/tui"
	httpAdapter "github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the document API over HTTP, with live history events over SSE
and Prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		streams := httpAdapter.NewStreamManager(nil)
		app, err := openApp(cmd, streams.Hooks())
		if err != nil {
			return err
		}
		defer app.Close()
		slog.SetDefault(app.Logger)

		addr := app.Config.HTTP.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := app.Metrics.Register(reg); err != nil {
			return err
		}

		handler := httpAdapter.NewHandler(app.Manager,
			httpAdapter.WithLogger(app.Logger),
			httpAdapter.WithGatherer(reg),
			httpAdapter.WithStreams(streams),
		)
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		if isTerminal(cmd.ErrOrStderr()) {
			tui.PrintBanner(cmd.ErrOrStderr(), arbor.Version)
		}

		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("arbor server listening", "address", addr, "store", app.Config.Store.Driver)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-cmd.Context().Done():
			app.Logger.Info("shutting down", "signal", signalOf(cmd))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				app.Logger.Error("graceful shutdown did not complete", "error", err)
				_ = srv.Close()
			}
			if err := app.Manager.SaveAll(ctx); err != nil {
				app.Logger.Error("failed to flush open documents", "error", err)
			}
			app.Logger.Info("arbor server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on (overrides http.addr)")
}

func signalOf(cmd *cobra.Command) string {
	if sc, ok := cmd.Context().(*cli.SignalContext); ok && sc.Signal() != nil {
		return sc.Signal().String()
	}
	return "context cancelled"
}
