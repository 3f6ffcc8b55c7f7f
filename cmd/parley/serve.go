package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/parley/internal/cli"
	httpAdapter "github.com/aretw0/parley/pkg/adapters/http"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Serves sessions over a JSON API, a websocket chat per session, server-sent
reload events and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		watch, _ := cmd.Flags().GetBool("watch")
		metrics, _ := cmd.Flags().GetBool("metrics")
		log := logger()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		opts := []httpAdapter.Option{
			httpAdapter.WithLogger(log),
			httpAdapter.WithInputLimit(cfg.MaxInputSize),
		}

		reg := prometheus.NewRegistry()
		var hooks []domain.LifecycleHooks
		if metrics {
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m, err := observability.NewMetrics(reg)
			if err != nil {
				return err
			}
			hooks = append(hooks, m.Hooks())
			opts = append(opts, httpAdapter.WithGatherer(reg))
		}

		sessions, err := cli.NewSessions(ctx, cfg, log, hooks...)
		if err != nil {
			return err
		}
		defer sessions.Close()

		if watch {
			if cli.WatchGrammars(ctx, sessions.Loader, sessions, log) == nil {
				log.Warn("--watch ignored: grammars are not watchable")
			} else if w, ok := sessions.Loader.(ports.Watchable); ok {
				opts = append(opts, httpAdapter.WithWatch(w.Watch))
			}
		}

		srv := &http.Server{
			Addr:              ":" + port,
			Handler:           httpAdapter.NewHandler(sessions, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Info("Starting Parley server", "address", srv.Addr, "domains", sessions.Domains())
			fmt.Fprintf(cmd.OutOrStdout(), "Parley listening on %s\n", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			log.Info("Start shutdown")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown did not complete: %w", err)
			}
			if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Parley server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload grammars when their files change and stream reload events")
	serveCmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")
}
