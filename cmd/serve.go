package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/patrikhermansson/redis-hnsw/core"
	"github.com/patrikhermansson/redis-hnsw/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the hnsw.* commands over RESP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Addr, _ = flags.GetString("addr")
		}
		if flags.Changed("metrics-addr") {
			cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
		}
		if flags.Changed("storage") {
			cfg.Storage, _ = flags.GetString("storage")
		}
		if flags.Changed("data-dir") {
			cfg.DataDir, _ = flags.GetString("data-dir")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "RESP listen address (overrides config)")
	serveCmd.Flags().String("metrics-addr", "", "Prometheus listen address, empty to disable (overrides config)")
	serveCmd.Flags().String("storage", "", "Storage backend: pebble or memory (overrides config)")
	serveCmd.Flags().String("data-dir", "", "Pebble data directory (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// serve runs the RESP server and the metrics endpoint until ctx is done.
func serve(ctx context.Context) error {
	log.Info().Msgf("CPU: %s", core.CPUSummary())
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			log.Error().Msgf("Failed to close store: %v", err)
		}
	}()

	srv := server.New(reg, server.Options{
		Addr:      cfg.Addr,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve(ln)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	var httpSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(srv.Metrics().Registry, promhttp.HandlerOpts{}))
		httpSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Msgf("Serving metrics on %s/metrics", cfg.MetricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		_ = srv.Close()
		_ = ln.Close()
		if httpSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
