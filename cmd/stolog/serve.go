package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ZehenForever/sto-log-parser/internal/engine"
	"github.com/ZehenForever/sto-log-parser/internal/hub"
	"github.com/ZehenForever/sto-log-parser/internal/logging"
	"github.com/ZehenForever/sto-log-parser/internal/pipeline"
)

var (
	serveRun     runFlags
	serveListen  string
	serveRefresh time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Parse the logs and serve the combats over HTTP and websocket",
	Long: `Parse the combat logs once and serve the result:

  GET /api/combats?hours=N                  most recent combats first
  GET /api/combats/{id}                     one combat with entity rows
  GET /api/combats/{id}/breakdown?owner=ID  per-ability and per-pet rows
  GET /api/combats/{id}/timeline            damage in time buckets
  GET /ws                                   snapshot, then store updates
  GET /metrics                              Prometheus metrics

With --refresh the logs are parsed again on that interval and subscribers
receive the new combats.`,
	RunE: runServe,
}

func init() {
	addRunFlags(serveCmd, &serveRun)
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "",
		"Listen address (default from config, 127.0.0.1:8787)")
	serveCmd.Flags().DurationVar(&serveRefresh, "refresh", 0,
		"Re-parse the logs on this interval (0 parses once)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd, &serveRun)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Hub.Listen = serveListen
	}
	opts, err := pipelineOptions(cfg, logger)
	if err != nil {
		return err
	}

	store := engine.NewStore()
	opts.Store = store

	view := opts.ViewOptions()
	view.LimitCombats = cfg.Hub.LimitCombats
	srv := hub.NewServer(store, hub.Options{View: view, Logger: logger.With("component", "hub")})
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reparse(ctx, opts, logger)

	httpServer := &http.Server{
		Addr:              cfg.Hub.Listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("stolog listening on http://%s", cfg.Hub.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if serveRefresh > 0 {
		g.Go(func() error {
			refreshLoop(gctx, serveRefresh, opts, logger)
			return nil
		})
	}
	return g.Wait()
}

// refreshLoop re-runs the pipeline on every tick. Runs never overlap; a tick
// that fires during a slow run is dropped by the ticker.
func refreshLoop(ctx context.Context, every time.Duration, opts pipeline.Options, logger *logging.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			reparse(ctx, opts, logger)
		}
	}
}

// reparse runs the pipeline once. A halted run leaves the store untouched.
func reparse(ctx context.Context, opts pipeline.Options, logger *logging.Logger) *pipeline.Result {
	res := pipeline.Run(ctx, opts)
	if res.Halted() {
		logger.Warnf("parse halted, keeping %d combats from the previous run", opts.Store.Len())
	}
	return res
}
