package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bronto-tap/internal/pipeline"
	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
	"github.com/ajitpratap0/bronto-tap/pkg/config"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/registry"
	"github.com/ajitpratap0/bronto-tap/pkg/logger"
	"github.com/ajitpratap0/bronto-tap/pkg/metrics"
	"github.com/ajitpratap0/bronto-tap/pkg/observability"
	"github.com/ajitpratap0/bronto-tap/pkg/output"
	"github.com/ajitpratap0/bronto-tap/pkg/state"

	// Register all sources
	_ "github.com/ajitpratap0/bronto-tap/pkg/connector/sources"
)

var version = "0.1.0"

type runOptions struct {
	configPath  string
	statePath   string
	catalogPath string
	discover    bool
	selectAll   bool
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var opts runOptions

	root := &cobra.Command{
		Use:   "bronto-tap",
		Short: "Extract Bronto contacts, lists, unsubscribes and activities",
		Long: `bronto-tap reads a Bronto account through its SOAP API and writes
SCHEMA, RECORD and STATE messages to standard output, one JSON object per line.

Run with --discover, or without a catalog, to print the catalog of available
streams. Select streams and fields in that catalog and pass it back with
--catalog to extract them.

Example:
  bronto-tap --config config.json --discover > catalog.json
  bronto-tap --config config.json --catalog catalog.json --state state.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	root.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to the configuration file, JSON or YAML (required)")
	root.Flags().StringVarP(&opts.statePath, "state", "s", "", "Path to a state file to resume from")
	root.Flags().StringVar(&opts.catalogPath, "catalog", "", "Path to the catalog of selected streams")
	root.Flags().StringVar(&opts.catalogPath, "properties", "", "Alias of --catalog")
	root.Flags().BoolVarP(&opts.discover, "discover", "d", false, "Print the catalog of available streams and exit")
	root.Flags().BoolVar(&opts.selectAll, "select-all", false, "Mark every stream and field selected in the discovered catalog")
	_ = root.MarkFlagRequired("config")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bronto-tap v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range registry.ListSources() {
				fmt.Printf("  - %s\n", name)
			}
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts runOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("component", "bronto-tap"))

	tracing, err := observability.Init(cfg.Tracing, version, os.Stderr, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if opts.discover || opts.catalogPath == "" {
		return pipeline.NewRunner(cfg, nil, pipeline.WithLogger(log)).Discover(ctx, opts.selectAll)
	}

	cat, err := catalog.Load(opts.catalogPath)
	if err != nil {
		return err
	}

	store, err := state.NewStore(ctx, cfg.StateStore, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn("failed to close state store", zap.Error(err))
			}
		}()
	}

	sink, err := output.Open(cfg.Output)
	if err != nil {
		return err
	}

	runnerOpts := []pipeline.Option{pipeline.WithLogger(log)}
	if store != nil {
		runnerOpts = append(runnerOpts, pipeline.WithStore(store))
	}
	runner := pipeline.NewRunner(cfg, sink, runnerOpts...)

	bookmarks, err := runner.LoadState(ctx, opts.statePath)
	if err != nil {
		_ = sink.Close()
		return err
	}

	_, _, syncErr := runner.Sync(ctx, cat, bookmarks)
	if err := sink.Close(); err != nil && syncErr == nil {
		return err
	}
	return syncErr
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
