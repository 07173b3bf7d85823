// Package pipeline runs the tap: discovery, or a sync of every selected
// stream of a catalog, one stream at a time.
//
// A stream that fails is logged and counted, and the run continues with the
// next one. Configuration and authentication errors abort the run.
package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
	"github.com/ajitpratap0/bronto-tap/pkg/config"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/base"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/core"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/engine"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/registry"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/json"
	"github.com/ajitpratap0/bronto-tap/pkg/logger"
	"github.com/ajitpratap0/bronto-tap/pkg/metrics"
	"github.com/ajitpratap0/bronto-tap/pkg/state"
)

// DefaultSource is the source a runner creates unless told otherwise.
const DefaultSource = "bronto"

// Runner executes runs against one configured source.
type Runner struct {
	cfg      *config.Config
	sink     core.Sink
	source   string
	registry *registry.Registry
	store    state.Store
	out      io.Writer
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithRegistry sets the registry sources are created from.
func WithRegistry(reg *registry.Registry) Option {
	return func(r *Runner) { r.registry = reg }
}

// WithSource selects the registered source by name.
func WithSource(name string) Option {
	return func(r *Runner) { r.source = name }
}

// WithStore persists bookmarks to store after every window and at run end.
func WithStore(store state.Store) Option {
	return func(r *Runner) { r.store = store }
}

// WithDiscoveryOutput sets where Discover writes the catalog.
func WithDiscoveryOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithClock sets the clock used to plan windows.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner writing messages to sink.
func NewRunner(cfg *config.Config, sink core.Sink, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		sink:     sink,
		source:   DefaultSource,
		registry: registry.GetGlobalRegistry(),
		out:      os.Stdout,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats summarizes a sync run.
type Stats struct {
	RunID    string
	Synced   []string
	Skipped  []string
	Failed   []string
	Duration time.Duration
}

// Discover writes the catalog of every stream the source offers.
func (r *Runner) Discover(ctx context.Context, selectAll bool) error {
	log := r.logger.With(zap.String("mode", "discover"))

	streams, src, err := r.open(log)
	if err != nil {
		return err
	}
	defer closeSource(src, log)

	cat := streams.Discover(selectAll)
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode catalog")
	}
	data = append(data, '\n')
	if _, err := r.out.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write catalog")
	}

	log.Info("discovery complete", zap.Int("streams", len(cat.Streams)))
	return ctx.Err()
}

// LoadState reads the starting bookmarks: from path when set, otherwise from
// the state store, otherwise empty.
func (r *Runner) LoadState(ctx context.Context, path string) (state.Bookmarks, error) {
	switch {
	case path != "":
		b, err := state.Load(path)
		if err != nil {
			return state.Bookmarks{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load state")
		}
		return b, nil
	case r.store != nil:
		b, err := r.store.Load(ctx)
		if err != nil {
			return state.Bookmarks{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load state from store")
		}
		return b, nil
	default:
		return state.New(), nil
	}
}

// Sync extracts every selected stream of cat, in catalog order, and returns
// the final bookmarks. A stream failure does not fail the run.
func (r *Runner) Sync(ctx context.Context, cat *catalog.Catalog, bookmarks state.Bookmarks) (state.Bookmarks, *Stats, error) {
	stats := &Stats{RunID: uuid.NewString()}
	started := time.Now()
	defer func() { stats.Duration = time.Since(started) }()

	ctx = logger.WithRunID(ctx, stats.RunID)
	log := logger.WithContext(ctx, r.logger)

	startDate, err := r.cfg.StartTime()
	if err != nil {
		return bookmarks, stats, err
	}

	streams, src, err := r.open(log)
	if err != nil {
		return bookmarks, stats, err
	}
	defer closeSource(src, log)

	if err := src.Login(ctx); err != nil {
		if !errors.IsFatal(err) {
			err = errors.Wrap(err, errors.ErrorTypeAuthentication, "login failed")
		}
		return bookmarks, stats, err
	}

	opts := []engine.Option{
		engine.WithRetryPolicy(base.NewRetryPolicy(r.cfg.RetryAttempts, r.cfg.RetryDelay)),
		engine.WithClock(r.now),
		engine.WithLogger(log),
	}
	if r.store != nil {
		opts = append(opts, engine.WithStateSaver(r.store))
	}
	eng := engine.New(r.sink, startDate, opts...)

	log.Info("starting sync", zap.Int("catalog_streams", len(cat.Streams)))
	for _, entry := range cat.Streams {
		name := entry.Stream
		slog := log.With(zap.String("stream", name))

		if !entry.IsSelected() {
			slog.Info("skipping stream: not selected")
			stats.Skipped = append(stats.Skipped, name)
			continue
		}
		if !known(streams, entry) {
			slog.Warn("skipping stream: not offered by the source")
			stats.Skipped = append(stats.Skipped, name)
			continue
		}

		table, err := streams.Resolve(entry, slog)
		if err != nil {
			return bookmarks, stats, err
		}

		slog.Info("syncing stream", zap.String("replication", table.Replication))
		bookmarks, err = eng.Sync(logger.WithStream(ctx, name), table, bookmarks)
		if err != nil {
			if errors.IsFatal(err) || ctx.Err() != nil {
				return bookmarks, stats, err
			}
			slog.Error("stream failed", zap.Error(err))
			metrics.StreamFailures.WithLabelValues(name).Inc()
			stats.Failed = append(stats.Failed, name)
			continue
		}
		stats.Synced = append(stats.Synced, name)
	}

	if err := r.finish(ctx, bookmarks); err != nil {
		return bookmarks, stats, err
	}

	log.Info("sync complete",
		zap.Strings("synced", stats.Synced),
		zap.Strings("failed", stats.Failed),
		zap.Int("skipped", len(stats.Skipped)),
		zap.Duration("duration", time.Since(started)))
	return bookmarks, stats, nil
}

func (r *Runner) open(log *zap.Logger) (*registry.Streams, registry.Source, error) {
	src, err := r.registry.CreateSource(r.source, r.cfg, log)
	if err != nil {
		return nil, nil, err
	}
	streams, err := registry.NewStreams(src)
	if err != nil {
		closeSource(src, log)
		return nil, nil, err
	}
	return streams, src, nil
}

// finish persists and announces the final bookmarks.
func (r *Runner) finish(ctx context.Context, bookmarks state.Bookmarks) error {
	if r.store != nil {
		if err := r.store.Save(ctx, bookmarks); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to save final state")
		}
	}
	if err := r.sink.WriteState(bookmarks); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write final state")
	}
	return nil
}

func known(streams *registry.Streams, entry *catalog.Entry) bool {
	if _, ok := streams.Get(entry.Stream); ok {
		return true
	}
	_, ok := streams.Get(entry.ID())
	return ok
}

func closeSource(src registry.Source, log *zap.Logger) {
	if err := src.Close(); err != nil {
		log.Warn("failed to close source", zap.Error(err))
	}
}
