// Package engine runs the sync of one stream: it emits the schema, walks the
// stream's windows and pages, projects and emits records, and advances and
// persists the bookmark after every completed window.
package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/base"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/core"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/metrics"
	"github.com/ajitpratap0/bronto-tap/pkg/state"
	"github.com/ajitpratap0/bronto-tap/pkg/window"
)

const tracerName = "github.com/ajitpratap0/bronto-tap/pkg/connector/engine"

// Table is everything the engine needs to sync one stream.
type Table struct {
	Stream        string
	KeyProperties []string
	Schema        *catalog.Schema
	// Selection defaults to the selection computed from Schema.
	Selection   *catalog.Selection
	Replication string

	// BookmarkProperty names the bookmark field. Streams without one are
	// read in a single unwindowed pass and never bookmarked.
	BookmarkProperty string
	Interval         time.Duration
	StartPolicy      window.StartPolicy

	Pagination core.Pagination
	Session    core.Session
	Query      core.QueryFunc

	// DerivedID, when set, stamps a surrogate key on each raw record before
	// projection.
	DerivedID *base.DerivedID
}

// Windowed reports whether the stream is read window by window.
func (t *Table) Windowed() bool {
	return t.BookmarkProperty != "" && t.Interval > 0
}

// Engine syncs tables one at a time into a sink.
type Engine struct {
	sink      core.Sink
	saver     core.StateSaver
	retry     *base.RetryPolicy
	startDate time.Time
	now       func() time.Time
	tracer    trace.Tracer
	logger    *zap.Logger

	progressInterval time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithStateSaver persists bookmarks after every window in addition to the
// STATE message.
func WithStateSaver(s core.StateSaver) Option {
	return func(e *Engine) { e.saver = s }
}

// WithRetryPolicy sets the page request retry policy.
func WithRetryPolicy(p *base.RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTracer sets the tracer spans are started on.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithProgressInterval sets how often a running stream logs its progress.
func WithProgressInterval(d time.Duration) Option {
	return func(e *Engine) { e.progressInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine writing to sink. startDate is the configured default
// start of incremental streams.
func New(sink core.Sink, startDate time.Time, opts ...Option) *Engine {
	e := &Engine{
		sink:      sink,
		startDate: startDate.UTC(),
		now:       time.Now,
		retry:     base.DefaultRetryPolicy(),
		tracer:    otel.Tracer(tracerName),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync extracts one table and returns the bookmarks as of the last completed
// window. On error the returned bookmarks are still valid: they hold every
// window that completed before the failure.
func (e *Engine) Sync(ctx context.Context, t *Table, bookmarks state.Bookmarks) (state.Bookmarks, error) {
	ctx, span := e.tracer.Start(ctx, "sync.stream", trace.WithAttributes(
		attribute.String("stream", t.Stream),
		attribute.String("replication", t.Replication),
	))
	defer span.End()

	logger := e.logger.With(zap.String("stream", t.Stream))

	out, err := e.sync(ctx, t, bookmarks, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (e *Engine) sync(ctx context.Context, t *Table, bookmarks state.Bookmarks, logger *zap.Logger) (state.Bookmarks, error) {
	var bookmarkProps []string
	if t.Windowed() {
		bookmarkProps = []string{t.BookmarkProperty}
	}
	if err := e.sink.WriteSchema(t.Stream, t.Schema, t.KeyProperties, bookmarkProps); err != nil {
		return bookmarks, errors.Wrap(err, errors.ErrorTypeStream, "failed to write schema")
	}

	sel := t.Selection
	if sel == nil {
		sel = catalog.ComputeSelection(t.Schema)
	}
	pager := base.NewPageIterator(t.Stream, t.Session, e.tracedQuery(t), t.Pagination, e.retry, logger)

	progress := base.NewProgressReporter(logger, e.progressInterval)
	progress.Start()
	defer progress.Stop()

	if !t.Windowed() {
		logger.Info("syncing stream in a single pass")
		n, err := e.syncWindow(ctx, t, sel, pager, window.Window{}, progress)
		if err != nil {
			return bookmarks, errors.Wrap(err, errors.ErrorTypeStream, "sync failed")
		}
		logger.Info("stream synced", zap.Int("records", n))
		return bookmarks, nil
	}

	start, err := e.startFor(t, bookmarks, logger)
	if err != nil {
		return bookmarks, err
	}

	total := 0
	it := window.NewIterator(start, t.Interval, e.now)
	for it.Next() {
		w := it.Window()
		logger.Info("fetching window",
			zap.String("start", w.Start.Format(time.RFC3339)),
			zap.String("end", w.End.Format(time.RFC3339)))

		n, err := e.syncWindow(ctx, t, sel, pager, w, progress)
		if err != nil {
			return bookmarks, errors.Wrap(err, errors.ErrorTypeStream, "window failed").
				WithDetail("window", w.String())
		}
		total += n

		bookmarks = advance(bookmarks, t, w.End)
		if err := e.persist(ctx, bookmarks); err != nil {
			return bookmarks, err
		}
		progress.IncrementWindows()
		metrics.WindowsCompleted.WithLabelValues(t.Stream).Inc()
		metrics.BookmarkTimestamp.WithLabelValues(t.Stream).Set(float64(w.End.Unix()))
	}

	logger.Info("stream synced", zap.Int("records", total))
	return bookmarks, nil
}

// startFor resolves the first window start from the bookmark and policy.
func (e *Engine) startFor(t *Table, bookmarks state.Bookmarks, logger *zap.Logger) (time.Time, error) {
	bookmark, ok, err := bookmarks.GetTime(t.Stream, t.BookmarkProperty)
	if err != nil {
		return time.Time{}, err
	}

	replication := t.Replication
	if replication == "" {
		replication = catalog.ReplicationIncremental
	}

	return t.StartPolicy.StartDate(window.StartInput{
		Stream:       t.Stream,
		Replication:  replication,
		Bookmark:     bookmark,
		HasBookmark:  ok,
		DefaultStart: e.startDate,
		Now:          e.now(),
	}, logger), nil
}

// syncWindow emits every record of one window and returns the count.
func (e *Engine) syncWindow(ctx context.Context, t *Table, sel *catalog.Selection, pager *base.PageIterator, w window.Window, progress *base.ProgressReporter) (int, error) {
	ctx, span := e.tracer.Start(ctx, "sync.window", trace.WithAttributes(
		attribute.String("stream", t.Stream),
		attribute.String("window.start", w.Start.Format(time.RFC3339)),
		attribute.String("window.end", w.End.Format(time.RFC3339)),
	))
	defer span.End()

	count := 0
	pages := pager.Pages(ctx, w)
	for pages.Next() {
		for _, raw := range pages.Records() {
			if t.DerivedID != nil {
				t.DerivedID.Apply(raw)
			}
			if err := e.sink.WriteRecord(t.Stream, sel.Project(raw)); err != nil {
				span.RecordError(err)
				return count, errors.Wrap(err, errors.ErrorTypeStream, "failed to write record")
			}
			count++
		}
		progress.IncrementRecords(len(pages.Records()))
		metrics.RecordsEmitted.WithLabelValues(t.Stream).Add(float64(len(pages.Records())))
	}
	if err := pages.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return count, err
	}

	span.SetAttributes(attribute.Int("records", count), attribute.Int("pages", pages.Fetched()))
	return count, nil
}

// persist saves the bookmarks, then announces them with a STATE message.
func (e *Engine) persist(ctx context.Context, bookmarks state.Bookmarks) error {
	if e.saver != nil {
		if err := e.saver.Save(ctx, bookmarks); err != nil {
			return errors.Wrap(err, errors.ErrorTypeStream, "failed to persist state")
		}
	}
	if err := e.sink.WriteState(bookmarks); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStream, "failed to write state")
	}
	return nil
}

func (e *Engine) tracedQuery(t *Table) core.QueryFunc {
	return func(ctx context.Context, w window.Window, c core.Cursor) (core.PageResult, error) {
		ctx, span := e.tracer.Start(ctx, "sync.page", trace.WithAttributes(
			attribute.String("stream", t.Stream),
			attribute.Int("page", c.Page),
		))
		defer span.End()

		res, err := t.Query(ctx, w, c)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
		span.SetAttributes(
			attribute.Int("records", len(res.Records)),
			attribute.Bool("end_of_window", res.Outcome == core.OutcomeEndOfWindow),
		)
		return res, nil
	}
}

// advance moves the table's bookmark to end, truncated to the second. A
// bookmark never moves backwards: rewound windows that end before the stored
// value leave it unchanged.
func advance(bookmarks state.Bookmarks, t *Table, end time.Time) state.Bookmarks {
	end = end.UTC().Truncate(time.Second)
	if current, ok, err := bookmarks.GetTime(t.Stream, t.BookmarkProperty); err == nil && ok && current.After(end) {
		return bookmarks
	}
	return bookmarks.Set(t.Stream, t.BookmarkProperty, end)
}
