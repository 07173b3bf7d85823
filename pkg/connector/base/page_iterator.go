package base

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bronto-tap/pkg/connector/core"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/metrics"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
	"github.com/ajitpratap0/bronto-tap/pkg/window"
)

// PageIterator drives the page requests of one stream.
type PageIterator struct {
	stream     string
	session    core.Session
	query      core.QueryFunc
	pagination core.Pagination
	retry      *RetryPolicy
	logger     *zap.Logger
}

// NewPageIterator creates an iterator for stream. A nil retry policy means
// the default of five attempts.
func NewPageIterator(stream string, session core.Session, query core.QueryFunc, pagination core.Pagination, retry *RetryPolicy, logger *zap.Logger) *PageIterator {
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger = logger.With(zap.String("stream", stream))
	retry = retry.Clone()
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.RequestRetries.WithLabelValues(stream).Inc()
		logger.Warn("request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	return &PageIterator{
		stream:     stream,
		session:    session,
		query:      query,
		pagination: pagination,
		retry:      retry,
		logger:     logger,
	}
}

// Pages starts reading the pages of w.
func (it *PageIterator) Pages(ctx context.Context, w window.Window) *Pages {
	return &Pages{
		it:     it,
		ctx:    ctx,
		window: w,
		cursor: core.FirstCursor(it.pagination),
	}
}

// fetch logs in and reads one page, retrying the pair on timeouts and
// expired sessions.
func (it *PageIterator) fetch(ctx context.Context, w window.Window, c core.Cursor) (core.PageResult, error) {
	var result core.PageResult

	timer := metrics.NewTimer()
	err := it.retry.ExecuteWithCondition(ctx, func() error {
		if it.session != nil {
			if err := it.session.Login(ctx); err != nil {
				return errors.Wrap(err, errors.ErrorTypeAuthentication, "login failed")
			}
		}

		res, err := it.query(ctx, w, c)
		if err != nil {
			return err
		}
		result = res
		return nil
	}, errors.IsRetryable)
	metrics.PageLatency.WithLabelValues(it.stream).Observe(timer.Stop().Seconds())

	if err != nil {
		metrics.PagesFetched.WithLabelValues(it.stream, metrics.OutcomeError).Inc()
		return core.PageResult{}, err
	}

	switch {
	case result.Outcome == core.OutcomeEndOfWindow:
		metrics.PagesFetched.WithLabelValues(it.stream, metrics.OutcomeEndOfWindow).Inc()
	case len(result.Records) == 0:
		metrics.PagesFetched.WithLabelValues(it.stream, metrics.OutcomeEmpty).Inc()
	default:
		metrics.PagesFetched.WithLabelValues(it.stream, metrics.OutcomeRecords).Inc()
	}
	return result, nil
}

// Pages is a finite, lazy sequence of record batches within one window. A
// page is only requested when Next is called.
//
//	pages := it.Pages(ctx, w)
//	for pages.Next() {
//		for _, rec := range pages.Records() {
//			...
//		}
//	}
//	if err := pages.Err(); err != nil {
//		...
//	}
type Pages struct {
	it      *PageIterator
	ctx     context.Context
	window  window.Window
	cursor  core.Cursor
	records []*models.Record
	fetched int
	done    bool
	err     error
}

// Next requests the next page. It returns false once the window is exhausted,
// either by an empty page or by the end-of-window signal, or when the request
// failed.
func (p *Pages) Next() bool {
	if p.done {
		return false
	}
	if err := p.ctx.Err(); err != nil {
		p.finish(errors.Wrap(err, errors.ErrorTypeStream, "sync cancelled"))
		return false
	}

	res, err := p.it.fetch(p.ctx, p.window, p.cursor)
	if err != nil {
		p.finish(err)
		return false
	}

	if res.Outcome == core.OutcomeEndOfWindow {
		p.it.logger.Debug("end of window signalled", zap.Int("page", p.cursor.Page))
		p.finish(nil)
		return false
	}

	p.it.logger.Info("fetched page",
		zap.Int("page", p.cursor.Page),
		zap.Int("results", len(res.Records)))

	if len(res.Records) == 0 {
		p.finish(nil)
		return false
	}

	p.records = res.Records
	p.fetched++
	p.cursor = p.cursor.Next()
	return true
}

func (p *Pages) finish(err error) {
	p.done = true
	p.records = nil
	p.err = err
}

// Records returns the batch read by the last successful Next.
func (p *Pages) Records() []*models.Record {
	return p.records
}

// Cursor returns the cursor of the page that Next will request.
func (p *Pages) Cursor() core.Cursor {
	return p.cursor
}

// Fetched returns how many non-empty pages were read.
func (p *Pages) Fetched() int {
	return p.fetched
}

// Err returns the error that ended iteration, if any.
func (p *Pages) Err() error {
	return p.err
}
