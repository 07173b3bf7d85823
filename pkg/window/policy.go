package window

import (
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
)

// StartPolicy adjusts where a stream's sync begins.
type StartPolicy struct {
	// Rewind moves an existing bookmark back to pick up records that changed
	// after they were first read.
	Rewind time.Duration
	// Retention is how far back the remote source keeps data. Start dates
	// earlier than now-Retention are moved forward.
	Retention time.Duration
}

// StartInput carries what the start date depends on.
type StartInput struct {
	Stream      string
	Replication string
	// Bookmark is the stream's saved position; HasBookmark is false on a
	// first sync.
	Bookmark    time.Time
	HasBookmark bool
	// DefaultStart is the configured start_date.
	DefaultStart time.Time
	Now          time.Time
}

// StartDate returns the first window start for a stream.
//
// FULL_TABLE streams always start at the configured default. Incremental
// streams resume from their bookmark, moved back by the rewind when one is
// set. Either way the result is clamped to the retention horizon.
func (p StartPolicy) StartDate(in StartInput, logger *zap.Logger) time.Time {
	if logger == nil {
		logger = zap.NewNop()
	}

	start := in.DefaultStart
	if in.Replication != catalog.ReplicationFullTable && in.HasBookmark {
		start = in.Bookmark
		if p.Rewind > 0 {
			start = start.Add(-p.Rewind)
			logger.Info("rewinding start date",
				zap.String("stream", in.Stream),
				zap.Duration("rewind", p.Rewind),
				zap.Time("start", start))
		}
	}

	if p.Retention > 0 {
		earliest := in.Now.Add(-p.Retention)
		if start.Before(earliest) {
			logger.Warn("start date is older than the source retains, using the retention horizon",
				zap.String("stream", in.Stream),
				zap.Time("requested", start),
				zap.Time("start", earliest),
				zap.Duration("retention", p.Retention))
			start = earliest
		}
	}

	return start.UTC()
}
