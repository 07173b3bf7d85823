package base

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultReportInterval is how often a running stream logs its progress.
const DefaultReportInterval = 30 * time.Second

// ProgressReporter periodically logs how many records a stream has emitted
// and how fast.
type ProgressReporter struct {
	logger         *zap.Logger
	reportInterval time.Duration

	records   int64
	windows   int64
	startTime time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewProgressReporter creates a progress reporter. A non-positive interval
// uses DefaultReportInterval.
func NewProgressReporter(logger *zap.Logger, interval time.Duration) *ProgressReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &ProgressReporter{
		logger:         logger,
		reportInterval: interval,
		startTime:      time.Now(),
		stopCh:         make(chan struct{}),
	}
}

// Start begins periodic progress reporting
func (pr *ProgressReporter) Start() {
	pr.wg.Add(1)
	go func() {
		defer pr.wg.Done()
		ticker := time.NewTicker(pr.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-pr.stopCh:
				return
			case <-ticker.C:
				pr.reportCurrentProgress()
			}
		}
	}()
}

// Stop ends periodic reporting and logs a final summary. It is safe to call
// more than once; only the first call reports.
func (pr *ProgressReporter) Stop() {
	pr.stopOnce.Do(func() {
		close(pr.stopCh)
		pr.wg.Wait()
		pr.reportFinalProgress()
	})
}

// IncrementRecords adds n emitted records.
func (pr *ProgressReporter) IncrementRecords(n int) {
	atomic.AddInt64(&pr.records, int64(n))
}

// IncrementWindows counts one completed window.
func (pr *ProgressReporter) IncrementWindows() {
	atomic.AddInt64(&pr.windows, 1)
}

// Records returns the number of records emitted so far.
func (pr *ProgressReporter) Records() int64 {
	return atomic.LoadInt64(&pr.records)
}

// Windows returns the number of completed windows.
func (pr *ProgressReporter) Windows() int64 {
	return atomic.LoadInt64(&pr.windows)
}

// Throughput returns the average records per second since the reporter was
// created.
func (pr *ProgressReporter) Throughput() float64 {
	elapsed := time.Since(pr.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(pr.Records()) / elapsed
}

func (pr *ProgressReporter) reportCurrentProgress() {
	pr.logger.Info("progress update",
		zap.Int64("records", pr.Records()),
		zap.Int64("windows", pr.Windows()),
		zap.Float64("throughput", pr.Throughput()),
		zap.Duration("elapsed", time.Since(pr.startTime)))
}

func (pr *ProgressReporter) reportFinalProgress() {
	pr.logger.Info("processing completed",
		zap.Int64("total_records", pr.Records()),
		zap.Int64("total_windows", pr.Windows()),
		zap.Float64("avg_throughput", pr.Throughput()),
		zap.Duration("total_time", time.Since(pr.startTime)))
}
