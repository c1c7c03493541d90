package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"casas_scrooper/services"
	"casas_scrooper/storage"
)

// DedupRunner runs one deduplication pass over stored listings.
type DedupRunner interface {
	Run(ctx context.Context, filter storage.ListingFilter) (*services.DedupOutcome, error)
}

// DedupWorker rebuilds the canonical listing set on an interval or on demand.
type DedupWorker struct {
	runner    DedupRunner
	logger    *zap.Logger
	triggerCh chan struct{}
	mu        sync.Mutex
}

func NewDedupWorker(runner DedupRunner, logger *zap.Logger) *DedupWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DedupWorker{
		runner:    runner,
		logger:    logger.Named("dedup"),
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run as soon as it is idle. Triggers received
// while a pass is pending collapse into one.
func (w *DedupWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done. A non-positive interval disables the timer so
// the worker only reacts to Trigger.
func (w *DedupWorker) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("dedup worker stopping")
			return
		case <-tick:
			w.RunOnce(ctx)
		case <-w.triggerCh:
			w.logger.Info("dedup worker triggered manually")
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a full pass. Concurrent calls are serialized.
func (w *DedupWorker) RunOnce(ctx context.Context) (*services.DedupOutcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	outcome, err := w.runner.Run(ctx, storage.ListingFilter{})
	if err != nil {
		w.logger.Error("dedup pass failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return outcome, err
	}

	w.logger.Info("dedup pass completed",
		zap.String("run_id", outcome.Run.ID),
		zap.Int("listings_in", outcome.Run.ListingsIn),
		zap.Int("listings_out", outcome.Run.ListingsOut),
		zap.String("deduplication_rate", outcome.Run.DeduplicationRate),
		zap.Duration("elapsed", time.Since(start)))
	return outcome, nil
}
