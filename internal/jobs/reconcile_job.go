package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// MarketReconciler re-reads market state from the contracts.
type MarketReconciler interface {
	ReconcileAll(ctx context.Context) error
	ReconcileMarket(ctx context.Context, marketID uint) error
}

// ReconcileJob periodically syncs every market with its contract. A run that
// is still going when the next one fires is skipped.
type ReconcileJob struct {
	reconciler MarketReconciler
	timeout    time.Duration
	logger     *zap.Logger
	running    atomic.Bool
}

func NewReconcileJob(reconciler MarketReconciler, timeout time.Duration, logger *zap.Logger) *ReconcileJob {
	return &ReconcileJob{
		reconciler: reconciler,
		timeout:    timeout,
		logger:     logger,
	}
}

// Register adds the job to runner under spec.
func (j *ReconcileJob) Register(runner *Runner, spec string) error {
	_, err := runner.Add(spec, j.Run)
	return err
}

// Run reconciles all markets once.
func (j *ReconcileJob) Run(ctx context.Context) {
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Debug("reconcile still running, skipping tick")
		return
	}
	defer j.running.Store(false)

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := j.reconciler.ReconcileAll(ctx); err != nil {
		j.logger.Warn("reconcile finished with errors", zap.Error(err), zap.Duration("took", time.Since(start)))
		return
	}
	j.logger.Debug("reconcile finished", zap.Duration("took", time.Since(start)))
}
