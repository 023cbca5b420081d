// Package reconciler keeps the live database pool reachable. It polls the
// pool manager and restores the default target once the live pool has failed
// enough consecutive health checks.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/daap14/hafgate/internal/database"
)

// DefaultFailureThreshold is used when New is given a threshold below 1.
const DefaultFailureThreshold = 3

// Pools is the part of the pool manager the reconciler drives.
type Pools interface {
	Current(ctx context.Context) (database.Handle, error)
	Swap(ctx context.Context, cfg database.Config, checks ...database.Check) (database.SwapResult, error)
	Status() database.Status
	Fallback() database.Config
}

// Reconciler polls the live pool and reopens the default target when the
// live pool stays unreachable.
type Reconciler struct {
	pools     Pools
	interval  time.Duration
	timeout   time.Duration
	threshold int

	failures int
}

// New creates a new Reconciler. Each ping is bounded by timeout.
func New(pools Pools, interval, timeout time.Duration, threshold int) *Reconciler {
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}
	return &Reconciler{
		pools:     pools,
		interval:  interval,
		timeout:   timeout,
		threshold: threshold,
	}
}

// Start begins the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	slog.Info("reconciler started", "interval", r.interval.String(), "threshold", r.threshold)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.Reconcile(ctx)
		}
	}
}

// Reconcile runs one health check. It reports whether the default target was
// reinstalled.
func (r *Reconciler) Reconcile(ctx context.Context) bool {
	if r.pools.Status().State == database.StateShutdown {
		return false
	}

	err := r.check(ctx)
	if err == nil {
		if r.failures > 0 {
			slog.Info("reconciler: database pool recovered", "failures", r.failures)
		}
		r.failures = 0
		return false
	}
	if errors.Is(err, database.ErrShutdown) || ctx.Err() != nil {
		return false
	}

	r.failures++
	slog.Warn("reconciler: database health check failed",
		"failures", r.failures,
		"threshold", r.threshold,
		"error", err,
	)
	if r.failures < r.threshold {
		return false
	}

	r.failures = 0
	return r.restore(ctx)
}

func (r *Reconciler) check(ctx context.Context) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	h, err := r.pools.Current(ctx)
	if err != nil {
		return err
	}
	return h.Ping(ctx)
}

func (r *Reconciler) restore(ctx context.Context) bool {
	fallback := r.pools.Fallback()

	res, err := r.pools.Swap(ctx, fallback)
	if err != nil {
		slog.Error("reconciler: failed to restore default database",
			"target", fallback,
			"error", err,
		)
		return res.Handle != nil
	}

	slog.Warn("reconciler: default database restored", "target", res.Config)
	return true
}
