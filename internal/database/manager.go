package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// State describes the Manager's pool at a point in time.
type State string

const (
	StateIdle        State = "idle"
	StateReady       State = "ready"
	StateClosing     State = "closing"
	StateSwapping    State = "swapping"
	StateUnavailable State = "unavailable"
	StateShutdown    State = "shutdown"
)

// Status is a snapshot of the Manager for health reporting.
type Status struct {
	State      State
	Host       string
	Database   string
	Generation uint64
	LastError  error
}

// Check inspects a freshly opened Handle before it is published. A non-nil
// error rejects the Handle.
type Check func(ctx context.Context, h Handle) error

// SwapResult is the outcome of a swap. Handle is nil when no pool is live.
type SwapResult struct {
	Handle   Handle
	Config   Config
	FellBack bool
}

// Manager owns at most one live pool. Swap and Shutdown are serialized; the
// old pool is fully closed before a new one becomes visible to Current.
type Manager struct {
	open     Opener
	fallback Config

	// lifecycle serializes every open and close. It is a weighted semaphore
	// rather than a mutex so waiters can give up when their context ends.
	lifecycle *semaphore.Weighted

	mu         sync.RWMutex
	current    Handle
	config     Config // last known good
	closing    bool
	swapping   bool
	shutdown   bool
	generation uint64
	lastErr    error
}

// NewManager creates a Manager that opens pools with open and falls back to
// fallback whenever a requested Config is rejected. No pool is opened until
// the first call to Current or Swap.
func NewManager(open Opener, fallback Config) *Manager {
	fallback = fallback.WithDefaults()
	return &Manager{
		open:      open,
		fallback:  fallback,
		config:    fallback,
		lifecycle: semaphore.NewWeighted(1),
	}
}

// Current returns the live Handle. When none exists it opens one from the last
// known good Config. It does not wait on the lifecycle lock if a Handle is live.
func (m *Manager) Current(ctx context.Context) (Handle, error) {
	m.mu.RLock()
	h, shut := m.current, m.shutdown
	m.mu.RUnlock()

	if h != nil {
		return h, nil
	}
	if shut {
		return nil, ErrShutdown
	}

	if err := m.lifecycle.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for database pool: %w", err)
	}
	defer m.lifecycle.Release(1)

	m.mu.RLock()
	h, shut, cfg := m.current, m.shutdown, m.config
	m.mu.RUnlock()

	if shut {
		return nil, ErrShutdown
	}
	if h != nil {
		return h, nil
	}

	h, err := m.install(ctx, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return h, nil
}

// Swap closes the live pool and opens one bound to cfg. Every check must pass
// before the new pool is published. If opening or any check fails, the
// fallback Config is installed instead and a *SwapError is returned alongside
// a result describing whatever pool is now live.
func (m *Manager) Swap(ctx context.Context, cfg Config, checks ...Check) (SwapResult, error) {
	if err := m.lifecycle.Acquire(ctx, 1); err != nil {
		return SwapResult{}, fmt.Errorf("waiting for database pool: %w", err)
	}
	defer m.lifecycle.Release(1)

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return SwapResult{}, ErrShutdown
	}
	m.swapping = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.swapping = false
		m.mu.Unlock()
	}()

	cfg = cfg.WithDefaults()
	m.retire()

	h, err := m.install(ctx, cfg, checks)
	if err == nil {
		return SwapResult{Handle: h, Config: cfg}, nil
	}
	if errors.Is(err, ErrShutdown) {
		return SwapResult{}, err
	}

	slog.Warn("rejected database config, restoring default",
		"target", cfg,
		"error", err,
	)

	res, fbErr := m.installFallback(ctx)
	return res, &SwapError{Config: cfg, Cause: err, Fallback: fbErr}
}

// Shutdown closes the live pool. Calls after the first are no-ops, including
// calls made while the first is still closing. It waits for an in-flight swap
// to finish even if ctx is done; every lifecycle holder is bounded by its
// connect and statement timeouts.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	if err := m.lifecycle.Acquire(context.WithoutCancel(ctx), 1); err != nil {
		return fmt.Errorf("waiting for database pool: %w", err)
	}
	defer m.lifecycle.Release(1)

	m.retire()
	return nil
}

// Status reports the Manager's current state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		Host:       m.config.Host,
		Database:   m.config.Database,
		Generation: m.generation,
		LastError:  m.lastErr,
	}
	switch {
	case m.shutdown:
		st.State = StateShutdown
	case m.swapping:
		st.State = StateSwapping
	case m.closing:
		st.State = StateClosing
	case m.current != nil:
		st.State = StateReady
	case m.generation == 0 && m.lastErr == nil:
		st.State = StateIdle
	default:
		st.State = StateUnavailable
	}
	return st
}

// Fallback returns the Config installed when a swap is rejected.
func (m *Manager) Fallback() Config {
	return m.fallback
}

// installFallback ignores the caller's cancellation: a swap must end with a
// live pool whenever the fallback Config can be opened. Callers must hold the
// lifecycle lock.
func (m *Manager) installFallback(ctx context.Context) (SwapResult, error) {
	m.retire()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.fallback.ConnectTimeout+m.fallback.StatementTimeout)
	defer cancel()

	h, err := m.install(ctx, m.fallback, nil)
	if err != nil {
		m.mu.Lock()
		m.config = m.fallback
		m.mu.Unlock()

		slog.Error("default database config unavailable", "target", m.fallback, "error", err)
		return SwapResult{Config: m.fallback, FellBack: true}, err
	}
	return SwapResult{Handle: h, Config: m.fallback, FellBack: true}, nil
}

// install opens a pool for cfg, runs checks and publishes it. Callers must
// hold the lifecycle lock and must have retired any previous pool.
func (m *Manager) install(ctx context.Context, cfg Config, checks []Check) (Handle, error) {
	h, err := m.open(ctx, cfg)
	if err != nil {
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			err = NewConnectionError(cfg, err)
		}
		m.recordFailure(err)
		return nil, err
	}

	for _, check := range checks {
		if err := check(ctx, h); err != nil {
			h.Close()
			m.recordFailure(err)
			return nil, err
		}
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		h.Close()
		return nil, ErrShutdown
	}
	m.current = h
	m.config = cfg
	m.lastErr = nil
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	slog.Info("database pool ready", "target", cfg, "generation", gen)
	return h, nil
}

func (m *Manager) recordFailure(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// retire unpublishes and closes the live pool, waiting for in-flight queries to
// release their connections. Callers must hold the lifecycle lock.
func (m *Manager) retire() {
	m.mu.Lock()
	h := m.current
	if h == nil || m.closing {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.closing = true
	gen := m.generation
	m.mu.Unlock()

	h.Close()

	m.mu.Lock()
	m.closing = false
	m.mu.Unlock()

	slog.Info("database pool closed", "target", h.Config(), "generation", gen)
}
