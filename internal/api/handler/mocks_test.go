package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/daap14/hafgate/internal/credentials"
	"github.com/daap14/hafgate/internal/database"
	"github.com/daap14/hafgate/internal/posts"
)

// --- Mock pool source ---

type stubHandle struct {
	cfg     database.Config
	pingErr error
}

func (h *stubHandle) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (h *stubHandle) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row { return nil }
func (h *stubHandle) Ping(_ context.Context) error                          { return h.pingErr }
func (h *stubHandle) Config() database.Config                               { return h.cfg }
func (h *stubHandle) Close()                                                {}

type mockPools struct {
	currentFn func(ctx context.Context) (database.Handle, error)
	status    database.Status
}

func (m *mockPools) Current(ctx context.Context) (database.Handle, error) {
	return m.currentFn(ctx)
}

func (m *mockPools) Status() database.Status {
	return m.status
}

func readyPools(h *stubHandle) *mockPools {
	return &mockPools{
		currentFn: func(_ context.Context) (database.Handle, error) { return h, nil },
		status: database.Status{
			State:      database.StateReady,
			Host:       h.cfg.Host,
			Database:   h.cfg.Database,
			Generation: 1,
		},
	}
}

// --- Mock credentials service ---

type mockUpdater struct {
	updateFn func(cfg database.Config) (credentials.Outcome, error)
	got      database.Config
	calls    int
}

func (m *mockUpdater) Update(_ context.Context, cfg database.Config) (credentials.Outcome, error) {
	m.calls++
	m.got = cfg
	return m.updateFn(cfg)
}

// --- Mock query runner ---

type mockRunner struct {
	runFn func(req posts.Request) (*posts.Result, error)
	got   posts.Request
	calls int
}

func (m *mockRunner) Run(_ context.Context, _ database.Handle, req posts.Request) (*posts.Result, error) {
	m.calls++
	m.got = req
	return m.runFn(req)
}

// --- Helpers ---

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}
