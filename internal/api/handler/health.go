package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/daap14/hafgate/internal/api/middleware"
	"github.com/daap14/hafgate/internal/api/response"
	"github.com/daap14/hafgate/internal/database"
	"github.com/daap14/hafgate/internal/k8s"
)

const healthPingTimeout = 2 * time.Second

// Pinger checks a dependency's connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	pools      PoolSource
	k8sChecker k8s.HealthChecker
	cache      Pinger
	version    string
}

// HealthOption configures optional dependencies reported by HealthHandler.
type HealthOption func(*HealthHandler)

// WithKubernetes reports Kubernetes API connectivity.
func WithKubernetes(checker k8s.HealthChecker) HealthOption {
	return func(h *HealthHandler) {
		h.k8sChecker = checker
	}
}

// WithCache reports result cache connectivity.
func WithCache(cache Pinger) HealthOption {
	return func(h *HealthHandler) {
		h.cache = cache
	}
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(pools PoolSource, version string, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{pools: pools, version: version}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type databaseStatus struct {
	Connected  bool   `json:"connected"`
	State      string `json:"state"`
	Host       string `json:"host"`
	Database   string `json:"database"`
	Generation uint64 `json:"generation"`
	Error      string `json:"error,omitempty"`
}

type kubernetesStatus struct {
	Connected bool    `json:"connected"`
	Version   *string `json:"version"`
}

type cacheStatus struct {
	Connected bool `json:"connected"`
}

type healthData struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Database   databaseStatus    `json:"database"`
	Kubernetes *kubernetesStatus `json:"kubernetes,omitempty"`
	Cache      *cacheStatus      `json:"cache,omitempty"`
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	data := healthData{
		Status:   "healthy",
		Version:  h.version,
		Database: h.checkDatabase(ctx),
	}
	if !data.Database.Connected && data.Database.State != string(database.StateSwapping) {
		data.Status = "degraded"
	}

	if h.k8sChecker != nil {
		conn := h.k8sChecker.CheckConnectivity(ctx)
		ks := &kubernetesStatus{Connected: conn.Connected}
		if conn.Connected {
			ks.Version = &conn.Version
		}
		data.Kubernetes = ks
	}

	if h.cache != nil {
		cs := &cacheStatus{Connected: h.cache.Ping(ctx) == nil}
		if !cs.Connected {
			data.Status = "degraded"
		}
		data.Cache = cs
	}

	response.Success(w, http.StatusOK, data, requestID)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) databaseStatus {
	st := databaseStatus{}

	status := h.pools.Status()

	// A swap holds the lifecycle lock; Current would block until it ends.
	switch status.State {
	case database.StateShutdown, database.StateSwapping:
	default:
		pool, err := h.pools.Current(ctx)
		if err == nil {
			err = pool.Ping(ctx)
		}
		if err != nil {
			st.Error = err.Error()
		} else {
			st.Connected = true
		}
		status = h.pools.Status()
	}

	st.State = string(status.State)
	st.Host = status.Host
	st.Database = status.Database
	st.Generation = status.Generation
	if st.Error == "" && status.LastError != nil && !st.Connected {
		st.Error = status.LastError.Error()
	}
	return st
}
