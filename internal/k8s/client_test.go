package k8s

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/rest"
)

func TestCheckConnectivity_ReportsServerVersion(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.UserAgent()
		if r.URL.Path != "/version" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"major":"1","minor":"35","gitVersion":"v1.35.0"}`))
	}))
	defer srv.Close()

	c, err := newClient(&rest.Config{Host: srv.URL})
	require.NoError(t, err)

	status := c.CheckConnectivity(context.Background())

	assert.True(t, status.Connected)
	assert.Equal(t, "v1.35.0", status.Version)
	assert.Equal(t, userAgent, gotAgent)
}

func TestCheckConnectivity_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := newClient(&rest.Config{Host: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, ConnectivityStatus{}, c.CheckConnectivity(context.Background()))
}

func TestCheckConnectivity_HonorsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c, err := newClient(&rest.Config{Host: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, c.CheckConnectivity(ctx).Connected)
}

func TestConnect_MissingKubeconfig(t *testing.T) {
	_, err := Connect(filepath.Join(t.TempDir(), "absent"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kubeconfig")
}
