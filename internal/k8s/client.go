package k8s

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/version"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	userAgent      = "hafgate"
	requestTimeout = 5 * time.Second
)

// Client talks to the API server hafgate runs under. It reads the credentials
// Secret and answers health checks.
type Client struct {
	dynamic   dynamic.Interface
	discovery discovery.DiscoveryInterface
}

// ConnectivityStatus is the outcome of CheckConnectivity. Version is the
// server's git version and is empty when Connected is false.
type ConnectivityStatus struct {
	Connected bool
	Version   string
}

// Connect builds a Client. An empty kubeconfig means hafgate is running in a
// pod and uses its service account.
func Connect(kubeconfig string) (*Client, error) {
	cfg, err := restConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	return newClient(cfg)
}

func newClient(cfg *rest.Config) (*Client, error) {
	cfg = rest.CopyConfig(cfg)
	cfg.UserAgent = userAgent
	if cfg.Timeout == 0 {
		cfg.Timeout = requestTimeout
	}

	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("secret client: %w", err)
	}
	disc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("version client: %w", err)
	}
	return &Client{dynamic: dyn, discovery: disc}, nil
}

// CheckConnectivity asks the API server for its version, bounded by ctx.
func (c *Client) CheckConnectivity(ctx context.Context) ConnectivityStatus {
	raw, err := c.discovery.RESTClient().Get().AbsPath("/version").Do(ctx).Raw()
	if err != nil {
		return ConnectivityStatus{}
	}
	var info version.Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return ConnectivityStatus{}
	}
	return ConnectivityStatus{Connected: true, Version: info.GitVersion}
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		cfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("in-cluster config (set KUBECONFIG_PATH outside a pod): %w", err)
		}
		return cfg, nil
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("kubeconfig %s: %w", kubeconfig, err)
	}
	return cfg, nil
}
