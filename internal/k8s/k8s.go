// Package k8s reads bootstrap database credentials from a Kubernetes Secret.
package k8s

import "context"

// HealthChecker reports Kubernetes API reachability.
type HealthChecker interface {
	CheckConnectivity(ctx context.Context) ConnectivityStatus
}
