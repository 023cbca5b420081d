package k8s

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"

	"github.com/daap14/hafgate/internal/database"
)

var secretGVR = schema.GroupVersionResource{
	Group:    "",
	Version:  "v1",
	Resource: "secrets",
}

// Keys read from the credentials Secret. Only host, database and user are
// required.
const (
	KeyHost     = "host"
	KeyPort     = "port"
	KeyDatabase = "database"
	KeyUser     = "user"
	KeyPassword = "password"
)

// ErrSecretNotFound is returned when the credentials Secret does not exist.
var ErrSecretNotFound = errors.New("credentials secret not found")

// SecretSource loads a database.Config from a Secret.
type SecretSource struct {
	dynamic   dynamic.Interface
	namespace string
	name      string
}

// NewSecretSource creates a SecretSource for namespace/name.
func (c *Client) NewSecretSource(namespace, name string) *SecretSource {
	return &SecretSource{dynamic: c.dynamic, namespace: namespace, name: name}
}

// Load reads the Secret and overlays its values on base. Keys absent from the
// Secret keep base's values.
func (s *SecretSource) Load(ctx context.Context, base database.Config) (database.Config, error) {
	obj, err := s.dynamic.Resource(secretGVR).Namespace(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		return database.Config{}, fmt.Errorf("%w: %s/%s", ErrSecretNotFound, s.namespace, s.name)
	}
	if err != nil {
		return database.Config{}, fmt.Errorf("getting secret %s/%s: %w", s.namespace, s.name, err)
	}

	var secret corev1.Secret
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &secret); err != nil {
		return database.Config{}, fmt.Errorf("converting secret %s/%s: %w", s.namespace, s.name, err)
	}

	cfg, err := configFromData(base, secret.Data)
	if err != nil {
		return database.Config{}, fmt.Errorf("secret %s/%s: %w", s.namespace, s.name, err)
	}
	return cfg, nil
}

func configFromData(cfg database.Config, data map[string][]byte) (database.Config, error) {
	str := func(key string) (string, bool) {
		v, ok := data[key]
		if !ok {
			return "", false
		}
		return strings.TrimSpace(string(v)), true
	}

	if v, ok := str(KeyHost); ok {
		cfg.Host = v
	}
	if v, ok := str(KeyDatabase); ok {
		cfg.Database = v
	}
	if v, ok := str(KeyUser); ok {
		cfg.User = v
	}
	if v, ok := data[KeyPassword]; ok {
		cfg.Password = string(v)
	}
	if v, ok := str(KeyPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return database.Config{}, fmt.Errorf("invalid %s %q: %w", KeyPort, v, err)
		}
		cfg.Port = port
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return database.Config{}, err
	}
	return cfg, nil
}
