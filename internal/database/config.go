package database

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// DefaultConnectTimeout bounds dialing and authenticating a new connection.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultStatementTimeout is sent to the server as statement_timeout.
	DefaultStatementTimeout = 10 * time.Second

	defaultSSLMode  = "prefer"
	defaultMaxConns = 10
	applicationName = "hafgate"
)

var validSSLModes = map[string]bool{
	"disable": true, "allow": true, "prefer": true,
	"require": true, "verify-ca": true, "verify-full": true,
}

// Config describes how to reach a PostgreSQL server. It is passed by value and
// never modified once a pool has been built from it.
type Config struct {
	Host             string
	Port             int
	Database         string
	User             string
	Password         string
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
	SSLMode          string
	MaxConns         int32
}

// WithDefaults returns a copy of c with zero-valued tuning fields filled in.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.StatementTimeout == 0 {
		c.StatementTimeout = DefaultStatementTimeout
	}
	if c.SSLMode == "" {
		c.SSLMode = defaultSSLMode
	}
	if c.MaxConns == 0 {
		c.MaxConns = defaultMaxConns
	}
	return c
}

// Validate reports every structural problem with c. It does not touch the network.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range 1-65535", c.Port))
	}
	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if strings.TrimSpace(c.User) == "" {
		errs = append(errs, errors.New("user is required"))
	}
	if c.ConnectTimeout < 0 || c.StatementTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.SSLMode != "" && !validSSLModes[c.SSLMode] {
		errs = append(errs, fmt.Errorf("unsupported sslmode %q", c.SSLMode))
	}
	if c.MaxConns < 0 {
		errs = append(errs, errors.New("max connections must not be negative"))
	}

	return errors.Join(errs...)
}

// Fingerprint identifies the target server, database and role. It never
// contains the password.
func (c Config) Fingerprint() string {
	return fmt.Sprintf("%s@%s/%s", c.User, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database)
}

// LogValue keeps passwords out of structured logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("host", c.Host),
		slog.Int("port", c.Port),
		slog.String("database", c.Database),
		slog.String("user", c.User),
	)
}

// connString renders c as a postgres:// URL with every component escaped.
func (c Config) connString() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("application_name", applicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// poolConfig builds the pgxpool configuration for c.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	c = c.WithDefaults()

	poolCfg, err := pgxpool.ParseConfig(c.connString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = c.MaxConns
	poolCfg.MinConns = 0
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = c.ConnectTimeout
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(c.StatementTimeout.Milliseconds(), 10)

	return poolCfg, nil
}
