package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/puddle/v2"
)

// ErrShutdown is returned by every Manager operation after Shutdown has begun.
var ErrShutdown = errors.New("pool manager is shut down")

// ErrUnavailable is returned when no pool is live and none could be opened.
var ErrUnavailable = errors.New("no database pool available")

// ConnectionError reports a network or authentication failure against a target.
type ConnectionError struct {
	Host     string
	Port     int
	Database string
	Err      error
}

// NewConnectionError wraps err with the target described by cfg.
func NewConnectionError(cfg Config, err error) *ConnectionError {
	return &ConnectionError{Host: cfg.Host, Port: cfg.Port, Database: cfg.Database, Err: err}
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s:%d/%s: %v", e.Host, e.Port, e.Database, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SwapError reports a swap that did not install the requested Config. Cause is
// why it was rejected. Fallback is nil when the default pool took its place.
type SwapError struct {
	Config   Config
	Cause    error
	Fallback error
}

func (e *SwapError) Error() string {
	if e.Fallback != nil {
		return fmt.Sprintf("%v (fallback failed: %v)", e.Cause, e.Fallback)
	}
	return e.Cause.Error()
}

func (e *SwapError) Unwrap() []error {
	if e.Fallback != nil {
		return []error{e.Cause, e.Fallback}
	}
	return []error{e.Cause}
}

// IsPoolClosed reports whether err came from a pool that was closed while
// the caller still held its handle, as happens when a swap retires it.
func IsPoolClosed(err error) bool {
	return errors.Is(err, puddle.ErrClosedPool)
}

// ErrorCode extracts a short machine-readable code from err: the SQLSTATE for
// server errors, or an errno-style name for common network failures.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return "ENOTFOUND"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, syscall.ECONNRESET):
		return "ECONNRESET"
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return "ETIMEDOUT"
	}
	return ""
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}
