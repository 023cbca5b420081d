// Package credentials implements the "update credentials" use case: swap the
// live pool to a caller-supplied target, validate it, and fall back to the
// default target when either step fails.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/daap14/hafgate/internal/database"
	"github.com/daap14/hafgate/internal/schemacheck"
)

var tracer = otel.Tracer("hafgate/credentials")

// ErrInvalidConfig is wrapped when the supplied target is rejected before any
// connection is attempted.
var ErrInvalidConfig = errors.New("invalid database config")

// Error types reported to clients.
const (
	TypeConnection  = "ConnectionError"
	TypeValidation  = "ValidationError"
	TypeUnavailable = "UnavailableError"
	TypeInvalid     = "InvalidConfigError"
	TypeInternal    = "Error"
)

// Swapper replaces the live pool.
type Swapper interface {
	Swap(ctx context.Context, cfg database.Config, checks ...database.Check) (database.SwapResult, error)
}

// Validator inspects a freshly opened pool.
type Validator interface {
	Validate(ctx context.Context, q database.Querier) (schemacheck.Report, error)
}

// Outcome describes a finished update attempt.
type Outcome struct {
	// Config is the target that is live after the attempt.
	Config database.Config
	// Report is what validation learned about the requested target.
	Report schemacheck.Report
	// FellBack is set when the requested target was rejected.
	FellBack bool
	// Restored is set when the default target is live after a fallback.
	Restored bool
}

// Service runs credential updates.
type Service struct {
	pools     Swapper
	validator Validator
}

// NewService creates a Service.
func NewService(pools Swapper, validator Validator) *Service {
	return &Service{pools: pools, validator: validator}
}

// Update switches the live pool to cfg. The new pool is published only after
// it passes validation. On failure the returned Outcome describes the pool that
// is live instead, and the error is a *database.SwapError.
func (s *Service) Update(ctx context.Context, cfg database.Config) (Outcome, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	ctx, span := tracer.Start(ctx, "credentials.Update", trace.WithAttributes(
		attribute.String("db.host", cfg.Host),
		attribute.Int("db.port", cfg.Port),
		attribute.String("db.name", cfg.Database),
	))
	defer span.End()

	var report schemacheck.Report
	check := func(ctx context.Context, h database.Handle) error {
		r, err := s.validator.Validate(ctx, h)
		report = r
		if err == nil {
			return nil
		}
		var verr *schemacheck.ValidationError
		if errors.As(err, &verr) && verr.Stage == schemacheck.StageLiveness {
			return database.NewConnectionError(cfg, err)
		}
		return err
	}

	res, err := s.pools.Swap(ctx, cfg, check)
	out := Outcome{Config: res.Config, Report: report, FellBack: res.FellBack}
	if err != nil {
		out.Restored = res.FellBack && res.Handle != nil
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("credential update rejected",
			"target", cfg,
			"errorType", ErrorType(err),
			"restored", out.Restored,
			"error", err,
		)
		return out, err
	}

	if missing := report.Tables.Missing(); len(missing) > 0 {
		span.SetAttributes(attribute.StringSlice("db.missing_tables", missing))
		slog.Warn("database is missing required tables", "target", cfg, "missing", missing)
	}
	slog.Info("credentials updated", "target", cfg)
	return out, nil
}

// ErrorType classifies err for client responses. A rejected swap is
// classified by why the requested target failed, not by the fallback.
func ErrorType(err error) string {
	var swapErr *database.SwapError
	if errors.As(err, &swapErr) {
		err = swapErr.Cause
	}

	var (
		connErr *database.ConnectionError
		valErr  *schemacheck.ValidationError
	)
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return TypeInvalid
	case errors.As(err, &connErr):
		return TypeConnection
	case errors.As(err, &valErr):
		return TypeValidation
	case errors.Is(err, database.ErrShutdown), errors.Is(err, database.ErrUnavailable):
		return TypeUnavailable
	default:
		return TypeInternal
	}
}
