// Package schemacheck verifies that a freshly opened pool points at a HAF
// database the query service can use.
package schemacheck

import (
	"context"
	"errors"
	"fmt"

	"github.com/daap14/hafgate/internal/database"
)

// DefaultSchema is the schema the analytical query resolves its tables in.
const DefaultSchema = "public"

// Names of the tables the analytical query joins.
const (
	TableComments    = "comments"
	TableOpVote      = "op_vote"
	TableReputations = "reputations"
)

// ErrSchemaNotAccessible is returned when the expected schema is missing or hidden.
var ErrSchemaNotAccessible = errors.New("required schema not accessible")

// Stage names a step of the validation sequence.
type Stage string

const (
	StageLiveness Stage = "liveness"
	StageSchema   Stage = "schema"
	StageTables   Stage = "tables"
)

// Tables reports which required tables are visible.
type Tables struct {
	Comments    bool
	OpVote      bool
	Reputations bool
}

// All reports whether every required table is visible.
func (t Tables) All() bool {
	return t.Comments && t.OpVote && t.Reputations
}

// Missing lists the required tables that are not visible.
func (t Tables) Missing() []string {
	var missing []string
	if !t.Comments {
		missing = append(missing, TableComments)
	}
	if !t.OpVote {
		missing = append(missing, TableOpVote)
	}
	if !t.Reputations {
		missing = append(missing, TableReputations)
	}
	return missing
}

// Report is the outcome of one validation attempt.
type Report struct {
	Reachable bool
	HasSchema bool
	Tables    Tables
}

// ValidationError reports the stage at which validation stopped, together with
// everything learned before it stopped.
type ValidationError struct {
	Stage  Stage
	Report Report
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s check failed: %v", e.Stage, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validator runs the staged checks: a round trip, then the schema, then all
// required tables in a single query. Each stage runs only if the previous one
// passed, so an unreachable server fails before any catalog query is issued.
type Validator struct {
	schema string
}

// NewValidator creates a Validator for schema, or DefaultSchema when empty.
func NewValidator(schema string) *Validator {
	if schema == "" {
		schema = DefaultSchema
	}
	return &Validator{schema: schema}
}

const livenessQuery = `SELECT 1`

const schemaQuery = `
	SELECT EXISTS (
		SELECT 1
		FROM information_schema.schemata
		WHERE schema_name = $1
	) AS has_schema`

// tablesQuery only counts tables on the search path, which is where the
// unqualified names in the analytical query resolve.
const tablesQuery = `
	SELECT
		EXISTS (SELECT 1 FROM information_schema.tables
		        WHERE table_name = $1 AND table_schema = ANY(current_schemas(false))) AS has_comments,
		EXISTS (SELECT 1 FROM information_schema.tables
		        WHERE table_name = $2 AND table_schema = ANY(current_schemas(false))) AS has_op_vote,
		EXISTS (SELECT 1 FROM information_schema.tables
		        WHERE table_name = $3 AND table_schema = ANY(current_schemas(false))) AS has_reputations`

// Validate runs the checks against q. Missing tables are reported in the
// returned Report but are not an error.
func (v *Validator) Validate(ctx context.Context, q database.Querier) (Report, error) {
	var report Report

	var one int
	if err := q.QueryRow(ctx, livenessQuery).Scan(&one); err != nil {
		return report, &ValidationError{Stage: StageLiveness, Report: report, Err: err}
	}
	report.Reachable = true

	var hasSchema bool
	if err := q.QueryRow(ctx, schemaQuery, v.schema).Scan(&hasSchema); err != nil {
		return report, &ValidationError{Stage: StageSchema, Report: report, Err: fmt.Errorf("querying schemata: %w", err)}
	}
	if !hasSchema {
		return report, &ValidationError{Stage: StageSchema, Report: report, Err: ErrSchemaNotAccessible}
	}
	report.HasSchema = true

	err := q.QueryRow(ctx, tablesQuery, TableComments, TableOpVote, TableReputations).Scan(
		&report.Tables.Comments,
		&report.Tables.OpVote,
		&report.Tables.Reputations,
	)
	if err != nil {
		report.Tables = Tables{}
		return report, &ValidationError{Stage: StageTables, Report: report, Err: fmt.Errorf("querying tables: %w", err)}
	}

	return report, nil
}
