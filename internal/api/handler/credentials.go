package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/daap14/hafgate/internal/api/middleware"
	"github.com/daap14/hafgate/internal/api/response"
	"github.com/daap14/hafgate/internal/api/validation"
	"github.com/daap14/hafgate/internal/credentials"
	"github.com/daap14/hafgate/internal/database"
)

const connectedMessage = "Successfully connected to database"

// CredentialsUpdater switches the live database target.
type CredentialsUpdater interface {
	Update(ctx context.Context, cfg database.Config) (credentials.Outcome, error)
}

// credentialsRequest is the request body for POST /update-credentials.
type credentialsRequest struct {
	Host     string      `json:"host"`
	Port     json.Number `json:"port"`
	Database string      `json:"database"`
	User     string      `json:"user"`
	Password string      `json:"password"`
}

type tablesResponse struct {
	Comments    bool `json:"comments"`
	OpVote      bool `json:"op_vote"`
	Reputations bool `json:"reputations"`
}

type credentialsSuccess struct {
	Connection string         `json:"connection"`
	Host       string         `json:"host"`
	Database   string         `json:"database"`
	Tables     tablesResponse `json:"tables"`
}

type fallbackResponse struct {
	Restored bool   `json:"restored"`
	Host     string `json:"host"`
	Database string `json:"database"`
}

type credentialsFailure struct {
	ErrorType string            `json:"errorType"`
	ErrorCode string            `json:"errorCode,omitempty"`
	Host      string            `json:"host"`
	Port      int               `json:"port"`
	Database  string            `json:"database"`
	User      string            `json:"user"`
	Password  string            `json:"password"`
	Fallback  *fallbackResponse `json:"fallback,omitempty"`
}

// CredentialsHandler handles POST /update-credentials.
type CredentialsHandler struct {
	svc    CredentialsUpdater
	tuning database.Config
}

// NewCredentialsHandler creates a CredentialsHandler. Timeouts, SSL mode and
// pool size for every requested target are taken from tuning.
func NewCredentialsHandler(svc CredentialsUpdater, tuning database.Config) *CredentialsHandler {
	return &CredentialsHandler{svc: svc, tuning: tuning}
}

// Update validates the requested target, swaps the live pool to it and reports
// which tables are visible. Any failure restores the default target.
func (h *CredentialsHandler) Update(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	port, fieldErrors := validation.ValidateCredentialsRequest(validation.CredentialsRequest{
		Host:     req.Host,
		Port:     req.Port,
		Database: req.Database,
		User:     req.User,
		Password: req.Password,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	cfg := database.Config{
		Host:             req.Host,
		Port:             port,
		Database:         req.Database,
		User:             req.User,
		Password:         req.Password,
		ConnectTimeout:   h.tuning.ConnectTimeout,
		StatementTimeout: h.tuning.StatementTimeout,
		SSLMode:          h.tuning.SSLMode,
		MaxConns:         h.tuning.MaxConns,
	}.WithDefaults()

	out, err := h.svc.Update(r.Context(), cfg)
	if err != nil {
		h.writeFailure(w, cfg, out, err, requestID)
		return
	}

	response.SuccessWithDetails(w, http.StatusOK, credentialsSuccess{
		Connection: connectedMessage,
		Host:       cfg.Host,
		Database:   cfg.Database,
		Tables: tablesResponse{
			Comments:    out.Report.Tables.Comments,
			OpVote:      out.Report.Tables.OpVote,
			Reputations: out.Report.Tables.Reputations,
		},
	}, requestID)
}

func (h *CredentialsHandler) writeFailure(w http.ResponseWriter, cfg database.Config, out credentials.Outcome, err error, requestID string) {
	cause := err
	var swapErr *database.SwapError
	if errors.As(err, &swapErr) {
		cause = swapErr.Cause
	}

	errType := credentials.ErrorType(err)
	details := credentialsFailure{
		ErrorType: errType,
		ErrorCode: database.ErrorCode(cause),
		Host:      cfg.Host,
		Port:      cfg.Port,
		Database:  cfg.Database,
		User:      mark(cfg.User),
		Password:  mark(cfg.Password),
	}
	if out.FellBack {
		details.Fallback = &fallbackResponse{
			Restored: out.Restored,
			Host:     out.Config.Host,
			Database: out.Config.Database,
		}
	}

	status, code := http.StatusInternalServerError, "CONNECTION_FAILED"
	switch errType {
	case credentials.TypeInvalid:
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case credentials.TypeValidation:
		code = "VALIDATION_FAILED"
	case credentials.TypeUnavailable:
		status, code = http.StatusServiceUnavailable, "UNAVAILABLE"
	case credentials.TypeInternal:
		code = "INTERNAL_ERROR"
	}

	response.ErrWithDetails(w, status, code, err.Error(), details, requestID)
}

func mark(s string) string {
	if s != "" {
		return "✓"
	}
	return "✗"
}
