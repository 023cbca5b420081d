package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/daap14/hafgate/internal/api/middleware"
	"github.com/daap14/hafgate/internal/api/response"
	"github.com/daap14/hafgate/internal/api/validation"
	"github.com/daap14/hafgate/internal/database"
	"github.com/daap14/hafgate/internal/posts"
)

// QueryRunner executes the posts query against a pool.
type QueryRunner interface {
	Run(ctx context.Context, h database.Handle, req posts.Request) (*posts.Result, error)
}

// queryRequest is the request body for POST /query.
type queryRequest struct {
	Usernames []string    `json:"usernames"`
	Days      json.Number `json:"days"`
	Threshold json.Number `json:"threshold"`
}

type postResponse struct {
	Author             string   `json:"author"`
	Permlink           string   `json:"permlink"`
	Created            string   `json:"created"`
	Title              string   `json:"title"`
	PendingPayoutValue string   `json:"pending_payout_value"`
	TotalPayoutValue   string   `json:"total_payout_value"`
	UserReputation     *float64 `json:"user_reputation"`
	VoteCount          int64    `json:"vote_count"`
}

type queryStats struct {
	TotalPosts int     `json:"total_posts"`
	TotalValue float64 `json:"total_value"`
}

func toPostResponse(rec posts.Record) postResponse {
	return postResponse{
		Author:             rec.Author,
		Permlink:           rec.Permlink,
		Created:            rec.Created.UTC().Format(time.RFC3339),
		Title:              rec.Title,
		PendingPayoutValue: rec.PendingPayoutValue,
		TotalPayoutValue:   rec.TotalPayoutValue,
		UserReputation:     rec.UserReputation,
		VoteCount:          rec.VoteCount,
	}
}

// QueryHandler handles POST /query.
type QueryHandler struct {
	pools   PoolSource
	runner  QueryRunner
	maxDays int
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(pools PoolSource, runner QueryRunner, maxDays int) *QueryHandler {
	if maxDays <= 0 {
		maxDays = posts.DefaultMaxDays
	}
	return &QueryHandler{pools: pools, runner: runner, maxDays: maxDays}
}

// Query runs the posts query on the live pool.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	parsed, fieldErrors := validation.ValidateQueryRequest(validation.QueryRequest{
		Usernames: req.Usernames,
		Days:      req.Days,
		Threshold: req.Threshold,
	}, h.maxDays)
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	preq := posts.Request{
		Usernames: parsed.Usernames,
		Days:      parsed.Days,
		Threshold: parsed.Threshold,
	}
	if err := preq.Validate(h.maxDays); err != nil {
		response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), requestID)
		return
	}

	res, err := h.run(r.Context(), preq)
	if err != nil {
		if errors.Is(err, posts.ErrInvalidRequest) {
			response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), requestID)
			return
		}
		var np noPoolError
		if errors.As(err, &np) || database.IsPoolClosed(err) {
			slog.Error("no database pool for query", "error", err, "requestId", requestID)
			response.ErrWithDetails(w, http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE", err.Error(),
				map[string]string{"errorCode": database.ErrorCode(err)}, requestID)
			return
		}
		slog.Error("posts query failed", "error", err, "requestId", requestID)
		response.ErrWithDetails(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error(),
			map[string]string{"errorCode": database.ErrorCode(err)}, requestID)
		return
	}

	rows := make([]postResponse, 0, len(res.Rows))
	for _, rec := range res.Rows {
		rows = append(rows, toPostResponse(rec))
	}

	response.SuccessWithStats(w, http.StatusOK, rows, queryStats{
		TotalPosts: res.TotalPosts,
		TotalValue: res.TotalValue,
	}, requestID)
}

// noPoolError marks a failure to obtain a pool, as opposed to running on one.
type noPoolError struct{ err error }

func (e noPoolError) Error() string { return e.err.Error() }
func (e noPoolError) Unwrap() error { return e.err }

// run executes req on the current pool. A pool retired by a concurrent swap
// is closed under the caller, so the query is retried once on its successor.
func (h *QueryHandler) run(ctx context.Context, req posts.Request) (*posts.Result, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var pool database.Handle
		pool, err = h.pools.Current(ctx)
		if err != nil {
			return nil, noPoolError{err}
		}
		var res *posts.Result
		res, err = h.runner.Run(ctx, pool, req)
		if !database.IsPoolClosed(err) {
			return res, err
		}
	}
	return nil, err
}
