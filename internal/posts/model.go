package posts

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid query request")

// Request selects top-level posts by author, recency and pending payout.
type Request struct {
	Usernames []string
	Days      int
	Threshold float64
}

// Record is one post row returned by the analytical query.
type Record struct {
	Author             string
	Permlink           string
	Created            time.Time
	Title              string
	PendingPayoutValue string
	TotalPayoutValue   string
	UserReputation     *float64
	VoteCount          int64
}

// Result holds the rows, newest first, and their aggregates.
type Result struct {
	Rows       []Record
	TotalPosts int
	TotalValue float64
}

// QueryError reports a failure during one phase of a query.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("posts %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
