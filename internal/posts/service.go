package posts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/daap14/hafgate/internal/database"
)

var tracer = otel.Tracer("hafgate/posts")

// Cache stores query results between identical requests against the same target.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Set(ctx context.Context, key string, res *Result, ttl time.Duration) error
}

// postsQuery selects top-level posts by the given authors. The trailing window
// and threshold are bind parameters; the payout value may carry a currency
// suffix ("1.234 HBD"), so only its leading number is compared.
const postsQuery = `
	SELECT
		c.author,
		c.permlink,
		c.created,
		COALESCE(c.title, '') AS title,
		c.pending_payout_value::text AS pending_payout_value,
		c.total_payout_value::text AS total_payout_value,
		r.reputation::float8 AS user_reputation,
		COUNT(v.voter) AS vote_count
	FROM comments c
	LEFT JOIN op_vote v
	       ON v.author = c.author
	      AND v.permlink = c.permlink
	LEFT JOIN reputations r
	       ON r.account_name = c.author
	WHERE c.parent_author = ''
	  AND c.author = ANY($1)
	  AND c.created > NOW() - make_interval(days => $2)
	  AND split_part(c.pending_payout_value::text, ' ', 1)::numeric >= $3
	GROUP BY
		c.author,
		c.permlink,
		c.created,
		c.title,
		c.pending_payout_value,
		c.total_payout_value,
		r.reputation
	ORDER BY c.created DESC`

// Option configures a Service.
type Option func(*Service)

// WithMaxDays bounds the trailing window a request may ask for.
func WithMaxDays(days int) Option {
	return func(s *Service) {
		s.maxDays = days
	}
}

// WithCache enables result caching for ttl. A non-positive ttl leaves
// caching off, since Redis would keep such entries forever.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if ttl <= 0 {
			return
		}
		s.cache = c
		s.ttl = ttl
	}
}

// Service runs the analytical posts query.
type Service struct {
	maxDays int
	cache   Cache
	ttl     time.Duration
}

// NewService creates a Service.
func NewService(opts ...Option) *Service {
	s := &Service{maxDays: DefaultMaxDays}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run validates req and executes the query on h. The query is bounded by the
// pool's statement timeout.
func (s *Service) Run(ctx context.Context, h database.Handle, req Request) (*Result, error) {
	req, err := req.normalize(s.maxDays)
	if err != nil {
		return nil, &QueryError{Op: "validate", Err: err}
	}

	if len(req.Usernames) == 0 {
		return &Result{Rows: []Record{}}, nil
	}

	ctx, span := tracer.Start(ctx, "posts.Run", trace.WithAttributes(
		attribute.Int("posts.usernames", len(req.Usernames)),
		attribute.Int("posts.days", req.Days),
		attribute.Float64("posts.threshold", req.Threshold),
	))
	defer span.End()

	cfg := h.Config()
	key := cacheKey(cfg, req)

	if s.cache != nil {
		res, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("posts cache read failed", "error", err)
		} else if ok {
			span.SetAttributes(attribute.Bool("posts.cache_hit", true))
			return res, nil
		}
	}

	if cfg.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.StatementTimeout)
		defer cancel()
	}

	res, err := s.query(ctx, h, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("posts.rows", res.TotalPosts))

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, res, s.ttl); err != nil {
			slog.Warn("posts cache write failed", "error", err)
		}
	}

	return res, nil
}

func (s *Service) query(ctx context.Context, q database.Querier, req Request) (*Result, error) {
	rows, err := q.Query(ctx, postsQuery, req.Usernames, req.Days, req.Threshold)
	if err != nil {
		return nil, &QueryError{Op: "execute", Err: err}
	}
	defer rows.Close()

	res := &Result{Rows: []Record{}}
	for rows.Next() {
		var rec Record
		err := rows.Scan(
			&rec.Author, &rec.Permlink, &rec.Created, &rec.Title,
			&rec.PendingPayoutValue, &rec.TotalPayoutValue,
			&rec.UserReputation, &rec.VoteCount,
		)
		if err != nil {
			return nil, &QueryError{Op: "scan", Err: err}
		}

		value, err := ParsePayout(rec.PendingPayoutValue)
		if err != nil {
			return nil, &QueryError{Op: "aggregate", Err: err}
		}
		res.TotalValue += value
		res.Rows = append(res.Rows, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: "execute", Err: err}
	}

	res.TotalPosts = len(res.Rows)
	return res, nil
}

// ParsePayout returns the numeric part of a payout string such as "12.345 HBD".
// The currency symbol is ignored.
func ParsePayout(s string) (float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing payout %q: %w", s, err)
	}
	return v, nil
}

// cacheKey identifies a normalized request against one target database.
func cacheKey(cfg database.Config, req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s",
		cfg.Fingerprint(),
		strings.Join(req.Usernames, ","),
		req.Days,
		strconv.FormatFloat(req.Threshold, 'f', -1, 64),
	)
	return "posts:" + hex.EncodeToString(h.Sum(nil))
}
