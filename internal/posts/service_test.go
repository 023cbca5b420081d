package posts_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daap14/hafgate/internal/database"
	"github.com/daap14/hafgate/internal/posts"
)

// --- Fake rows ---

type fakeRows struct {
	data   [][]any
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.pos-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *time.Time:
			*p = row[i].(time.Time)
		case **float64:
			if row[i] == nil {
				*p = nil
			} else {
				v := row[i].(float64)
				*p = &v
			}
		case *int64:
			*p = row[i].(int64)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

// --- Mock handle ---

type mockHandle struct {
	cfg     database.Config
	queryFn func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	calls   int
	args    []any
}

func (m *mockHandle) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.calls++
	m.args = args
	return m.queryFn(ctx, sql, args...)
}

func (m *mockHandle) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row { return nil }
func (m *mockHandle) Ping(_ context.Context) error                          { return nil }
func (m *mockHandle) Config() database.Config                               { return m.cfg }
func (m *mockHandle) Close()                                                {}

func handleReturning(rows *fakeRows) *mockHandle {
	return &mockHandle{
		cfg: database.Config{Host: "db.local", Port: 5432, Database: "haf_block_log", User: "reader"}.WithDefaults(),
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
			return rows, nil
		},
	}
}

func row(author, permlink string, created time.Time, pending string, rep any, votes int64) []any {
	return []any{author, permlink, created, "title of " + permlink, pending, "0.000 HBD", rep, votes}
}

// --- Mock cache ---

type mockCache struct {
	getFn   func(key string) (*posts.Result, bool, error)
	setFn   func(key string, res *posts.Result, ttl time.Duration) error
	setKeys []string
}

func (m *mockCache) Get(_ context.Context, key string) (*posts.Result, bool, error) {
	if m.getFn == nil {
		return nil, false, nil
	}
	return m.getFn(key)
}

func (m *mockCache) Set(_ context.Context, key string, res *posts.Result, ttl time.Duration) error {
	m.setKeys = append(m.setKeys, key)
	if m.setFn == nil {
		return nil
	}
	return m.setFn(key, res, ttl)
}

// --- Tests ---

func TestRun_AggregatesRows(t *testing.T) {
	// Arrange
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := &fakeRows{data: [][]any{
		row("alice", "newest", now, "12.500 HBD", 61.2, 14),
		row("bob", "older", now.Add(-time.Hour), "3.250 HBD", nil, 0),
	}}
	h := handleReturning(rows)
	svc := posts.NewService()

	// Act
	res, err := svc.Run(context.Background(), h, posts.Request{
		Usernames: []string{"alice", "bob"},
		Days:      7,
		Threshold: 1,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalPosts)
	assert.InDelta(t, 15.75, res.TotalValue, 1e-9)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "newest", res.Rows[0].Permlink)
	require.NotNil(t, res.Rows[0].UserReputation)
	assert.InDelta(t, 61.2, *res.Rows[0].UserReputation, 1e-9)
	assert.Nil(t, res.Rows[1].UserReputation)
	assert.Equal(t, int64(14), res.Rows[0].VoteCount)
	assert.True(t, rows.closed)
}

func TestRun_BindsNormalizedParameters(t *testing.T) {
	var gotSQL string
	h := handleReturning(&fakeRows{})
	h.queryFn = func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
		gotSQL = sql
		return &fakeRows{}, nil
	}
	svc := posts.NewService()

	_, err := svc.Run(context.Background(), h, posts.Request{
		Usernames: []string{" @Bob", "alice", "ALICE"},
		Days:      30,
		Threshold: 2.5,
	})

	require.NoError(t, err)
	require.Len(t, h.args, 3)
	assert.Equal(t, []string{"alice", "bob"}, h.args[0])
	assert.Equal(t, 30, h.args[1])
	assert.Equal(t, 2.5, h.args[2])
	assert.Contains(t, gotSQL, "c.parent_author = ''")
	assert.Contains(t, gotSQL, "ORDER BY c.created DESC")
	assert.NotContains(t, gotSQL, "30", "days must be bound, not interpolated")
}

func TestRun_NoRows(t *testing.T) {
	svc := posts.NewService()

	res, err := svc.Run(context.Background(), handleReturning(&fakeRows{}), posts.Request{
		Usernames: []string{"carol"},
		Days:      1,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalPosts)
	assert.Zero(t, res.TotalValue)
	assert.NotNil(t, res.Rows)
}

func TestRun_EmptyUsernamesSkipsQuery(t *testing.T) {
	h := handleReturning(&fakeRows{})
	svc := posts.NewService()

	res, err := svc.Run(context.Background(), h, posts.Request{Usernames: []string{"", "  "}, Days: 7})

	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalPosts)
	assert.Equal(t, 0, h.calls)
}

func TestRun_InvalidRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     posts.Request
		maxDays int
		wantMsg string
	}{
		{name: "zero days", req: posts.Request{Usernames: []string{"a1"}, Days: 0}, wantMsg: "days"},
		{name: "negative days", req: posts.Request{Usernames: []string{"a1"}, Days: -3}, wantMsg: "days"},
		{name: "beyond max", req: posts.Request{Usernames: []string{"a1"}, Days: 31}, maxDays: 30, wantMsg: "between 1 and 30"},
		{name: "negative threshold", req: posts.Request{Usernames: []string{"a1"}, Days: 1, Threshold: -1}, wantMsg: "threshold"},
		{name: "bad username", req: posts.Request{Usernames: []string{"a1'; DROP TABLE comments;--"}, Days: 1}, wantMsg: "not a valid account name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handleReturning(&fakeRows{})
			svc := posts.NewService(posts.WithMaxDays(tt.maxDays))

			_, err := svc.Run(context.Background(), h, tt.req)

			require.Error(t, err)
			assert.ErrorIs(t, err, posts.ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.wantMsg)
			var qerr *posts.QueryError
			require.ErrorAs(t, err, &qerr)
			assert.Equal(t, "validate", qerr.Op)
			assert.Equal(t, 0, h.calls)
		})
	}
}

func TestRun_TooManyUsernames(t *testing.T) {
	names := make([]string, posts.MaxUsernames+1)
	for i := range names {
		names[i] = fmt.Sprintf("user%d", i)
	}
	svc := posts.NewService()

	_, err := svc.Run(context.Background(), handleReturning(&fakeRows{}), posts.Request{Usernames: names, Days: 1})

	assert.ErrorIs(t, err, posts.ErrInvalidRequest)
}

func TestRun_QueryError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42P01", Message: `relation "comments" does not exist`}
	h := handleReturning(nil)
	h.queryFn = func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
		return nil, pgErr
	}
	svc := posts.NewService()

	_, err := svc.Run(context.Background(), h, posts.Request{Usernames: []string{"alice"}, Days: 1})

	require.Error(t, err)
	assert.ErrorIs(t, err, pgErr)
	assert.Equal(t, "42P01", database.ErrorCode(err))
	var qerr *posts.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "execute", qerr.Op)
}

func TestRun_RowsErr(t *testing.T) {
	iterErr := errors.New("conn closed")
	rows := &fakeRows{err: iterErr}
	svc := posts.NewService()

	_, err := svc.Run(context.Background(), handleReturning(rows), posts.Request{Usernames: []string{"alice"}, Days: 1})

	assert.ErrorIs(t, err, iterErr)
	assert.True(t, rows.closed)
}

func TestRun_UnparseablePayout(t *testing.T) {
	rows := &fakeRows{data: [][]any{row("alice", "p", time.Now(), "lots HBD", nil, 1)}}
	svc := posts.NewService()

	_, err := svc.Run(context.Background(), handleReturning(rows), posts.Request{Usernames: []string{"alice"}, Days: 1})

	var qerr *posts.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "aggregate", qerr.Op)
}

func TestRun_AppliesStatementTimeout(t *testing.T) {
	h := handleReturning(nil)
	h.cfg.StatementTimeout = 250 * time.Millisecond
	var deadline time.Time
	var hasDeadline bool
	h.queryFn = func(ctx context.Context, _ string, _ ...any) (pgx.Rows, error) {
		deadline, hasDeadline = ctx.Deadline()
		return &fakeRows{}, nil
	}
	svc := posts.NewService()

	_, err := svc.Run(context.Background(), h, posts.Request{Usernames: []string{"alice"}, Days: 1})

	require.NoError(t, err)
	require.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(250*time.Millisecond), deadline, 250*time.Millisecond)
}

func TestRun_CacheHitSkipsQuery(t *testing.T) {
	cached := &posts.Result{Rows: []posts.Record{{Author: "alice"}}, TotalPosts: 1, TotalValue: 4}
	c := &mockCache{getFn: func(_ string) (*posts.Result, bool, error) { return cached, true, nil }}
	h := handleReturning(&fakeRows{})
	svc := posts.NewService(posts.WithCache(c, time.Minute))

	res, err := svc.Run(context.Background(), h, posts.Request{Usernames: []string{"alice"}, Days: 1})

	require.NoError(t, err)
	assert.Same(t, cached, res)
	assert.Equal(t, 0, h.calls)
	assert.Empty(t, c.setKeys)
}

func TestRun_CacheMissStoresResult(t *testing.T) {
	var gotTTL time.Duration
	c := &mockCache{setFn: func(_ string, _ *posts.Result, ttl time.Duration) error {
		gotTTL = ttl
		return nil
	}}
	rows := &fakeRows{data: [][]any{row("alice", "p", time.Now(), "1.000 HBD", nil, 0)}}
	svc := posts.NewService(posts.WithCache(c, 90*time.Second))

	_, err := svc.Run(context.Background(), handleReturning(rows), posts.Request{Usernames: []string{"alice"}, Days: 1})

	require.NoError(t, err)
	require.Len(t, c.setKeys, 1)
	assert.True(t, strings.HasPrefix(c.setKeys[0], "posts:"))
	assert.Equal(t, 90*time.Second, gotTTL)
}

func TestRun_NonPositiveTTLDisablesCache(t *testing.T) {
	for _, ttl := range []time.Duration{0, -time.Second} {
		c := &mockCache{getFn: func(_ string) (*posts.Result, bool, error) {
			t.Fatal("cache read with non-positive ttl")
			return nil, false, nil
		}}
		rows := &fakeRows{data: [][]any{row("alice", "p", time.Now(), "1.000 HBD", nil, 0)}}
		svc := posts.NewService(posts.WithCache(c, ttl))

		res, err := svc.Run(context.Background(), handleReturning(rows), posts.Request{Usernames: []string{"alice"}, Days: 1})

		require.NoError(t, err)
		assert.Equal(t, 1, res.TotalPosts)
		assert.Empty(t, c.setKeys, "ttl %s", ttl)
	}
}

func TestRun_CacheKeyIgnoresUsernameOrder(t *testing.T) {
	c := &mockCache{}
	svc := posts.NewService(posts.WithCache(c, time.Minute))

	_, err := svc.Run(context.Background(), handleReturning(&fakeRows{}), posts.Request{Usernames: []string{"bob", "alice"}, Days: 3})
	require.NoError(t, err)
	_, err = svc.Run(context.Background(), handleReturning(&fakeRows{}), posts.Request{Usernames: []string{"Alice", "bob"}, Days: 3})
	require.NoError(t, err)

	require.Len(t, c.setKeys, 2)
	assert.Equal(t, c.setKeys[0], c.setKeys[1])
}

func TestRun_CacheErrorsAreNotFatal(t *testing.T) {
	c := &mockCache{
		getFn: func(_ string) (*posts.Result, bool, error) { return nil, false, errors.New("redis down") },
		setFn: func(_ string, _ *posts.Result, _ time.Duration) error { return errors.New("redis down") },
	}
	rows := &fakeRows{data: [][]any{row("alice", "p", time.Now(), "2.000 HBD", nil, 0)}}
	svc := posts.NewService(posts.WithCache(c, time.Minute))

	res, err := svc.Run(context.Background(), handleReturning(rows), posts.Request{Usernames: []string{"alice"}, Days: 1})

	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalPosts)
}

func TestParsePayout(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "12.345 HBD", want: 12.345},
		{in: "0.000 HBD", want: 0},
		{in: "7", want: 7},
		{in: "", want: 0},
		{in: "abc HBD", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := posts.ParsePayout(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
