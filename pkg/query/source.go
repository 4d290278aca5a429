package query

import (
	"context"
	"fmt"

	pg "github.com/edgeflare/restful/pkg/pgx"
)

// Source executes a Select lazily. It counts with count(*) and slices with
// LIMIT/OFFSET so paginating never loads more than one page of rows.
type Source struct {
	conn  pg.Conn
	query Select
	cache *CountCache
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithCountCache reuses counts for identical statements.
func WithCountCache(c *CountCache) SourceOption {
	return func(s *Source) {
		s.cache = c
	}
}

// NewSource binds q to conn.
func NewSource(conn pg.Conn, q Select, opts ...SourceOption) *Source {
	s := &Source{conn: conn, query: q}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query returns the bound statement.
func (s *Source) Query() Select {
	return s.query
}

// Ordered reports whether the bound statement is sorted.
func (s *Source) Ordered() bool {
	return s.query.Ordered()
}

// Count returns the number of rows the statement yields.
func (s *Source) Count(ctx context.Context) (int, error) {
	sql, args := s.query.CountSQL()

	var key string
	if s.cache != nil {
		key = s.cache.Key(sql, args)
		if n, ok := s.cache.Get(key); ok {
			return n, nil
		}
	}

	var n int64
	if err := s.conn.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.query.from.Key(), err)
	}
	if s.cache != nil {
		s.cache.Set(key, int(n), s.query.Tables()...)
	}
	return int(n), nil
}

// Slice returns rows [lo, hi). A negative hi reads to the end.
func (s *Source) Slice(ctx context.Context, lo, hi int) ([]map[string]any, error) {
	q := s.query.Offset(lo)
	if hi >= 0 {
		q = q.Limit(max(hi-lo, 0))
	}
	return s.fetch(ctx, q)
}

// All returns every row.
func (s *Source) All(ctx context.Context) ([]map[string]any, error) {
	return s.fetch(ctx, s.query)
}

func (s *Source) fetch(ctx context.Context, q Select) ([]map[string]any, error) {
	sql, args := q.SQL()
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.from.Key(), err)
	}
	return pg.CollectMaps(rows)
}
