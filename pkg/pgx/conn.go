package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the part of *pgx.Conn and *pgxpool.Pool that queries run through.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow reports pgx.ErrNoRows from Scan when nothing matched.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
