package pgx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrNoRows is returned when an update or delete matches nothing.
var ErrNoRows = errors.New("no rows affected")

type queryBuilder struct {
	schema string
	table  string
	values []any
}

func newQueryBuilder(schema, table string) *queryBuilder {
	if schema == "" {
		schema = "public"
	}
	return &queryBuilder{schema: schema, table: table}
}

func (qb *queryBuilder) placeholder(value any) string {
	qb.values = append(qb.values, value)
	return fmt.Sprintf("$%d", len(qb.values))
}

func (qb *queryBuilder) tableIdentifier() string {
	return pgx.Identifier{qb.schema, qb.table}.Sanitize()
}

// sortedKeys keeps generated statements stable for identical input.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (qb *queryBuilder) where(where map[string]any) (string, error) {
	if len(where) == 0 {
		return "", fmt.Errorf("no WHERE conditions provided")
	}
	clauses := make([]string, 0, len(where))
	for _, key := range sortedKeys(where) {
		clauses = append(clauses, fmt.Sprintf("%s = %s", pgx.Identifier{key}.Sanitize(), qb.placeholder(where[key])))
	}
	return strings.Join(clauses, " AND "), nil
}

// InsertRow inserts data into schema.table and returns the stored row.
func InsertRow(ctx context.Context, conn Conn, schema, table string, data map[string]any) (map[string]any, error) {
	qb := newQueryBuilder(schema, table)

	var query string
	if len(data) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", qb.tableIdentifier())
	} else {
		columns := make([]string, 0, len(data))
		placeholders := make([]string, 0, len(data))
		for _, key := range sortedKeys(data) {
			columns = append(columns, pgx.Identifier{key}.Sanitize())
			placeholders = append(placeholders, qb.placeholder(data[key]))
		}
		query = fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			qb.tableIdentifier(),
			strings.Join(columns, ", "),
			strings.Join(placeholders, ", "),
		)
	}

	row, err := one(ctx, conn, query, qb.values)
	if err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}
	return row, nil
}

// UpdateRow sets data on the rows of schema.table matching where and returns
// the first updated row.
func UpdateRow(ctx context.Context, conn Conn, schema, table string, data, where map[string]any) (map[string]any, error) {
	qb := newQueryBuilder(schema, table)
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to update record: no columns to set")
	}

	setClauses := make([]string, 0, len(data))
	for _, key := range sortedKeys(data) {
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", pgx.Identifier{key}.Sanitize(), qb.placeholder(data[key])))
	}

	cond, err := qb.where(where)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s RETURNING *",
		qb.tableIdentifier(),
		strings.Join(setClauses, ", "),
		cond,
	)

	row, err := one(ctx, conn, query, qb.values)
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return row, nil
}

// DeleteRow removes the rows of schema.table matching where.
func DeleteRow(ctx context.Context, conn Conn, schema, table string, where map[string]any) error {
	qb := newQueryBuilder(schema, table)

	cond, err := qb.where(where)
	if err != nil {
		return err
	}

	result, err := conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", qb.tableIdentifier(), cond), qb.values...)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

func one(ctx context.Context, conn Conn, query string, args []any) (map[string]any, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	result, err := CollectMaps(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrNoRows
	}
	return result[0], nil
}
