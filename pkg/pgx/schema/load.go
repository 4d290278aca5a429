package schema

import (
	"context"
	"fmt"

	pg "github.com/edgeflare/restful/pkg/pgx"
)

func loadSchema(ctx context.Context, conn pg.Conn, schema string) (Catalog, error) {
	tableRows, err := conn.Query(ctx, `
    SELECT table_schema, table_name, 'TABLE'::text as table_type
        FROM information_schema.tables
        WHERE table_schema = $1 AND table_type = 'BASE TABLE'
        UNION ALL
        SELECT table_schema, table_name, 'VIEW'::text as table_type
        FROM information_schema.views
        WHERE table_schema = $1
        UNION ALL
        SELECT schemaname, matviewname, 'MATERIALIZED VIEW'::text as table_type
        FROM pg_matviews
        WHERE schemaname = $1
        ORDER BY table_schema, table_name`, schema)
	if err != nil {
		return nil, err
	}
	defer tableRows.Close()

	tables := make(Catalog)
	for tableRows.Next() {
		var t Table
		var tableTypeStr string
		if err := tableRows.Scan(&t.Schema, &t.Name, &tableTypeStr); err != nil {
			return nil, err
		}

		t.Type = TableType(tableTypeStr)

		if t.Type == TypeView {
			var viewDef *string
			err := conn.QueryRow(ctx, `
				SELECT view_definition 
				FROM information_schema.views 
				WHERE table_schema = $1 AND table_name = $2`,
				t.Schema, t.Name).Scan(&viewDef)
			if err != nil {
				return nil, fmt.Errorf("get view definition %s.%s: %w", t.Schema, t.Name, err)
			}
			if viewDef != nil {
				t.ViewQuery = *viewDef
			}
		}

		if t.Type == TypeMaterializedView {
			var matViewDef *string
			err := conn.QueryRow(ctx, `
				SELECT definition FROM pg_matviews 
				WHERE schemaname = $1 AND matviewname = $2`,
				t.Schema, t.Name).Scan(&matViewDef)
			if err != nil {
				return nil, fmt.Errorf("get materialized view definition %s.%s: %w", t.Schema, t.Name, err)
			}
			if matViewDef != nil {
				t.ViewQuery = *matViewDef
			}
		}

		cols, pkeys, err := queryColumns(ctx, conn, t.Schema, t.Name)
		if err != nil {
			return nil, fmt.Errorf("query columns %s.%s: %w", t.Schema, t.Name, err)
		}
		t.Columns = cols
		t.PrimaryKeys = pkeys

		// views carry no foreign keys of their own
		if t.Type == TypeTable {
			fkeys, err := queryForeignKeys(ctx, conn, t.Schema, t.Name)
			if err != nil {
				return nil, fmt.Errorf("query foreign keys %s.%s: %w", t.Schema, t.Name, err)
			}
			t.ForeignKeys = fkeys
		}

		tables[t.Key()] = t
	}
	return tables, tableRows.Err()
}

func queryColumns(ctx context.Context, conn pg.Conn, schema, table string) ([]Column, []string, error) {
	rows, err := conn.Query(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			CASE WHEN c.data_type = 'ARRAY' THEN ltrim(c.udt_name, '_') ELSE '' END,
			c.is_nullable = 'YES',
			c.column_default IS NOT NULL OR c.is_identity = 'YES',
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = $1
					AND tc.table_name = $2
					AND kcu.column_name = c.column_name
			) AS is_primary_key
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, schema, table)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cols []Column
	var pkeys []string
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.ElementType, &col.IsNullable, &col.HasDefault, &col.IsPrimaryKey); err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
		if col.IsPrimaryKey {
			pkeys = append(pkeys, col.Name)
		}
	}
	return cols, pkeys, rows.Err()
}

func queryForeignKeys(ctx context.Context, conn pg.Conn, schema, table string) ([]ForeignKey, error) {
	rows, err := conn.Query(ctx, `
		SELECT
			kcu.column_name,
			ccu.table_schema,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.constraint_schema = tc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fkeys []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ReferencedSchema, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, err
		}
		fkeys = append(fkeys, fk)
	}
	return fkeys, rows.Err()
}

func querySchemas(ctx context.Context, conn pg.Conn) ([]string, error) {
	rows, err := conn.Query(ctx, `SELECT schema_name FROM information_schema.schemata ORDER BY schema_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var schema string
		if err := rows.Scan(&schema); err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, rows.Err()
}
