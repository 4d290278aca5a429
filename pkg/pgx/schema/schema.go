// Package schema caches PostgreSQL relation metadata: tables, views, their
// columns, and the relationships implied by foreign keys.
// The cache reloads on a NOTIFY and is the catalog resources and filters
// resolve entity and field names against.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"

	pg "github.com/edgeflare/restful/pkg/pgx"
	"github.com/edgeflare/restful/pkg/query"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	// Following PostgREST's notification convention
	// https://docs.postgrest.org/en/stable/references/schema_cache.html
	reloadChannel = "restful"
	reloadPayload = "reload schema"
)

type TableType string

const (
	TypeTable            TableType = "TABLE"
	TypeView             TableType = "VIEW"
	TypeMaterializedView TableType = "MATERIALIZED VIEW"
)

type Table struct {
	Schema        string         `json:"schema"`
	Name          string         `json:"name"`
	Type          TableType      `json:"type"`
	Columns       []Column       `json:"columns"`
	PrimaryKeys   []string       `json:"primary_keys"`
	ForeignKeys   []ForeignKey   `json:"foreign_keys"`
	Relationships []Relationship `json:"relationships,omitempty"`
	ViewQuery     string         `json:"view_query,omitempty"`
}

type Column struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	ElementType  string `json:"element_type,omitempty"`
	IsNullable   bool   `json:"is_nullable"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	HasDefault   bool   `json:"has_default"`
}

// IsArray reports whether the column holds a PostgreSQL array.
func (c Column) IsArray() bool {
	return c.DataType == "ARRAY" || strings.HasSuffix(c.DataType, "[]")
}

type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedSchema string `json:"referenced_schema"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// Key returns the "schema.name" catalog key.
func (t Table) Key() string {
	return t.Schema + "." + t.Name
}

// Ref returns the table as a query operand.
func (t Table) Ref() query.Table {
	return query.Table{Schema: t.Schema, Name: t.Name}
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Relationship looks up a relationship by name.
func (t Table) Relationship(name string) (Relationship, bool) {
	for _, r := range t.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// Catalog is a static set of tables keyed by "schema.name".
type Catalog map[string]Table

// NewCatalog indexes tables and derives their relationships.
func NewCatalog(tables ...Table) Catalog {
	c := make(Catalog, len(tables))
	for _, t := range tables {
		c[t.Key()] = t
	}
	linkRelationships(c)
	return c
}

// Lookup returns the table stored under key.
func (c Catalog) Lookup(key string) (Table, bool) {
	t, ok := c[key]
	return t, ok
}

type Cache struct {
	pool   *pgxpool.Pool
	conn   *pgx.Conn
	tables Catalog
	watch  chan Catalog
	logger *zap.Logger
	cancel context.CancelFunc
	mu     sync.RWMutex
}

type CacheOption func(*Cache)

func WithLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache returns a cache reading the catalog through pool. A dedicated
// connection is taken from pool for LISTEN.
func NewCache(ctx context.Context, pool *pgxpool.Pool, opts ...CacheOption) (*Cache, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool.Acquire: %w", err)
	}

	c := &Cache{
		pool:   pool,
		conn:   conn.Hijack(),
		tables: make(Catalog),
		watch:  make(chan Catalog, 1),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Cache) Init(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.reload(ctx); err != nil {
		cancel()
		return fmt.Errorf("initial load: %w", err)
	}

	if _, err := c.conn.Exec(ctx, "LISTEN "+reloadChannel); err != nil {
		cancel()
		return fmt.Errorf("listen: %w", err)
	}

	go c.handleUpdates(ctx)
	return nil
}

// Close stops listening. The pool belongs to the caller.
func (c *Cache) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close(context.Background())
	}
	close(c.watch)
}

// Watch delivers the latest snapshot after every reload. Snapshots a slow
// reader has not taken are replaced by newer ones.
func (c *Cache) Watch() <-chan Catalog {
	return c.watch
}

func (c *Cache) handleUpdates(ctx context.Context) {
	for {
		notification, err := c.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("schema notification", zap.Error(err))
			continue
		}

		if notification.Payload == reloadPayload {
			if err := c.reload(ctx); err != nil {
				c.logger.Error("schema reload", zap.Error(err))
				continue
			}
			c.logger.Info("schema reloaded")
		}
	}
}

func (c *Cache) reload(ctx context.Context) error {
	tables, err := loadAll(ctx, c.pool)
	if err != nil {
		return err
	}
	linkRelationships(tables)

	c.mu.Lock()
	c.tables = tables
	c.mu.Unlock()

	snap := c.Snapshot()
	select {
	case c.watch <- snap:
	default:
		select {
		case <-c.watch:
		default:
		}
		c.watch <- snap
	}
	return nil
}

// Lookup returns the cached table stored under key.
func (c *Cache) Lookup(key string) (Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[key]
	return t, ok
}

func (c *Cache) Snapshot() Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(Catalog, len(c.tables))
	maps.Copy(snap, c.tables)
	return snap
}

func loadAll(ctx context.Context, conn pg.Conn) (Catalog, error) {
	schemas, err := querySchemas(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}

	tables := make(Catalog)
	for _, schema := range schemas {
		if isSystem(schema) {
			continue
		}

		schemaTables, err := loadSchema(ctx, conn, schema)
		if err != nil {
			return nil, fmt.Errorf("load schema %s: %w", schema, err)
		}

		maps.Copy(tables, schemaTables)
	}
	return tables, nil
}

func isSystem(schema string) bool {
	return schema == "information_schema" || strings.HasPrefix(schema, "pg_")
}

// Handler serves the cached catalog as JSON.
func (c *Cache) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(c.Snapshot()); err != nil {
			c.logger.Error("encode schema", zap.Error(err))
		}
	})
}
