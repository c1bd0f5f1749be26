// Package schema keeps an in-memory catalog of the relations (tables, views,
// materialized views) the connected role can read, together with their
// ordered columns. The catalog reloads when it receives
//
//	NOTIFY pgview, 'reload schema'
//
// and is used to whitelist view query targets and filter fields.
package schema

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/cenkalti/backoff/v4"
	pg "github.com/edgeflare/pgview/pkg/pgx"
	"github.com/edgeflare/pgview/pkg/metrics"
	"github.com/edgeflare/pgview/pkg/view"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	// Following PostgREST's notification convention
	// https://docs.postgrest.org/en/stable/references/schema_cache.html
	reloadChannel = "pgview"
	reloadPayload = "reload schema"
)

type RelationType string

const (
	TypeTable            RelationType = "TABLE"
	TypeView             RelationType = "VIEW"
	TypeMaterializedView RelationType = "MATERIALIZED VIEW"
	TypeForeignTable     RelationType = "FOREIGN TABLE"
)

type Relation struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Type        RelationType `json:"type"`
	Description string       `json:"description,omitempty"`
	Columns     []Column     `json:"columns"`
}

type Column struct {
	Name        string `json:"name"`
	DataType    string `json:"data_type"`
	Description string `json:"description,omitempty"`
	IsNullable  bool   `json:"is_nullable"`
}

func (r *Relation) fullName() string {
	return r.Schema + "." + r.Name
}

// ColumnNames returns the column names in ordinal order.
func (r *Relation) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Cache holds the catalog. All methods are safe for concurrent use.
type Cache struct {
	pool       *pgxpool.Pool
	listener   *pgx.Conn
	logger     *zap.Logger
	relations  map[string]Relation // key: schema_name.relation_name
	searchPath []string
	watch      chan map[string]Relation
	cancel     context.CancelFunc
	done       chan struct{}
	mu         sync.RWMutex
}

// NewCache returns an empty cache reading from pool. Call Init to load it.
func NewCache(pool *pgxpool.Pool, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		pool:      pool,
		logger:    logger.Named("catalog"),
		relations: make(map[string]Relation),
		watch:     make(chan map[string]Relation, 1),
		done:      make(chan struct{}),
	}
}

// Init loads the catalog and starts listening for reload notifications.
func (c *Cache) Init(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.Reload(ctx); err != nil {
		cancel()
		return fmt.Errorf("initial load: %w", err)
	}

	if err := c.listen(ctx); err != nil {
		cancel()
		return fmt.Errorf("listen: %w", err)
	}

	go c.handleUpdates(ctx)
	return nil
}

// Close stops listening. The pool is owned by the caller and stays open.
func (c *Cache) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	if c.listener != nil {
		c.listener.Close(context.Background())
	}
	close(c.watch)
}

// Watch delivers a snapshot after every reload. Snapshots nobody received
// are replaced by newer ones.
func (c *Cache) Watch() <-chan map[string]Relation {
	return c.watch
}

// listen takes a dedicated connection out of the pool for LISTEN.
func (c *Cache) listen(ctx context.Context) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("pool.Acquire: %w", err)
	}
	listener := conn.Hijack()

	if _, err := listener.Exec(ctx, "LISTEN "+reloadChannel); err != nil {
		listener.Close(context.Background())
		return err
	}
	c.listener = listener
	return nil
}

func (c *Cache) handleUpdates(ctx context.Context) {
	defer close(c.done)

	for {
		notification, err := c.listener.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("waiting for notification", zap.Error(err))
			if err := c.relisten(ctx); err != nil {
				return
			}
			// notifications may have been missed while disconnected
			if err := c.Reload(ctx); err != nil {
				c.logger.Error("reload", zap.Error(err))
			}
			continue
		}

		if notification.Payload == reloadPayload {
			if err := c.Reload(ctx); err != nil {
				c.logger.Error("reload", zap.Error(err))
			}
		}
	}
}

// relisten replaces a broken listener connection, retrying until ctx ends.
func (c *Cache) relisten(ctx context.Context) error {
	c.listener.Close(context.Background())

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return backoff.Retry(func() error {
		err := c.listen(ctx)
		if err != nil {
			c.logger.Warn("re-establishing listener", zap.Error(err))
		}
		return err
	}, backoff.WithContext(b, ctx))
}

// Reload reads the catalog again and replaces the cached copy.
func (c *Cache) Reload(ctx context.Context) error {
	relations, searchPath, err := Load(ctx, c.pool)
	if err != nil {
		return err
	}
	c.set(relations, searchPath)
	c.logger.Info("catalog loaded", zap.Int("relations", len(relations)), zap.Strings("search_path", searchPath))
	return nil
}

func (c *Cache) set(relations map[string]Relation, searchPath []string) {
	c.mu.Lock()
	c.relations = relations
	c.searchPath = searchPath
	c.mu.Unlock()

	metrics.CatalogRelations.Set(float64(len(relations)))

	snap := c.Snapshot()
	select {
	case c.watch <- snap:
	default:
		// drop the unread snapshot in favour of this one
		select {
		case <-c.watch:
		default:
		}
		select {
		case c.watch <- snap:
		default:
		}
	}
}

func (c *Cache) Snapshot() map[string]Relation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[string]Relation, len(c.relations))
	maps.Copy(snap, c.relations)
	return snap
}

// Lookup finds a relation. An unqualified name resolves through the search
// path captured at load time, first match wins.
func (c *Cache) Lookup(schema, name string) (Relation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if schema != "" {
		r, ok := c.relations[schema+"."+name]
		return r, ok
	}
	for _, s := range c.searchPath {
		if r, ok := c.relations[s+"."+name]; ok {
			return r, true
		}
	}
	return Relation{}, false
}

// Columns implements view.Catalog.
func (c *Cache) Columns(t view.Target) ([]string, bool) {
	r, ok := c.Lookup(t.Schema, t.Name)
	if !ok {
		return nil, false
	}
	return r.ColumnNames(), true
}

var _ view.Catalog = (*Cache)(nil)

type catalogRow struct {
	Schema         string
	Relation       string
	RelType        string
	RelDescription *string
	Column         string
	DataType       string
	Description    *string
	IsNullable     bool
}

const catalogSQL = `SELECT
	n.nspname,
	c.relname,
	CASE c.relkind
		WHEN 'v' THEN 'VIEW'
		WHEN 'm' THEN 'MATERIALIZED VIEW'
		WHEN 'f' THEN 'FOREIGN TABLE'
		ELSE 'TABLE'
	END,
	obj_description(c.oid, 'pg_class'),
	a.attname,
	format_type(a.atttypid, a.atttypmod),
	col_description(c.oid, a.attnum),
	NOT a.attnotnull
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped
WHERE c.relkind IN ('r', 'p', 'v', 'm', 'f')
	AND n.nspname <> ALL (@system::text[])
	AND n.nspname NOT LIKE 'pg\_toast%'
	AND n.nspname NOT LIKE 'pg\_temp\_%'
	AND has_table_privilege(c.oid, 'SELECT')
ORDER BY n.nspname, c.relname, a.attnum`

var systemSchemas = []string{"information_schema", "pg_catalog"}

// Load reads every readable non-system relation with its columns, and the
// session's effective search path.
func Load(ctx context.Context, conn pg.Conn) (map[string]Relation, []string, error) {
	var searchPath []string
	if err := conn.QueryRow(ctx, "SELECT current_schemas(false)").Scan(&searchPath); err != nil {
		return nil, nil, fmt.Errorf("query search path: %w", err)
	}

	rows, err := conn.Query(ctx, catalogSQL, pgx.NamedArgs{"system": systemSchemas})
	if err != nil {
		return nil, nil, fmt.Errorf("query catalog: %w", err)
	}
	catalog, err := pgx.CollectRows(rows, pgx.RowToStructByPos[catalogRow])
	if err != nil {
		return nil, nil, fmt.Errorf("query catalog: %w", err)
	}

	return group(catalog), searchPath, nil
}

// group folds catalog rows, ordered by relation and ordinal, into relations.
func group(catalog []catalogRow) map[string]Relation {
	relations := make(map[string]Relation)
	for _, row := range catalog {
		key := row.Schema + "." + row.Relation
		r, ok := relations[key]
		if !ok {
			r = Relation{
				Schema:      row.Schema,
				Name:        row.Relation,
				Type:        RelationType(row.RelType),
				Description: deref(row.RelDescription),
			}
		}
		r.Columns = append(r.Columns, Column{
			Name:        row.Column,
			DataType:    row.DataType,
			Description: deref(row.Description),
			IsNullable:  row.IsNullable,
		})
		relations[key] = r
	}
	return relations
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
