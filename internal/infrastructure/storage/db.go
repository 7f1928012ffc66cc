package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// DB is the shared persistence handle: a sqlx pool plus a squirrel builder
// configured with the driver's placeholder format.
type DB struct {
	*sqlx.DB
	driver string
	sb     sq.StatementBuilderType
}

// Open connects to SQLite or Postgres and ensures the schema exists.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case "", DriverSQLite, "sqlite3":
		driver = DriverSQLite
	case DriverPostgres, "postgres", "postgresql":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	var placeholder sq.PlaceholderFormat = sq.Dollar
	if driver == DriverSQLite {
		// A single connection serialises writers and keeps :memory: databases shared.
		conn.SetMaxOpenConns(1)
		placeholder = sq.Question
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	db := &DB{
		DB:     conn,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
	if err := db.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

// Driver returns the normalised driver name.
func (db *DB) Driver() string { return db.driver }

func (db *DB) ensureSchema(ctx context.Context) error {
	schema := sqliteSchema
	if db.driver == DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS scout_configs(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 1,
  policy_json TEXT NOT NULL,
  policy_version INTEGER NOT NULL DEFAULT 1,
  last_run_at INTEGER,
  total_runs INTEGER NOT NULL DEFAULT 0,
  total_opportunities_found INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scout_configs_enabled ON scout_configs(enabled);

CREATE TABLE IF NOT EXISTS scout_queue(
  id TEXT PRIMARY KEY,
  config_id TEXT NOT NULL,
  source_platform TEXT NOT NULL,
  target_platform TEXT NOT NULL,
  source_price REAL NOT NULL,
  target_price REAL NOT NULL,
  estimated_margin_pct REAL NOT NULL,
  estimated_profit REAL NOT NULL,
  product_id TEXT NOT NULL DEFAULT '',
  product_name TEXT NOT NULL DEFAULT '',
  product_url TEXT NOT NULL DEFAULT '',
  image_url TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  brand TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL CHECK (status IN ('pending','approved','rejected','expired','listed')),
  reviewed_at INTEGER,
  listed_at INTEGER,
  listing_id TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scout_queue_config_status ON scout_queue(config_id, status);
CREATE INDEX IF NOT EXISTS idx_scout_queue_status_created ON scout_queue(status, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_scout_queue_pending_dedup
  ON scout_queue(config_id, source_platform, product_url)
  WHERE status = 'pending' AND product_url <> ''
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS scout_configs(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  enabled BOOLEAN NOT NULL DEFAULT TRUE,
  policy_json TEXT NOT NULL,
  policy_version INTEGER NOT NULL DEFAULT 1,
  last_run_at BIGINT,
  total_runs BIGINT NOT NULL DEFAULT 0,
  total_opportunities_found BIGINT NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scout_configs_enabled ON scout_configs(enabled);

CREATE TABLE IF NOT EXISTS scout_queue(
  id TEXT PRIMARY KEY,
  config_id TEXT NOT NULL,
  source_platform TEXT NOT NULL,
  target_platform TEXT NOT NULL,
  source_price DOUBLE PRECISION NOT NULL,
  target_price DOUBLE PRECISION NOT NULL,
  estimated_margin_pct DOUBLE PRECISION NOT NULL,
  estimated_profit DOUBLE PRECISION NOT NULL,
  product_id TEXT NOT NULL DEFAULT '',
  product_name TEXT NOT NULL DEFAULT '',
  product_url TEXT NOT NULL DEFAULT '',
  image_url TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  brand TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL CHECK (status IN ('pending','approved','rejected','expired','listed')),
  reviewed_at BIGINT,
  listed_at BIGINT,
  listing_id TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scout_queue_config_status ON scout_queue(config_id, status);
CREATE INDEX IF NOT EXISTS idx_scout_queue_status_created ON scout_queue(status, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_scout_queue_pending_dedup
  ON scout_queue(config_id, source_platform, product_url)
  WHERE status = 'pending' AND product_url <> ''
`

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
