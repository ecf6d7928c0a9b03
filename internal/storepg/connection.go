package storepg

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config holds database connection configuration, mirroring the
// teacher's internal/infrastructure/db.Config field set and defaults.
type Config struct {
	DSN             string        `yaml:"dsn" env:"PG_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"PG_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"PG_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"PG_CONN_MAX_LIFETIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"PG_QUERY_TIMEOUT"`
}

// DefaultConfig returns the pool sizing the teacher's db.DefaultConfig
// ships (this system has no "disabled" mode — Postgres persistence is
// mandatory for ChakraOps, unlike the teacher's optional trades DB).
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    5 * time.Second,
	}
}

// Repos bundles every repository the core needs, handed to callers
// that assemble C1/C4/C5 (snapshot build, heartbeat cycle, freeze
// guard) without each one opening its own connection.
type Repos struct {
	Universe *UniverseRepo
	Snapshot *SnapshotRepo
	Regime   *RegimeRepo
	Freeze   *FreezeRepo
}

// Open connects to Postgres, applies the connection pool settings, runs
// the schema migration, and constructs the repository bundle.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, *Repos, error) {
	if cfg.DSN == "" {
		return nil, nil, fmt.Errorf("storepg: DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("storepg: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("storepg: ping: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	repos := &Repos{
		Universe: NewUniverseRepo(db, cfg.QueryTimeout),
		Snapshot: NewSnapshotRepo(db, cfg.QueryTimeout),
		Regime:   NewRegimeRepo(db, cfg.QueryTimeout),
		Freeze:   NewFreezeRepo(db, cfg.QueryTimeout),
	}
	return db, repos, nil
}
