// Package store resolves the configured storage backend into one Registry
// of repositories. Every other package depends on the interfaces in
// internal/types, never on a concrete backend.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"upkeep/internal/config"
	"upkeep/internal/db"
	"upkeep/internal/store/memory"
	"upkeep/internal/types"
)

// Registry exposes every repository of one backend.
type Registry struct {
	Locations     types.LocationRepository
	Assets        types.AssetRepository
	Templates     types.TemplateRepository
	Requests      types.RequestRepository
	Users         types.UserRepository
	Notifications types.NotificationRepository
	JobLocks      types.JobLockRepository
	JobHistory    types.JobHistoryRepository
	Tx            types.TxManager

	ping  func(ctx context.Context) error
	close func()
}

// Ping probes the backend. Used by the health endpoint.
func (r *Registry) Ping(ctx context.Context) error {
	if r.ping == nil {
		return nil
	}
	return r.ping(ctx)
}

// Close releases backend resources.
func (r *Registry) Close() {
	if r.close != nil {
		r.close()
	}
}

// Open builds the Registry selected by cfg.Driver. For postgres it creates
// the pool, verifies connectivity and, when AutoMigrate is set, applies the
// schema. clock stamps lock and job history times; nil means wall time.
func Open(ctx context.Context, cfg config.DatabaseConfig, clock types.Clock, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on exit")
		return NewMemory(memory.New(clock)), nil
	case "postgres", "":
		return openPostgres(ctx, cfg, clock, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, clock types.Clock, logger *slog.Logger) (*Registry, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database schema applied")
	}

	return NewPostgres(pool, clock), nil
}

// NewPostgres wires the pgx repositories over pool.
func NewPostgres(pool *pgxpool.Pool, clock types.Clock) *Registry {
	return &Registry{
		Locations:     db.NewLocationRepository(pool),
		Assets:        db.NewAssetRepository(pool),
		Templates:     db.NewTemplateRepository(pool),
		Requests:      db.NewRequestRepository(pool),
		Users:         db.NewUserRepository(pool),
		Notifications: db.NewNotificationRepository(pool),
		JobLocks:      db.NewJobLockRepository(pool, clock),
		JobHistory:    db.NewJobHistoryRepository(pool, clock),
		Tx:            db.NewTxManager(pool),
		ping:          pool.Ping,
		close:         pool.Close,
	}
}

// NewMemory wires the in-memory repositories of s. Tests use it to share
// one memory.Store between the registry and direct assertions.
func NewMemory(s *memory.Store) *Registry {
	return &Registry{
		Locations:     s.Locations(),
		Assets:        s.Assets(),
		Templates:     s.Templates(),
		Requests:      s.Requests(),
		Users:         s.Users(),
		Notifications: s.Notifications(),
		JobLocks:      s.JobLocks(),
		JobHistory:    s.JobHistory(),
		Tx:            s,
		ping:          s.Ping,
		close:         s.Close,
	}
}
