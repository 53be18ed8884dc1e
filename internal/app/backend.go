package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/treecleaner/internal/adapter/memstore"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/actionlog"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/datenorm"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/family"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/field"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/issue"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/media"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/person"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/placerule"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/ref"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/snapshot"
	"github.com/heartmarshall/treecleaner/internal/config"
	"github.com/heartmarshall/treecleaner/internal/detector"
	issuesvc "github.com/heartmarshall/treecleaner/internal/service/issue"
	"github.com/heartmarshall/treecleaner/internal/service/remediation"
	"github.com/heartmarshall/treecleaner/internal/service/scan"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Backend holds the services wired to one record store.
type Backend struct {
	Scan        *scan.Service
	Issues      *issuesvc.Service
	Remediation *remediation.Service

	// Store answers health probes; Component names it ("postgres" or "memory").
	Store     pinger
	Component string
	// Memory is set for the memory driver so callers can export its state.
	Memory *memstore.Store

	close func()
}

// Close releases the store connection.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

func detectorConfig(cfg config.DQConfig) detector.Config {
	return detector.Config{MediaSizeBump: cfg.MediaSizeBump}
}

func remediationConfig(cfg config.DQConfig) remediation.Config {
	return remediation.Config{MaxMergeRefs: cfg.MaxMergeRefs, MaxNormalizeItems: cfg.MaxNormalizeItems}
}

// OpenBackend connects the configured store and builds the services on it.
func OpenBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Backend, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		return openMemory(cfg, log)
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func openMemory(cfg *config.Config, log *slog.Logger) (*Backend, error) {
	store := memstore.New()
	if cfg.Database.Dataset != "" {
		if err := store.LoadFile(cfg.Database.Dataset); err != nil {
			return nil, err
		}
		log.Info("dataset loaded", slog.String("path", cfg.Database.Dataset))
	}
	return NewMemoryBackend(store, cfg.DQ, log), nil
}

// NewMemoryBackend builds the services on an in-memory store.
func NewMemoryBackend(store *memstore.Store, cfg config.DQConfig, log *slog.Logger) *Backend {
	return &Backend{
		Scan:   scan.NewService(log, store.Snapshots(), store.Issues(), store.DateNorms(), store.Actions(), store, detectorConfig(cfg)),
		Issues: issuesvc.NewService(log, store.Issues(), store.Actions(), store),
		Remediation: remediation.NewService(log, remediation.Repos{
			Persons:   store.Persons(),
			Families:  store.Families(),
			Media:     store.Media(),
			Refs:      store.Refs(),
			Fields:    store.Fields(),
			Issues:    store.Issues(),
			Actions:   store.Actions(),
			Rules:     store.PlaceRules(),
			DateNorms: store.DateNorms(),
		}, store, remediationConfig(cfg)),
		Store:     store,
		Component: config.DriverMemory,
		Memory:    store,
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		version, err := postgres.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied", slog.Int64("version", version))
	}

	tx := postgres.NewTxManager(pool, postgres.RetryPolicy{
		MaxRetries: cfg.DQ.TxMaxRetries,
		BaseDelay:  cfg.DQ.TxRetryBaseDelay,
	})
	issues := issue.New(pool)
	actions := actionlog.New(pool)
	dates := datenorm.New(pool)

	return &Backend{
		Scan:   scan.NewService(log, snapshot.New(pool), issues, dates, actions, tx, detectorConfig(cfg.DQ)),
		Issues: issuesvc.NewService(log, issues, actions, tx),
		Remediation: remediation.NewService(log, remediation.Repos{
			Persons:   person.New(pool),
			Families:  family.New(pool),
			Media:     media.New(pool),
			Refs:      ref.New(pool),
			Fields:    field.New(pool),
			Issues:    issues,
			Actions:   actions,
			Rules:     placerule.New(pool),
			DateNorms: dates,
		}, tx, remediationConfig(cfg.DQ)),
		Store:     pool,
		Component: config.DriverPostgres,
		close:     pool.Close,
	}, nil
}

// Migrate applies pending migrations to the configured PostgreSQL database.
func Migrate(ctx context.Context, cfg config.DatabaseConfig) (int64, error) {
	if cfg.Driver != config.DriverPostgres {
		return 0, fmt.Errorf("migrate needs the %s driver, got %q", config.DriverPostgres, cfg.Driver)
	}
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer pool.Close()
	return postgres.Migrate(ctx, pool)
}
