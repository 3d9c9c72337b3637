package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/GoPolymarket/logreplay/internal/config"
	gormlogger "gorm.io/gorm/logger"
)

// Stores bundles the two stores a provider supplies plus their shared resources.
type Stores struct {
	Provider   string
	AccessLogs AccessLogStore
	Accounts   AccountStore
	closers    []func() error
}

func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Factory builds the stores for one provider. It must not create schema;
// Open calls Initialize afterwards.
type Factory func(ctx context.Context, cfg *config.Config) (*Stores, error)

var (
	registryMu sync.RWMutex
	providers  = map[string]Factory{}
)

func init() {
	Register(openPostgres, "postgres", "postgresql", "pg")
	Register(openMySQL, "mysql", "mariadb")
	Register(openSQLite, "sqlite", "sqlite3")
	Register(openRedis, "redis")
	Register(openMemory, "memory", "inmemory")
}

// Register adds a factory under one or more provider names. Names are case-insensitive.
func Register(f Factory, names ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, n := range names {
		providers[normalizeProvider(n)] = f
	}
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Lookup resolves a provider name without opening anything.
func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if f, ok := providers[normalizeProvider(name)]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownProvider, name, strings.Join(providerNamesLocked(), ", "))
}

func providerNamesLocked() []string {
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open resolves the configured provider, connects and ensures both schemas.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	factory, err := Lookup(cfg.Database.Provider)
	if err != nil {
		return nil, err
	}
	stores, err := factory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	stores.Provider = normalizeProvider(cfg.Database.Provider)

	if err := stores.AccessLogs.Initialize(ctx); err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("initialize access log store: %w", err)
	}
	if err := stores.Accounts.Initialize(ctx); err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("initialize account store: %w", err)
	}
	return stores, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*Stores, error) {
	return openRelational(ctx, cfg, postgresDialect)
}

func openMySQL(ctx context.Context, cfg *config.Config) (*Stores, error) {
	return openRelational(ctx, cfg, mysqlDialect)
}

func openSQLite(ctx context.Context, cfg *config.Config) (*Stores, error) {
	return openRelational(ctx, cfg, sqliteDialect)
}

func openRelational(ctx context.Context, cfg *config.Config, d dialect) (*Stores, error) {
	db, err := NewDB(ctx, d, &cfg.Database)
	if err != nil {
		return nil, err
	}
	level := gormlogger.Warn
	if cfg.Server.Mode == "test" {
		level = gormlogger.Silent
	}
	gdb, err := OpenGorm(db.DB, d, level)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &Stores{
		AccessLogs: NewSQLAccessLogStore(db, d, cfg.Database.AccessLogTable),
		Accounts:   NewGormAccountStore(gdb, cfg.Database.AdminAccountTable),
		closers:    []func() error{db.Close},
	}, nil
}

func openRedis(ctx context.Context, cfg *config.Config) (*Stores, error) {
	rdb, err := NewRedisClient(ctx, cfg.Database.ConnectionString)
	if err != nil {
		return nil, err
	}
	return &Stores{
		AccessLogs: NewRedisAccessLogStore(rdb, cfg.Database.AccessLogTable),
		Accounts:   NewRedisAccountStore(rdb, cfg.Database.AdminAccountTable),
		closers:    []func() error{rdb.Close},
	}, nil
}

func openMemory(_ context.Context, cfg *config.Config) (*Stores, error) {
	return &Stores{
		AccessLogs: NewMemoryAccessLogStore(cfg.Database.MemoryMaxRecords),
		Accounts:   NewMemoryAccountStore(),
	}, nil
}
