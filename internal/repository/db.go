package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// NewDB opens and pings the connection pool for a relational dialect.
func NewDB(ctx context.Context, d dialect, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	dsn, err := normalizeDSN(d, cfg.ConnectionString)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.name, err)
	}

	maxOpen := cfg.MaxOpenConns
	if d.name == sqliteDialect.name && strings.Contains(dsn, ":memory:") {
		// every connection would otherwise see its own empty database
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	return db, nil
}

func normalizeDSN(d dialect, raw string) (string, error) {
	dsn := strings.TrimSpace(raw)
	switch d.name {
	case sqliteDialect.name:
		dsn = strings.TrimPrefix(dsn, "Data Source=")
		if dsn == "" {
			dsn = "logs/access.db"
		}
		path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
		if path != ":memory:" && path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
		}
		return dsn, nil
	case mysqlDialect.name:
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		mc.ParseTime = true
		mc.Loc = time.UTC
		return mc.FormatDSN(), nil
	default:
		if dsn == "" {
			return "", fmt.Errorf("%s connection string is empty", d.name)
		}
		return dsn, nil
	}
}
