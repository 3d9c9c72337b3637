package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupIsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"Sqlite", "SQLITE3", " PostgreSQL ", "MySQL", "Redis", "memory"} {
		_, err := Lookup(name)
		assert.NoError(t, err, name)
	}

	_, err := Lookup("cassandra")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegisterCustomProvider(t *testing.T) {
	called := false
	Register(func(ctx context.Context, cfg *config.Config) (*Stores, error) {
		called = true
		return openMemory(ctx, cfg)
	}, "Custom-Test")

	cfg := config.Default()
	cfg.Database.Provider = "custom-test"
	stores, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer stores.Close()
	assert.True(t, called)
	assert.Equal(t, "custom-test", stores.Provider)
}

func TestOpenSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Mode = "test"
	cfg.Database.Provider = "Sqlite"
	cfg.Database.ConnectionString = "Data Source=" + filepath.Join(t.TempDir(), "nested", "access.db")

	ctx := context.Background()
	stores, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer stores.Close()

	rec := &model.AccessLog{RequestID: "abc", Method: "GET", Path: "/api/ping", Level: model.LevelInfo}
	require.NoError(t, stores.AccessLogs.Insert(ctx, rec))
	got, err := stores.AccessLogs.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "/api/ping", got.Path)

	require.NoError(t, stores.Accounts.Create(ctx, &model.AdminAccount{Username: "root", Role: model.RoleAdmin, IsActive: true}))

	// reopening runs Initialize again against the existing schema
	again, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer again.Close()
	acc, err := again.Accounts.GetByUsername(ctx, "root")
	require.NoError(t, err)
	assert.True(t, acc.IsActive)
}

func TestOpenUnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Provider = "oracle"
	_, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
