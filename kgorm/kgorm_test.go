package kgorm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "hubid.db") + "?_pragma=busy_timeout(5000)"
	repo, err := NewStorage("sqlite", dsn, Options{MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func strPtr(s string) *string { return &s }

func TestNewStorageUnknownProvider(t *testing.T) {
	_, err := NewStorage("oracle", "dsn", nil)
	require.Error(t, err)
}

func TestNewStorageMigratesSchema(t *testing.T) {
	repo := newTestRepository(t)
	require.Equal(t, "sqlite", repo.Dialect())
	for _, table := range []string{"admin_users", "managers", "contractors", "customers", "centers", "crew", "warehouses", "identity_counters", "audit_events"} {
		require.True(t, repo.DB().Migrator().HasTable(table), table)
	}
}
