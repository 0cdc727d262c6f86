// internal/storage/storage_test.go
package storage_test

import (
	"testing"

	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/storage"
	"github.com/fieldtrack/trackcheck/internal/storage/memory"
	"github.com/fieldtrack/trackcheck/internal/storage/postgres"
	sqlitestorage "github.com/fieldtrack/trackcheck/internal/storage/sqlite"
	"github.com/fieldtrack/trackcheck/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend     = (*memory.Backend)(nil)
	_ storage.Uploadable  = (*memory.Backend)(nil)
	_ storage.Backend     = (*postgres.Backend)(nil)
	_ storage.Monitorable = (*postgres.Backend)(nil)
	_ storage.Backend     = (*sqlitestorage.Backend)(nil)
	_ storage.Monitorable = (*sqlitestorage.Backend)(nil)
)

func TestErrNotFoundIsCore(t *testing.T) {
	assert.ErrorIs(t, storage.ErrNotFound, core.ErrNotFound)
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		typ  string
		want any
	}{
		{"memory", &memory.Backend{}},
		{"", &memory.Backend{}},
		{"postgres", &postgres.Backend{}},
		{"sqlite", &sqlitestorage.Backend{}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			b, err := storage.NewBackend(config.StorageConfig{Type: tt.typ}, nil)
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := storage.NewBackend(config.StorageConfig{Type: "mongo"}, nil)
	assert.ErrorContains(t, err, "unknown storage type: mongo")
}
