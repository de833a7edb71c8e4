package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationVersionsSorted(t *testing.T) {
	files := fstest.MapFS{
		"migrations/002_memories.sql": {Data: []byte("SELECT 1")},
		"migrations/001_init.sql":     {Data: []byte("SELECT 1")},
		"migrations/README.md":        {Data: []byte("notes")},
	}

	versions, err := migrationVersions(files)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_memories.sql"}, versions)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	versions, err := migrationVersions(migrationFiles)
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, "001_sessions.sql", versions[0])
}
