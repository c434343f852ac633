package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateUpSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "board.db")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_PATH", path)

	output, err := execute(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, output, "sqlite schema ready")

	_, err = os.Stat(path)
	require.NoError(t, err)

	// Re-running is a no-op.
	_, err = execute(t, "migrate", "up")
	require.NoError(t, err)
}

func TestMigrateDownRejectsSQLite(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "board.db"))

	_, err := execute(t, "migrate", "down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only supported for the postgres driver")

	_, err = execute(t, "migrate", "version")
	require.Error(t, err)
}
