package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/shop?sslmode=disable", driverURL("postgres://u:p@localhost:5432/shop?sslmode=disable"))
	require.Equal(t, "pgx5://db/shop", driverURL("postgresql://db/shop"))
	require.Equal(t, "pgx5://already", driverURL("pgx5://already"))
}

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFS, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}
