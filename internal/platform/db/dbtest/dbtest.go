// Package dbtest starts a throwaway Postgres for integration tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/platform/db"
	"github.com/fatflowers/alumni/pkg/config"
)

// New returns a migrated database, or skips the test under -short or when
// no container provider is available.
func New(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("alumni"),
		tcpostgres.WithUsername("alumni"),
		tcpostgres.WithPassword("alumni"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	l := zap.NewNop().Sugar()
	gdb, err := db.Open(l, dsn, config.DBConfig{LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(l, gdb))
	return gdb
}
