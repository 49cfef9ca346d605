package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/config"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/lock"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/sqlite"
	"github.com/dmehra2102/Ordinal/internal/ordering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var faqs = domain.ParentID{Kind: domain.KindFAQ, NodeID: 4}

func setupStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ordinal.db")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("LOCK_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// seed creates titles under faqs through the coordinator.
func seed(t *testing.T, path string, titles ...string) {
	t.Helper()
	cfg := config.DatabaseConfig{SQLitePath: path, Timeout: 5 * time.Second}
	db, err := sqlite.Open(context.Background(), path, cfg)
	require.NoError(t, err)
	defer db.Close()

	coord := ordering.New(sqlite.NewSQLiteRepository(db, cfg), lock.NewMutexLocker(), zaptest.NewLogger(t))
	for _, title := range titles {
		_, err := coord.Create(context.Background(), faqs, domain.Payload{Title: title})
		require.NoError(t, err)
	}
}

func TestMigrateListVerify(t *testing.T) {
	path := setupStore(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite store is up to date")

	seed(t, path, "first", "second")

	out, err = run(t, "list", "--kind", "faq", "--node", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "POS")
	assert.Regexp(t, `(?m)^1\s+\d+\s+false\s+first$`, out)
	assert.Regexp(t, `(?m)^2\s+\d+\s+false\s+second$`, out)

	out, err = run(t, "verify", "--kind", "faq", "--node", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "faq:4: 2 items, positions are dense")
}

func TestVerifyFailsOnGap(t *testing.T) {
	path := setupStore(t)
	_, err := run(t, "migrate")
	require.NoError(t, err)
	seed(t, path, "a", "b", "c")

	db, err := sqlite.Open(context.Background(), path, config.DatabaseConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE ordered_items SET position = 4 WHERE parent_kind = 'faq' AND parent_id = 4 AND position = 3`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := run(t, "verify", "--kind", "faq", "--node", "4")
	require.Error(t, err, "a gapped list must fail so the process exits non-zero")
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
	assert.Contains(t, out, "missing:      [3]")
	assert.Contains(t, out, "out of range: [4]")
}

func TestVerifyRejectsUnknownKind(t *testing.T) {
	setupStore(t)

	_, err := run(t, "verify", "--kind", "wiki", "--node", "4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `--kind "wiki"`)
}
