package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect_MapError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordinal.db")
	require.NoError(t, Migrate(path))
	db, err := Open(context.Background(), path, config.DatabaseConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`INSERT INTO ordered_items (parent_kind, parent_id, position, title, created_at, updated_at)
		VALUES ('faq', 1, 0, 'zero', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.Error(t, err)
	assert.ErrorIs(t, dialect{}.MapError(err), domain.ErrConstraintViolation, "CHECK failure: %v", err)

	_, err = db.Exec(`INSERT INTO ordered_items (parent_kind, parent_id, position, created_at, updated_at)
		VALUES ('faq', 1, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.Error(t, err)
	assert.ErrorIs(t, dialect{}.MapError(err), domain.ErrConstraintViolation, "NOT NULL failure: %v", err)

	_, err = db.Exec(`SELECT * FROM missing_table`)
	require.Error(t, err)
	assert.NotErrorIs(t, dialect{}.MapError(err), domain.ErrConstraintViolation)

	assert.NotErrorIs(t, dialect{}.MapError(errors.New("UNIQUE constraint failed: fake")), domain.ErrConstraintViolation,
		"only driver errors carry a result code")
	assert.NoError(t, dialect{}.MapError(nil))
}
