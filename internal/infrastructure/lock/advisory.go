package lock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/dmehra2102/Ordinal/internal/domain"
)

// AdvisoryLocker uses Postgres session-level advisory locks. Each holder
// keeps one connection of db for the duration of its critical section, so
// db should be a pool separate from the one used for item queries.
type AdvisoryLocker struct {
	db *sql.DB
}

func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// AdvisoryKey maps a parent onto the bigint key space of pg_advisory_lock.
func AdvisoryKey(parent domain.ParentID) int64 {
	h := fnv.New64a()
	h.Write([]byte(parent.String()))
	return int64(h.Sum64())
}

func (l *AdvisoryLocker) Acquire(ctx context.Context, parent domain.ParentID) (domain.LockToken, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to reserve lock connection: %v: %w", err, domain.ErrLockUnavailable)
	}

	key := AdvisoryKey(parent)
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		// The backend may still grant the lock after a cancelled wait, so the
		// connection is never reused.
		discard(conn)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to take advisory lock %d: %v: %w", key, err, domain.ErrLockUnavailable)
	}

	return &advisoryToken{parent: parent, key: key, conn: conn}, nil
}

type advisoryToken struct {
	parent domain.ParentID
	key    int64
	conn   *sql.Conn
	once   sync.Once
	err    error
}

func (t *advisoryToken) Parent() domain.ParentID { return t.parent }

func (t *advisoryToken) Release(ctx context.Context) error {
	t.once.Do(func() {
		var released bool
		err := t.conn.QueryRowContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", t.key).Scan(&released)
		if err != nil || !released {
			discard(t.conn)
			if err == nil {
				err = fmt.Errorf("advisory lock %d was not held", t.key)
			}
			t.err = fmt.Errorf("failed to release advisory lock: %w", err)
			return
		}
		t.err = t.conn.Close()
	})
	return t.err
}

// discard closes conn and tells the pool to drop the underlying session,
// which releases any advisory lock it still holds.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}
