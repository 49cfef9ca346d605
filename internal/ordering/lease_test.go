package ordering_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/lock"
	"github.com/dmehra2102/Ordinal/internal/ordering"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const leaseTTL = time.Second

func newRedisLocker(t *testing.T) (*lock.RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return lock.NewRedisLocker(client, lock.RedisOptions{
		Prefix:       "test:",
		TTL:          leaseTTL,
		PollInterval: 5 * time.Millisecond,
	}), mr
}

// expireDuringShift lets the lease run out while the range shift is written.
type expireDuringShift struct {
	domain.Repository
	mr *miniredis.Miniredis
}

func (s expireDuringShift) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.ItemStore) error) error {
	return s.Repository.WithinTx(ctx, func(ctx context.Context, tx domain.ItemStore) error {
		return fn(ctx, expiringStore{ItemStore: tx, mr: s.mr})
	})
}

type expiringStore struct {
	domain.ItemStore
	mr *miniredis.Miniredis
}

func (s expiringStore) ShiftPositions(ctx context.Context, parent domain.ParentID, from, to uint, delta int) error {
	s.mr.FastForward(2 * leaseTTL)
	return s.ItemStore.ShiftPositions(ctx, parent, from, to, delta)
}

func TestCoordinator_RedisLease(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		locker, _ := newRedisLocker(t)
		coord := ordering.New(f.repo, locker, zaptest.NewLogger(t), ordering.WithLockBackend("redis"))

		items := make([]*domain.Item, 0, 3)
		for _, title := range []string{"a", "b", "c"} {
			it, err := coord.Create(context.Background(), faqs, domain.Payload{Title: title})
			require.NoError(t, err)
			items = append(items, it)
		}

		res, err := coord.MoveDown(context.Background(), faqs, items[0].ID)
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.Equal(t, []string{"b", "a", "c"}, f.order(t, faqs))
	})
}

func TestCoordinator_LapsedLeaseRollsBack(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		items := f.create(t, faqs, "a", "b", "c")

		locker, mr := newRedisLocker(t)
		coord := ordering.New(expireDuringShift{Repository: f.repo, mr: mr}, locker,
			zaptest.NewLogger(t), ordering.WithLockBackend("redis"))

		_, err := coord.Delete(context.Background(), faqs, items[0].ID)
		assert.ErrorIs(t, err, domain.ErrLockUnavailable)
		assert.ErrorIs(t, err, lock.ErrLeaseLost)
		assert.Equal(t, []string{"a", "b", "c"}, f.order(t, faqs), "writes made after the lease lapsed must be rolled back")

		// The parent is free again for the next holder.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		tok, err := locker.Acquire(ctx, faqs)
		require.NoError(t, err)
		require.NoError(t, tok.Release(ctx))
	})
}
