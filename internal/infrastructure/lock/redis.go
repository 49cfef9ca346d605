package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned by Release when the key expired or was taken over
// before the holder gave it back.
var ErrLeaseLost = errors.New("redis lock lease lost before release")

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

const refreshScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

// RedisLocker implements domain.PositionLocker with Redis SET NX PX so that
// several server processes share one lock per parent.
type RedisLocker struct {
	client       backend.UniversalClient
	prefix       string
	ttl          time.Duration
	pollInterval time.Duration
}

type RedisOptions struct {
	Prefix string
	// TTL bounds how long a crashed holder can block a parent. Live holders
	// extend their lease every TTL/3.
	TTL          time.Duration
	PollInterval time.Duration
}

func NewRedisLocker(client backend.UniversalClient, opts RedisOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 25 * time.Millisecond
	}
	return &RedisLocker{
		client:       client,
		prefix:       opts.Prefix,
		ttl:          opts.TTL,
		pollInterval: opts.PollInterval,
	}
}

func (l *RedisLocker) key(parent domain.ParentID) string {
	return l.prefix + "lock:" + parent.String()
}

// Acquire polls until the key is set. Redis errors are reported as
// domain.ErrLockUnavailable; context errors are returned unchanged.
func (l *RedisLocker) Acquire(ctx context.Context, parent domain.ParentID) (domain.LockToken, error) {
	key := l.key(parent)
	val := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, val, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("redis error acquiring lock %s: %v: %w", key, err, domain.ErrLockUnavailable)
		}
		if ok {
			tok := &redisToken{
				locker: l,
				parent: parent,
				key:    key,
				value:  val,
				stop:   make(chan struct{}),
				done:   make(chan struct{}),
			}
			go tok.keepAlive()
			return tok, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type redisToken struct {
	locker *RedisLocker
	parent domain.ParentID
	key    string
	value  string
	lost   atomic.Bool
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error
}

func (t *redisToken) Parent() domain.ParentID { return t.parent }

func (t *redisToken) refreshInterval() time.Duration {
	return max(t.locker.ttl/3, time.Millisecond)
}

// keepAlive extends the lease until Release. It stops early once the key
// belongs to someone else; transient Redis errors are retried on the next tick.
func (t *redisToken) keepAlive() {
	defer close(t.done)

	interval := t.refreshInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := t.locker.client.Eval(ctx, refreshScript, []string{t.key}, t.value, t.locker.ttl.Milliseconds()).Int()
		cancel()
		if err == nil && n == 0 {
			t.lost.Store(true)
			return
		}
	}
}

// Valid reports whether the token still owns its key. A lapsed lease is
// reported as domain.ErrLockUnavailable so that the caller rolls back.
func (t *redisToken) Valid(ctx context.Context) error {
	if t.lost.Load() {
		return fmt.Errorf("%w: %w", ErrLeaseLost, domain.ErrLockUnavailable)
	}

	owner, err := t.locker.client.Get(ctx, t.key).Result()
	switch {
	case errors.Is(err, backend.Nil), err == nil && owner != t.value:
		t.lost.Store(true)
		return fmt.Errorf("%w: %w", ErrLeaseLost, domain.ErrLockUnavailable)
	case err != nil:
		return fmt.Errorf("redis error checking lock %s: %v: %w", t.key, err, domain.ErrLockUnavailable)
	}
	return nil
}

func (t *redisToken) Release(ctx context.Context) error {
	t.once.Do(func() {
		close(t.stop)
		<-t.done

		n, err := t.locker.client.Eval(context.WithoutCancel(ctx), releaseScript, []string{t.key}, t.value).Int()
		if err != nil {
			t.err = fmt.Errorf("redis error releasing lock %s: %w", t.key, err)
			return
		}
		if n == 0 {
			t.err = ErrLeaseLost
		}
	})
	return t.err
}
