package ordering

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestOutcome(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("op: %w", err) }

	assert.Equal(t, resultOK, outcome(nil, true))
	assert.Equal(t, resultNoop, outcome(nil, false))
	assert.Equal(t, resultNotFound, outcome(wrap(domain.ErrItemNotFound), false))
	assert.Equal(t, resultLockUnavailable, outcome(wrap(domain.ErrLockUnavailable), false))
	assert.Equal(t, resultConstraintViolation, outcome(wrap(domain.ErrConstraintViolation), false))
	assert.Equal(t, resultCanceled, outcome(wrap(context.DeadlineExceeded), false))
	assert.Equal(t, resultInvalid, outcome(wrap(domain.ErrInvalidPosition), false))
	assert.Equal(t, resultError, outcome(errors.New("disk on fire"), false))
}

type downLocker struct{}

func (downLocker) Acquire(context.Context, domain.ParentID) (domain.LockToken, error) {
	return nil, errors.New("connection refused")
}

func TestLockFailureIsCounted(t *testing.T) {
	parent := domain.ParentID{Kind: domain.KindLink, NodeID: 1}
	c := New(memory.NewStore(), downLocker{}, zap.NewNop(), WithLockBackend("metrics-test"))

	failures := lockFailuresTotal.WithLabelValues("metrics-test")
	ops := operationsTotal.WithLabelValues(opCreate, resultLockUnavailable)
	beforeFailures, beforeOps := testutil.ToFloat64(failures), testutil.ToFloat64(ops)

	_, err := c.Create(context.Background(), parent, domain.Payload{Title: "x"})
	assert.ErrorIs(t, err, domain.ErrLockUnavailable)
	assert.Equal(t, beforeFailures+1, testutil.ToFloat64(failures))
	assert.Equal(t, beforeOps+1, testutil.ToFloat64(ops))
}
