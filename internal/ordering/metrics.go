package ordering

import (
	"context"
	"errors"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordinal_operations_total",
			Help: "Total number of ordering operations by outcome",
		},
		[]string{"op", "result"},
	)

	lockWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ordinal_lock_wait_seconds",
			Help:    "Time spent waiting for a parent's position lock",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"backend"},
	)

	lockFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordinal_lock_failures_total",
			Help: "Total number of position lock acquisitions that failed",
		},
		[]string{"backend"},
	)
)

const (
	resultOK                  = "ok"
	resultNoop                = "noop"
	resultNotFound            = "not_found"
	resultInvalid             = "invalid"
	resultLockUnavailable     = "lock_unavailable"
	resultConstraintViolation = "constraint_violation"
	resultCanceled            = "canceled"
	resultError               = "error"
)

func outcome(err error, changed bool) string {
	switch {
	case err == nil && !changed:
		return resultNoop
	case err == nil:
		return resultOK
	case errors.Is(err, domain.ErrItemNotFound):
		return resultNotFound
	case errors.Is(err, domain.ErrLockUnavailable):
		return resultLockUnavailable
	case errors.Is(err, domain.ErrConstraintViolation):
		return resultConstraintViolation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resultCanceled
	case domain.IsValidationError(err):
		return resultInvalid
	}
	return resultError
}
