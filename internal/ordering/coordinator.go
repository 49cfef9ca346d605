// Package ordering keeps sibling lists densely numbered 1..N. Every
// position-changing operation runs as one transaction inside the parent's
// position lock.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	opCreate        = "create"
	opMove          = "move"
	opDelete        = "delete"
	opSetPosition   = "set_position"
	opSetHidden     = "set_hidden"
	opUpdatePayload = "update_payload"
)

// Result carries the items whose state an operation changed, with their
// authoritative positions. Changed is false for a no-op.
type Result struct {
	Changed bool
	Items   []*domain.Item
}

type Coordinator struct {
	repo        domain.Repository
	locker      domain.PositionLocker
	logger      *zap.Logger
	tracer      trace.Tracer
	lockBackend string
	verify      bool
}

type Option func(*Coordinator)

// WithInvariantCheck toggles the dense-position check that runs before every
// commit. It is on by default.
func WithInvariantCheck(enabled bool) Option {
	return func(c *Coordinator) { c.verify = enabled }
}

// WithLockBackend sets the backend label used in lock metrics.
func WithLockBackend(name string) Option {
	return func(c *Coordinator) { c.lockBackend = name }
}

func New(repo domain.Repository, locker domain.PositionLocker, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		repo:        repo,
		locker:      locker,
		logger:      logger,
		tracer:      otel.Tracer("ordering-coordinator"),
		lockBackend: "unknown",
		verify:      true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create appends a new item at position N+1.
func (c *Coordinator) Create(ctx context.Context, parent domain.ParentID, payload domain.Payload) (*domain.Item, error) {
	ctx, span := c.startSpan(ctx, "Create", parent)
	defer span.End()

	item, err := domain.NewItem(parent, payload)
	if err != nil {
		c.finish(span, opCreate, parent, err, false)
		return nil, err
	}

	err = c.mutate(ctx, parent, func(ctx context.Context, tx domain.ItemStore) error {
		n, err := tx.GetMaxPosition(ctx, parent)
		if err != nil {
			return err
		}
		item.Position = n + 1
		return tx.Insert(ctx, item)
	})
	c.finish(span, opCreate, parent, err, true,
		zap.Int64("item_id", item.ID),
		zap.Uint("position", item.Position),
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Coordinator) MoveUp(ctx context.Context, parent domain.ParentID, id int64) (Result, error) {
	return c.Move(ctx, parent, id, domain.Up)
}

func (c *Coordinator) MoveDown(ctx context.Context, parent domain.ParentID, id int64) (Result, error) {
	return c.Move(ctx, parent, id, domain.Down)
}

// Move swaps an item with its immediate neighbour in the given direction.
// Moving the first item up or the last item down is a no-op.
func (c *Coordinator) Move(ctx context.Context, parent domain.ParentID, id int64, dir domain.Direction) (Result, error) {
	ctx, span := c.startSpan(ctx, "Move", parent)
	defer span.End()
	span.SetAttributes(attribute.Int64("item.id", id), attribute.String("direction", dir.String()))

	var res Result
	err := c.checkArgs(parent, id)
	if err == nil && dir != domain.Up && dir != domain.Down {
		err = domain.ErrInvalidDirection
	}
	if err == nil {
		err = c.mutate(ctx, parent, func(ctx context.Context, tx domain.ItemStore) error {
			item, err := tx.GetByID(ctx, parent, id)
			if err != nil {
				return err
			}

			var target uint
			switch dir {
			case domain.Up:
				if item.Position <= 1 {
					return nil
				}
				target = item.Position - 1
			case domain.Down:
				n, err := tx.GetMaxPosition(ctx, parent)
				if err != nil {
					return err
				}
				if item.Position >= n {
					return nil
				}
				target = item.Position + 1
			}

			other, err := tx.GetByPosition(ctx, parent, target)
			if errors.Is(err, domain.ErrItemNotFound) {
				return fmt.Errorf("no item at position %d next to item %d under %s: %w",
					target, id, parent, domain.ErrConstraintViolation)
			}
			if err != nil {
				return err
			}

			if err := tx.UpdatePosition(ctx, item.ID, other.Position); err != nil {
				return err
			}
			if err := tx.UpdatePosition(ctx, other.ID, item.Position); err != nil {
				return err
			}
			item.Position, other.Position = other.Position, item.Position
			res = Result{Changed: true, Items: []*domain.Item{item, other}}
			return nil
		})
	}

	c.finish(span, opMove, parent, err, res.Changed,
		zap.Int64("item_id", id),
		zap.Stringer("direction", dir),
	)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Delete removes an item and closes the gap it leaves. The deleted item is
// the first element of the result, followed by the shifted siblings.
func (c *Coordinator) Delete(ctx context.Context, parent domain.ParentID, id int64) (Result, error) {
	ctx, span := c.startSpan(ctx, "Delete", parent)
	defer span.End()
	span.SetAttributes(attribute.Int64("item.id", id))

	var res Result
	err := c.checkArgs(parent, id)
	if err == nil {
		err = c.mutate(ctx, parent, func(ctx context.Context, tx domain.ItemStore) error {
			item, err := tx.GetByID(ctx, parent, id)
			if err != nil {
				return err
			}
			siblings, err := tx.ListOrderedByPosition(ctx, parent, true)
			if err != nil {
				return err
			}

			if err := tx.DeleteByID(ctx, item.ID); err != nil {
				return err
			}

			items := []*domain.Item{item}
			var last uint
			for _, s := range siblings {
				if s.ID != item.ID && s.Position > item.Position {
					items = append(items, s)
					last = max(last, s.Position)
				}
			}
			if last > 0 {
				if err := tx.ShiftPositions(ctx, parent, item.Position+1, last, -1); err != nil {
					return err
				}
				for _, s := range items[1:] {
					s.Position--
				}
			}

			res = Result{Changed: true, Items: items}
			return nil
		})
	}

	c.finish(span, opDelete, parent, err, res.Changed,
		zap.Int64("item_id", id),
		zap.Int("shifted", max(len(res.Items)-1, 0)),
	)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// SetPosition moves an item to position newPos in 1..N, shifting the items
// in between by one towards the vacated slot.
func (c *Coordinator) SetPosition(ctx context.Context, parent domain.ParentID, id int64, newPos uint) (Result, error) {
	ctx, span := c.startSpan(ctx, "SetPosition", parent)
	defer span.End()
	span.SetAttributes(attribute.Int64("item.id", id), attribute.Int64("position", int64(newPos)))

	var res Result
	err := c.checkArgs(parent, id)
	if err == nil && newPos == 0 {
		err = fmt.Errorf("position 0: %w", domain.ErrInvalidPosition)
	}
	if err == nil {
		err = c.mutate(ctx, parent, func(ctx context.Context, tx domain.ItemStore) error {
			item, err := tx.GetByID(ctx, parent, id)
			if err != nil {
				return err
			}
			n, err := tx.GetMaxPosition(ctx, parent)
			if err != nil {
				return err
			}
			if newPos > n {
				return fmt.Errorf("position %d with %d items under %s: %w", newPos, n, parent, domain.ErrInvalidPosition)
			}

			old := item.Position
			if newPos == old {
				return nil
			}

			lo, hi := min(old, newPos), max(old, newPos)
			if newPos > old {
				err = tx.ShiftPositions(ctx, parent, old+1, newPos, -1)
			} else {
				err = tx.ShiftPositions(ctx, parent, newPos, old-1, 1)
			}
			if err != nil {
				return err
			}
			if err := tx.UpdatePosition(ctx, item.ID, newPos); err != nil {
				return err
			}

			all, err := tx.ListOrderedByPosition(ctx, parent, true)
			if err != nil {
				return err
			}
			affected := make([]*domain.Item, 0, hi-lo+1)
			for _, it := range all {
				if it.Position >= lo && it.Position <= hi {
					affected = append(affected, it)
				}
			}
			res = Result{Changed: true, Items: affected}
			return nil
		})
	}

	c.finish(span, opSetPosition, parent, err, res.Changed,
		zap.Int64("item_id", id),
		zap.Uint("position", newPos),
	)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// SetHidden hides or shows an item. Positions are untouched; hidden items
// keep their slot in the numbering.
func (c *Coordinator) SetHidden(ctx context.Context, parent domain.ParentID, id int64, hidden bool) (Result, error) {
	ctx, span := c.startSpan(ctx, "SetHidden", parent)
	defer span.End()

	var res Result
	err := c.checkArgs(parent, id)
	if err == nil {
		err = c.mutate(ctx, parent, func(ctx context.Context, tx domain.ItemStore) error {
			item, err := tx.GetByID(ctx, parent, id)
			if err != nil {
				return err
			}
			res.Items = []*domain.Item{item}
			if item.Hidden == hidden {
				return nil
			}
			if err := tx.SetHidden(ctx, item.ID, hidden); err != nil {
				return err
			}
			item.Hidden = hidden
			res.Changed = true
			return nil
		})
	}

	c.finish(span, opSetHidden, parent, err, res.Changed,
		zap.Int64("item_id", id),
		zap.Bool("hidden", hidden),
	)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// UpdatePayload replaces the caller-owned fields of an item.
func (c *Coordinator) UpdatePayload(ctx context.Context, parent domain.ParentID, id int64, payload domain.Payload) (*domain.Item, error) {
	ctx, span := c.startSpan(ctx, "UpdatePayload", parent)
	defer span.End()

	payload.Normalize()
	err := c.checkArgs(parent, id)
	if err == nil {
		err = payload.Validate(parent.Kind)
	}

	var item *domain.Item
	if err == nil {
		err = c.repo.WithinTx(ctx, func(ctx context.Context, tx domain.ItemStore) error {
			var err error
			if item, err = tx.GetByID(ctx, parent, id); err != nil {
				return err
			}
			if err := tx.UpdatePayload(ctx, id, payload); err != nil {
				return err
			}
			item.Payload = payload
			return nil
		})
	}

	c.finish(span, opUpdatePayload, parent, err, true, zap.Int64("item_id", id))
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Get returns a single item of parent.
func (c *Coordinator) Get(ctx context.Context, parent domain.ParentID, id int64) (*domain.Item, error) {
	if err := c.checkArgs(parent, id); err != nil {
		return nil, err
	}
	return c.repo.GetByID(ctx, parent, id)
}

// List reads parent's items in order without taking the lock, so it may
// observe a reorder that is still in flight.
func (c *Coordinator) List(ctx context.Context, parent domain.ParentID, includeHidden bool) ([]*domain.Item, error) {
	if err := parent.Validate(); err != nil {
		return nil, err
	}
	return c.repo.ListOrderedByPosition(ctx, parent, includeHidden)
}

// Verify inspects parent's committed positions.
func (c *Coordinator) Verify(ctx context.Context, parent domain.ParentID) (Report, error) {
	items, err := c.List(ctx, parent, true)
	if err != nil {
		return Report{}, err
	}
	return Inspect(parent, items), nil
}

func (c *Coordinator) checkArgs(parent domain.ParentID, id int64) error {
	if err := parent.Validate(); err != nil {
		return err
	}
	if id <= 0 {
		return domain.ErrInvalidItemID
	}
	return nil
}

// mutate runs fn in a transaction while holding parent's position lock. Once
// the lock is held the caller's cancellation no longer applies: the locked
// section always runs to commit or rollback.
func (c *Coordinator) mutate(ctx context.Context, parent domain.ParentID, fn func(ctx context.Context, tx domain.ItemStore) error) error {
	start := time.Now()
	token, err := c.locker.Acquire(ctx, parent)
	lockWaitSeconds.WithLabelValues(c.lockBackend).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, domain.ErrLockUnavailable) {
			return fmt.Errorf("waiting for lock on %s: %w", parent, ctxErr)
		}
		lockFailuresTotal.WithLabelValues(c.lockBackend).Inc()
		if !errors.Is(err, domain.ErrLockUnavailable) {
			err = fmt.Errorf("%v: %w", err, domain.ErrLockUnavailable)
		}
		return err
	}

	ctx = context.WithoutCancel(ctx)
	defer func() {
		if err := token.Release(ctx); err != nil {
			c.logger.Warn("failed to release position lock",
				zap.Stringer("parent", parent),
				zap.Error(err),
			)
		}
	}()

	return c.repo.WithinTx(ctx, func(ctx context.Context, tx domain.ItemStore) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if c.verify {
			items, err := tx.ListOrderedByPosition(ctx, parent, true)
			if err != nil {
				return err
			}
			if err := Inspect(parent, items).Err(); err != nil {
				return err
			}
		}
		// A lease that lapsed mid-transaction may already be held elsewhere.
		if lease, ok := token.(domain.LeaseToken); ok {
			if err := lease.Valid(ctx); err != nil {
				lockFailuresTotal.WithLabelValues(c.lockBackend).Inc()
				return err
			}
		}
		return nil
	})
}

func (c *Coordinator) startSpan(ctx context.Context, name string, parent domain.ParentID) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "ordering."+name)
	span.SetAttributes(
		attribute.String("parent.kind", string(parent.Kind)),
		attribute.Int64("parent.node_id", parent.NodeID),
	)
	return ctx, span
}

func (c *Coordinator) finish(span trace.Span, op string, parent domain.ParentID, err error, changed bool, fields ...zap.Field) {
	result := outcome(err, changed)
	operationsTotal.WithLabelValues(op, result).Inc()
	span.SetAttributes(attribute.String("result", result))

	fields = append(fields, zap.String("op", op), zap.Stringer("parent", parent))
	switch result {
	case resultOK:
		c.logger.Info("ordering operation completed", fields...)
	case resultNoop:
		c.logger.Debug("ordering operation was a no-op", fields...)
	case resultNotFound, resultInvalid, resultCanceled:
		span.RecordError(err)
		c.logger.Info("ordering operation rejected", append(fields, zap.Error(err))...)
	default:
		span.RecordError(err)
		c.logger.Error("ordering operation failed", append(fields, zap.Error(err))...)
	}
}
