package domain

import "context"

// ItemStore defines the contract for item persistence. It executes what the
// caller computed and holds no ordering logic of its own.
type ItemStore interface {
	// Insert persists a new item and assigns its ID and timestamps
	Insert(ctx context.Context, item *Item) error

	// GetByID retrieves an item that belongs to parent
	GetByID(ctx context.Context, parent ParentID, id int64) (*Item, error)

	// GetMaxPosition returns the highest position under parent, 0 if empty
	GetMaxPosition(ctx context.Context, parent ParentID) (uint, error)

	// GetByPosition retrieves the item at position under parent
	GetByPosition(ctx context.Context, parent ParentID, position uint) (*Item, error)

	// ListOrderedByPosition returns parent's items in ascending position order
	ListOrderedByPosition(ctx context.Context, parent ParentID, includeHidden bool) ([]*Item, error)

	// UpdatePosition writes the position of a single item
	UpdatePosition(ctx context.Context, id int64, position uint) error

	// ShiftPositions adds delta to every position in [from, to] under parent
	ShiftPositions(ctx context.Context, parent ParentID, from, to uint, delta int) error

	// DeleteByID removes a single item
	DeleteByID(ctx context.Context, id int64) error

	// SetHidden updates only the hidden flag
	SetHidden(ctx context.Context, id int64, hidden bool) error

	// UpdatePayload updates only the caller-owned fields
	UpdatePayload(ctx context.Context, id int64, payload Payload) error
}

// Repository is an ItemStore that can run a group of calls atomically.
type Repository interface {
	ItemStore

	// WithinTx runs fn against a transactional view of the store. The writes
	// are committed when fn returns nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx ItemStore) error) error

	// Ping checks that the backing store is reachable
	Ping(ctx context.Context) error
}

// PositionLocker serializes mutations of one parent's collection.
// Holders must not acquire the same parent again before releasing.
type PositionLocker interface {
	Acquire(ctx context.Context, parent ParentID) (LockToken, error)
}

// LockToken proves ownership of a parent's position lock.
type LockToken interface {
	Parent() ParentID

	// Release gives the lock back. Calling it more than once is a no-op.
	Release(ctx context.Context) error
}

// LeaseToken is a LockToken whose ownership can lapse while it is held.
type LeaseToken interface {
	LockToken

	// Valid returns an error wrapping ErrLockUnavailable once the lease is
	// no longer owned by this token.
	Valid(ctx context.Context) error
}
