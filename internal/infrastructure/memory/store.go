// Package memory provides an in-process Repository used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/Ordinal/internal/domain"
)

// Store keeps items in a map guarded by a single RWMutex. Transactions buffer
// their writes and apply them at commit, where duplicate positions are
// rejected the way a deferred unique constraint would.
type Store struct {
	mu     sync.RWMutex
	items  map[int64]*domain.Item
	nextID int64
}

func NewStore() *Store {
	return &Store{items: make(map[int64]*domain.Item)}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.ItemStore) error) error {
	tx := &txn{store: s, writes: make(map[int64]*domain.Item)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// A Store outside a transaction behaves like a transaction per call.
func (s *Store) autocommit(ctx context.Context, fn func(tx *txn) error) error {
	return s.WithinTx(ctx, func(_ context.Context, tx domain.ItemStore) error {
		return fn(tx.(*txn))
	})
}

func (s *Store) Insert(ctx context.Context, item *domain.Item) error {
	return s.autocommit(ctx, func(tx *txn) error { return tx.Insert(ctx, item) })
}

func (s *Store) GetByID(ctx context.Context, parent domain.ParentID, id int64) (*domain.Item, error) {
	return (&txn{store: s}).GetByID(ctx, parent, id)
}

func (s *Store) GetMaxPosition(ctx context.Context, parent domain.ParentID) (uint, error) {
	return (&txn{store: s}).GetMaxPosition(ctx, parent)
}

func (s *Store) GetByPosition(ctx context.Context, parent domain.ParentID, position uint) (*domain.Item, error) {
	return (&txn{store: s}).GetByPosition(ctx, parent, position)
}

func (s *Store) ListOrderedByPosition(ctx context.Context, parent domain.ParentID, includeHidden bool) ([]*domain.Item, error) {
	return (&txn{store: s}).ListOrderedByPosition(ctx, parent, includeHidden)
}

func (s *Store) UpdatePosition(ctx context.Context, id int64, position uint) error {
	return s.autocommit(ctx, func(tx *txn) error { return tx.UpdatePosition(ctx, id, position) })
}

func (s *Store) ShiftPositions(ctx context.Context, parent domain.ParentID, from, to uint, delta int) error {
	return s.autocommit(ctx, func(tx *txn) error { return tx.ShiftPositions(ctx, parent, from, to, delta) })
}

func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	return s.autocommit(ctx, func(tx *txn) error { return tx.DeleteByID(ctx, id) })
}

func (s *Store) SetHidden(ctx context.Context, id int64, hidden bool) error {
	return s.autocommit(ctx, func(tx *txn) error { return tx.SetHidden(ctx, id, hidden) })
}

func (s *Store) UpdatePayload(ctx context.Context, id int64, payload domain.Payload) error {
	return s.autocommit(ctx, func(tx *txn) error { return tx.UpdatePayload(ctx, id, payload) })
}

// txn overlays buffered writes on the committed map. A nil entry in writes
// marks a deletion.
type txn struct {
	store  *Store
	writes map[int64]*domain.Item
}

func (t *txn) lookup(id int64) (*domain.Item, bool) {
	if it, ok := t.writes[id]; ok {
		return it, it != nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	it, ok := t.store.items[id]
	return it, ok
}

// snapshot returns copies of every visible item of parent, unordered.
func (t *txn) snapshot(parent domain.ParentID) []*domain.Item {
	t.store.mu.RLock()
	out := make([]*domain.Item, 0)
	for id, it := range t.store.items {
		if _, overridden := t.writes[id]; overridden {
			continue
		}
		if it.Parent == parent {
			out = append(out, it.Clone())
		}
	}
	t.store.mu.RUnlock()

	for _, it := range t.writes {
		if it != nil && it.Parent == parent {
			out = append(out, it.Clone())
		}
	}
	return out
}

// stage returns a writable copy of id.
func (t *txn) stage(id int64) (*domain.Item, error) {
	it, ok := t.lookup(id)
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	if t.writes == nil {
		return nil, fmt.Errorf("memory: write outside transaction")
	}
	c := it.Clone()
	t.writes[id] = c
	return c, nil
}

func (t *txn) Insert(_ context.Context, item *domain.Item) error {
	t.store.mu.Lock()
	t.store.nextID++
	id := t.store.nextID
	t.store.mu.Unlock()

	now := time.Now().UTC()
	item.ID = id
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	t.writes[id] = item.Clone()
	return nil
}

func (t *txn) GetByID(_ context.Context, parent domain.ParentID, id int64) (*domain.Item, error) {
	it, ok := t.lookup(id)
	if !ok || it.Parent != parent {
		return nil, domain.ErrItemNotFound
	}
	return it.Clone(), nil
}

func (t *txn) GetMaxPosition(_ context.Context, parent domain.ParentID) (uint, error) {
	var top uint
	for _, it := range t.snapshot(parent) {
		top = max(top, it.Position)
	}
	return top, nil
}

func (t *txn) GetByPosition(_ context.Context, parent domain.ParentID, position uint) (*domain.Item, error) {
	for _, it := range t.snapshot(parent) {
		if it.Position == position {
			return it, nil
		}
	}
	return nil, domain.ErrItemNotFound
}

func (t *txn) ListOrderedByPosition(_ context.Context, parent domain.ParentID, includeHidden bool) ([]*domain.Item, error) {
	all := t.snapshot(parent)
	out := make([]*domain.Item, 0, len(all))
	for _, it := range all {
		if it.Hidden && !includeHidden {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *txn) UpdatePosition(_ context.Context, id int64, position uint) error {
	it, err := t.stage(id)
	if err != nil {
		return err
	}
	it.Position = position
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *txn) ShiftPositions(_ context.Context, parent domain.ParentID, from, to uint, delta int) error {
	now := time.Now().UTC()
	for _, it := range t.snapshot(parent) {
		if it.Position < from || it.Position > to {
			continue
		}
		shifted := int(it.Position) + delta
		if shifted < 0 {
			return fmt.Errorf("memory: shift of item %d below zero: %w", it.ID, domain.ErrConstraintViolation)
		}
		it.Position = uint(shifted)
		it.UpdatedAt = now
		t.writes[it.ID] = it
	}
	return nil
}

func (t *txn) DeleteByID(_ context.Context, id int64) error {
	if _, ok := t.lookup(id); !ok {
		return domain.ErrItemNotFound
	}
	t.writes[id] = nil
	return nil
}

func (t *txn) SetHidden(_ context.Context, id int64, hidden bool) error {
	it, err := t.stage(id)
	if err != nil {
		return err
	}
	it.Hidden = hidden
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *txn) UpdatePayload(_ context.Context, id int64, payload domain.Payload) error {
	it, err := t.stage(id)
	if err != nil {
		return err
	}
	it.Payload = payload
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *txn) commit() error {
	if len(t.writes) == 0 {
		return nil
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	touched := make(map[domain.ParentID]bool)
	for id, it := range t.writes {
		if it != nil {
			touched[it.Parent] = true
		} else if old, ok := t.store.items[id]; ok {
			touched[old.Parent] = true
		}
	}

	// Check (parent, position) uniqueness on the post-commit state first.
	seen := make(map[domain.ParentID]map[uint]int64)
	check := func(it *domain.Item) error {
		if !touched[it.Parent] || it.Position == 0 {
			return nil
		}
		byPos := seen[it.Parent]
		if byPos == nil {
			byPos = make(map[uint]int64)
			seen[it.Parent] = byPos
		}
		if other, dup := byPos[it.Position]; dup {
			return fmt.Errorf("memory: items %d and %d share position %d under %s: %w",
				other, it.ID, it.Position, it.Parent, domain.ErrConstraintViolation)
		}
		byPos[it.Position] = it.ID
		return nil
	}
	for id, it := range t.store.items {
		if _, overridden := t.writes[id]; overridden {
			continue
		}
		if err := check(it); err != nil {
			return err
		}
	}
	for _, it := range t.writes {
		if it == nil {
			continue
		}
		if err := check(it); err != nil {
			return err
		}
	}

	for id, it := range t.writes {
		if it == nil {
			delete(t.store.items, id)
			continue
		}
		t.store.items[id] = it
	}
	return nil
}
