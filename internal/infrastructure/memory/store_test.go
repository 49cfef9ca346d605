package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var faq = domain.ParentID{Kind: domain.KindFAQ, NodeID: 1}

func seed(t *testing.T, s *memory.Store, parent domain.ParentID, n int) []*domain.Item {
	t.Helper()
	items := make([]*domain.Item, 0, n)
	for i := 1; i <= n; i++ {
		it := &domain.Item{Parent: parent, Position: uint(i), Payload: domain.Payload{Title: "q"}}
		require.NoError(t, s.Insert(context.Background(), it))
		items = append(items, it)
	}
	return items
}

func positions(t *testing.T, s *memory.Store, parent domain.ParentID) []uint {
	t.Helper()
	items, err := s.ListOrderedByPosition(context.Background(), parent, true)
	require.NoError(t, err)
	out := make([]uint, len(items))
	for i, it := range items {
		out[i] = it.Position
	}
	return out
}

func TestStore_InsertAndRead(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	items := seed(t, s, faq, 3)

	assert.Equal(t, int64(1), items[0].ID)
	assert.False(t, items[0].CreatedAt.IsZero())

	top, err := s.GetMaxPosition(ctx, faq)
	require.NoError(t, err)
	assert.Equal(t, uint(3), top)

	got, err := s.GetByPosition(ctx, faq, 2)
	require.NoError(t, err)
	assert.Equal(t, items[1].ID, got.ID)

	other := domain.ParentID{Kind: domain.KindLink, NodeID: 1}
	_, err = s.GetByID(ctx, other, items[0].ID)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	top, err = s.GetMaxPosition(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, top)
}

func TestStore_ListHidesHidden(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	items := seed(t, s, faq, 3)
	require.NoError(t, s.SetHidden(ctx, items[1].ID, true))

	visible, err := s.ListOrderedByPosition(ctx, faq, false)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, []uint{1, 3}, []uint{visible[0].Position, visible[1].Position})
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	items := seed(t, s, faq, 1)

	got, err := s.GetByID(ctx, faq, items[0].ID)
	require.NoError(t, err)
	got.Position = 99

	assert.Equal(t, []uint{1}, positions(t, s, faq))
}

func TestStore_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	items := seed(t, s, faq, 3)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx domain.ItemStore) error {
		require.NoError(t, tx.DeleteByID(ctx, items[0].ID))
		require.NoError(t, tx.ShiftPositions(ctx, faq, 2, 3, -1))
		assert.Equal(t, uint(2), mustMax(t, tx))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []uint{1, 2, 3}, positions(t, s, faq))
}

func TestStore_CommitRejectsDuplicatePositions(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	items := seed(t, s, faq, 2)

	err := s.WithinTx(ctx, func(ctx context.Context, tx domain.ItemStore) error {
		return tx.UpdatePosition(ctx, items[0].ID, 2)
	})
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
	assert.Equal(t, []uint{1, 2}, positions(t, s, faq))
}

func TestStore_SwapWithinTransaction(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	items := seed(t, s, faq, 2)

	err := s.WithinTx(ctx, func(ctx context.Context, tx domain.ItemStore) error {
		if err := tx.UpdatePosition(ctx, items[0].ID, 2); err != nil {
			return err
		}
		return tx.UpdatePosition(ctx, items[1].ID, 1)
	})
	require.NoError(t, err)

	first, err := s.GetByPosition(ctx, faq, 1)
	require.NoError(t, err)
	assert.Equal(t, items[1].ID, first.ID)
}

func TestStore_ShiftBelowZero(t *testing.T) {
	s := memory.NewStore()
	seed(t, s, faq, 1)

	err := s.ShiftPositions(context.Background(), faq, 1, 1, -2)
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
}

func TestStore_UpdatePayloadAndDelete(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	items := seed(t, s, faq, 1)

	require.NoError(t, s.UpdatePayload(ctx, items[0].ID, domain.Payload{Title: "new", Body: "answer"}))
	got, err := s.GetByID(ctx, faq, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "answer", got.Payload.Body)

	require.NoError(t, s.DeleteByID(ctx, items[0].ID))
	assert.ErrorIs(t, s.DeleteByID(ctx, items[0].ID), domain.ErrItemNotFound)
	assert.ErrorIs(t, s.SetHidden(ctx, items[0].ID, true), domain.ErrItemNotFound)
	assert.NoError(t, s.Ping(ctx))
}

func mustMax(t *testing.T, tx domain.ItemStore) uint {
	t.Helper()
	top, err := tx.GetMaxPosition(context.Background(), faq)
	require.NoError(t, err)
	return top
}
