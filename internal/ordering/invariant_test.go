package ordering_test

import (
	"testing"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/dmehra2102/Ordinal/internal/ordering"
	"github.com/stretchr/testify/assert"
)

func at(positions ...uint) []*domain.Item {
	items := make([]*domain.Item, len(positions))
	for i, p := range positions {
		items[i] = &domain.Item{ID: int64(i + 1), Parent: faqs, Position: p}
	}
	return items
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name       string
		items      []*domain.Item
		gaps, dups []uint
		out        []uint
	}{
		{name: "empty", items: at()},
		{name: "dense unordered", items: at(3, 1, 2)},
		{name: "gap", items: at(1, 3), gaps: []uint{2}, out: []uint{3}},
		{name: "duplicate", items: at(1, 1, 2), dups: []uint{1}, gaps: []uint{3}},
		{name: "zero", items: at(0, 1), gaps: []uint{2}, out: []uint{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ordering.Inspect(faqs, tt.items)
			assert.Equal(t, len(tt.items), r.Count)
			assert.ElementsMatch(t, tt.gaps, r.Gaps)
			assert.ElementsMatch(t, tt.dups, r.Duplicates)
			assert.ElementsMatch(t, tt.out, r.Out)

			if len(tt.gaps)+len(tt.dups)+len(tt.out) == 0 {
				assert.True(t, r.OK())
				assert.NoError(t, r.Err())
				return
			}
			assert.False(t, r.OK())
			assert.ErrorIs(t, r.Err(), domain.ErrConstraintViolation)
		})
	}
}
