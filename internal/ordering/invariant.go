package ordering

import (
	"fmt"
	"slices"

	"github.com/dmehra2102/Ordinal/internal/domain"
)

// Report describes how a parent's positions deviate from 1..N.
type Report struct {
	Parent     domain.ParentID
	Count      int
	Gaps       []uint
	Duplicates []uint
	// Out holds positions that are 0 or greater than Count.
	Out []uint
}

func (r Report) OK() bool {
	return len(r.Gaps) == 0 && len(r.Duplicates) == 0 && len(r.Out) == 0
}

// Err returns nil for a dense list and a wrapped ErrConstraintViolation otherwise.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%s has %d items with gaps %v, duplicates %v, out of range %v: %w",
		r.Parent, r.Count, r.Gaps, r.Duplicates, r.Out, domain.ErrConstraintViolation)
}

// Inspect checks items of a single parent, in any order.
func Inspect(parent domain.ParentID, items []*domain.Item) Report {
	r := Report{Parent: parent, Count: len(items)}

	seen := make(map[uint]int, len(items))
	for _, it := range items {
		seen[it.Position]++
	}

	for pos, n := range seen {
		if pos == 0 || int(pos) > len(items) {
			r.Out = append(r.Out, pos)
		}
		if n > 1 {
			r.Duplicates = append(r.Duplicates, pos)
		}
	}
	for pos := 1; pos <= len(items); pos++ {
		if seen[uint(pos)] == 0 {
			r.Gaps = append(r.Gaps, uint(pos))
		}
	}

	slices.Sort(r.Out)
	slices.Sort(r.Duplicates)
	return r
}

