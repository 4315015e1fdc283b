package orderbook

import "pegbook/internal/types"

// Merge folds update into existing and returns the resulting side.
//
// Both inputs must already be sorted in the side's order (ascending for asks,
// descending for bids) with unique prices; this is not checked. When a price
// appears in both, the update's level replaces the existing one. Levels with
// zero quantity are removed from the result. Neither input is modified and
// the returned slice never aliases them.
func Merge(update, existing []types.PriceLevel, ascending bool) []types.PriceLevel {
	if len(existing) == 0 {
		return dropEmpty(update)
	}
	if len(update) == 0 {
		return dropEmpty(existing)
	}

	merged := make([]types.PriceLevel, 0, len(update)+len(existing))
	ui, ei := 0, 0
	for ui < len(update) && ei < len(existing) {
		u, e := update[ui], existing[ei]
		cmp := u.Price.Cmp(e.Price)
		switch {
		case cmp == 0:
			merged = append(merged, u)
			ui++
			ei++
		case (cmp < 0) == ascending:
			merged = append(merged, u)
			ui++
		default:
			merged = append(merged, e)
			ei++
		}
	}
	merged = append(merged, update[ui:]...)
	merged = append(merged, existing[ei:]...)

	return dropEmpty(merged)
}

// dropEmpty returns a copy of levels without zero-quantity entries
func dropEmpty(levels []types.PriceLevel) []types.PriceLevel {
	kept := make([]types.PriceLevel, 0, len(levels))
	for _, level := range levels {
		if !level.IsEmpty() {
			kept = append(kept, level)
		}
	}
	return kept
}
