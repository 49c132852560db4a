package study

import (
	"cmp"
	"math/rand/v2"
	"slices"
)

// SortItems orders items in place.
//
// SortByID and SortByNextReview are stable. SortByNextReview puts items with
// no scheduled review after every item that has one. SortRandom shuffles with
// rng; a nil rng leaves the order unchanged. An unknown mode sorts by id.
func SortItems(items []Item, mode SortMode, rng *rand.Rand) {
	switch mode {
	case SortByNextReview:
		slices.SortStableFunc(items, compareNextReview)
	case SortRandom:
		if rng != nil {
			rng.Shuffle(len(items), func(i, j int) {
				items[i], items[j] = items[j], items[i]
			})
		}
	case SortByID:
		slices.SortStableFunc(items, compareID)
	default:
		slices.SortStableFunc(items, compareID)
	}
}

func compareID(a, b Item) int {
	return cmp.Compare(a.ID(), b.ID())
}

func compareNextReview(a, b Item) int {
	ta, tb := a.AvailableAt(), b.AvailableAt()
	switch {
	case ta == nil && tb == nil:
		return 0
	case ta == nil:
		return 1
	case tb == nil:
		return -1
	default:
		return ta.Compare(*tb)
	}
}
