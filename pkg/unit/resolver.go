package unit

import (
	"sort"

	"github.com/marionette/marionette/pkg/types"
)

// Resolve turns a batch of records into a total initialization order:
// every unit appears after all of its dependencies.
//
// The algorithm is an iterative fixed-point sort. Each pass collects
// the wave of units whose dependencies are already placed, orders the
// wave ascending by priority (ties keep the batch's discovery order),
// and appends it. Priority is only a tie-break within a wave; a unit
// can never be reordered ahead of one of its dependencies.
//
// If a pass makes no progress while units remain, resolution fails
// naming the stuck units. Resolution is atomic: on failure no partial
// order is returned.
func Resolve(batch []*Record) ([]*Record, error) {
	sorted := make([]*Record, 0, len(batch))
	placed := make(map[types.Ref]bool, len(batch))

	remaining := make([]*Record, len(batch))
	copy(remaining, batch)

	for len(remaining) > 0 {
		var wave []*Record
		var next []*Record
		for _, u := range remaining {
			if depsPlaced(u, placed) {
				wave = append(wave, u)
			} else {
				next = append(next, u)
			}
		}

		if len(wave) == 0 {
			stuck := make([]string, len(remaining))
			for i, u := range remaining {
				stuck[i] = u.Name()
			}
			return nil, &ResolutionError{Stuck: stuck}
		}

		// Stable keeps discovery order for equal priorities.
		sort.SliceStable(wave, func(i, j int) bool {
			return wave[i].Priority() < wave[j].Priority()
		})

		for _, u := range wave {
			placed[u.Ref()] = true
		}
		sorted = append(sorted, wave...)
		remaining = next
	}

	return sorted, nil
}

func depsPlaced(u *Record, placed map[types.Ref]bool) bool {
	for _, dep := range u.Dependencies() {
		if !placed[dep.Ref()] {
			return false
		}
	}
	return true
}
