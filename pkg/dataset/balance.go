package dataset

import (
	"fmt"
)

// Balancing equalizes present/absent counts across the per-class binary
// datasets, so that a classifier trained on them does not just learn the
// base rate. It runs as a pure pass over an already-built BinarySet, either
// at the end of a run or post-hoc over datasets read back from disk.

// BalanceResult is the outcome of balancing one BinarySet.
type BalanceResult struct {
	Sets  BinarySet // balanced per-class sets; classes with no present entries are excluded
	Count int       // entries kept per label side, per class (the global minimum)
	Notes []string  // one note per excluded class
}

// Balance computes the balanced split. For every class we count present and
// absent entries; the global minimum m over all counted sides becomes the
// per-side quota, and each class keeps its first m present and first m
// absent entries in original record order. Classes with zero present entries
// cannot be balanced and are left out with a note rather than failing the
// whole pass.
//
// Deterministic: no sampling, no randomness; the same input always yields
// the same split.
func Balance(sets BinarySet, order []string) BalanceResult {
	result := BalanceResult{Sets: BinarySet{}}

	m := -1
	for _, class := range order {
		set, ok := sets[class]
		if !ok {
			continue
		}
		present, absent := countLabels(set, class)
		if present == 0 {
			continue
		}
		if m < 0 || present < m {
			m = present
		}
		if absent < m {
			m = absent
		}
	}
	if m < 0 {
		m = 0
	}
	result.Count = m

	for _, class := range order {
		set, ok := sets[class]
		if !ok {
			continue
		}
		present, _ := countLabels(set, class)
		if present == 0 {
			result.Notes = append(result.Notes, fmt.Sprintf("class '%v' has no present entries, excluded from balanced set", class))
			continue
		}
		balanced := &BinaryClassSet{Annotations: []BinaryEntry{}}
		keptPresent, keptAbsent := 0, 0
		for _, entry := range set.Annotations {
			if entry.Label == class && keptPresent < m {
				balanced.Annotations = append(balanced.Annotations, entry)
				keptPresent++
			} else if entry.Label == AbsentLabel && keptAbsent < m {
				balanced.Annotations = append(balanced.Annotations, entry)
				keptAbsent++
			}
		}
		result.Sets[class] = balanced
	}
	return result
}

func countLabels(set *BinaryClassSet, class string) (present, absent int) {
	for _, entry := range set.Annotations {
		switch entry.Label {
		case class:
			present++
		case AbsentLabel:
			absent++
		}
	}
	return present, absent
}
