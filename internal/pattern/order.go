package pattern

import (
	"sort"

	"github.com/ungerik/go3d/float64/vec3"
)

// DefaultOrderTolerance is the distance in cm under which two panel
// locations are considered equal during ordering.
const DefaultOrderTolerance = 5

// PanelOrder returns a deterministic ordering of panel names based on their
// universal 3D translations: hierarchical fuzzy sort X -> Y -> Z
// (left-right looking from Z, then down-up, then back-front). Panels within
// tolerance of each other on one axis are re-sorted by the next axis.
func (s *Spec) PanelOrder() []string {
	return s.PanelOrderTol(DefaultOrderTolerance)
}

// PanelOrderTol is PanelOrder with an explicit tolerance in cm.
func (s *Spec) PanelOrderTol(tolerance float64) []string {
	names := make([]string, 0, len(s.Pattern.Panels))
	for name := range s.Pattern.Panels {
		names = append(names, name)
	}
	sort.Strings(names) // map iteration order must not leak into the result

	locations := make(map[string]vec3.T, len(names))
	for _, name := range names {
		locations[name] = s.Pattern.Panels[name].UniversalTranslation()
	}
	return fuzzySort(names, locations, 0, tolerance)
}

// fuzzySort sorts names by location along dim, recursively re-sorting runs
// of near-equal values by the next dimension.
func fuzzySort(names []string, locations map[string]vec3.T, dim int, tolerance float64) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.SliceStable(sorted, func(i, j int) bool {
		return locations[sorted[i]][dim] < locations[sorted[j]][dim]
	})
	if dim+1 >= 3 {
		return sorted
	}

	refine := func(start, end int) {
		if end-start > 1 {
			refined := fuzzySort(sorted[start:end], locations, dim+1, tolerance)
			copy(sorted[start:end], refined)
		}
	}

	fuzzyStart := 0
	for fuzzyEnd := 1; fuzzyEnd < len(sorted); fuzzyEnd++ {
		if locations[sorted[fuzzyEnd]][dim]-locations[sorted[fuzzyStart]][dim] >= tolerance {
			// the run of similar values is complete
			refine(fuzzyStart, fuzzyEnd)
			fuzzyStart = fuzzyEnd
		}
	}
	refine(fuzzyStart, len(sorted))

	return sorted
}
