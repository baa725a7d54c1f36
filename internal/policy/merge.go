package policy

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Merge computes an effective list:
//
//	(defaults ∪ add) \ (remove ∩ (defaults ∪ add))
//
// Every entry is folded to lowercase and blank entries are dropped.
// Removing an entry that is neither a default nor an addition is a no-op.
// The result is sorted.
func Merge(defaults, add, remove []string) []string {
	effective := foldSet(defaults).Union(foldSet(add))
	removable := foldSet(remove).Intersect(effective)
	result := effective.Difference(removable).ToSlice()
	sort.Strings(result)
	return result
}

func foldSet(values []string) mapset.Set[string] {
	s := mapset.NewThreadUnsafeSet[string]()
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			s.Add(v)
		}
	}
	return s
}
