package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		defaults []string
		add      []string
		remove   []string
		want     []string
	}{
		{
			name:     "defaults only",
			defaults: []string{"b.exe", "A.exe"},
			want:     []string{"a.exe", "b.exe"},
		},
		{
			name:     "union with additions",
			defaults: []string{"a.exe"},
			add:      []string{"C.EXE", "a.exe"},
			want:     []string{"a.exe", "c.exe"},
		},
		{
			name:     "remove default",
			defaults: []string{"a.exe", "b.exe"},
			remove:   []string{"B.exe"},
			want:     []string{"a.exe"},
		},
		{
			name:     "remove own addition",
			defaults: []string{"a.exe"},
			add:      []string{"c.exe"},
			remove:   []string{"c.exe"},
			want:     []string{"a.exe"},
		},
		{
			name:     "remove unknown entry is a no-op",
			defaults: []string{"a.exe"},
			remove:   []string{"zzz.exe"},
			want:     []string{"a.exe"},
		},
		{
			name:   "blank entries dropped",
			add:    []string{"", "  ", "x.exe"},
			remove: []string{""},
			want:   []string{"x.exe"},
		},
		{
			name: "everything empty",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.defaults, tt.add, tt.remove))
		})
	}
}

func TestMerge_RemovalIdempotent(t *testing.T) {
	defaults := []string{"a.exe", "b.exe"}
	once := Merge(defaults, nil, []string{"b.exe", "nope.exe"})
	twice := Merge(defaults, nil, []string{"b.exe", "nope.exe", "b.exe", "nope.exe"})
	assert.Equal(t, once, twice)

	// Re-merging the result with the same removal changes nothing.
	assert.Equal(t, once, Merge(once, nil, []string{"b.exe", "nope.exe"}))
}
