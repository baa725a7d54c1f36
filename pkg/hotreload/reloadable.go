// Package hotreload keeps a value in sync with the files it was loaded
// from.
package hotreload

import (
	"sync/atomic"
)

// Reloadable holds a value that is replaced atomically.
type Reloadable[T any] struct {
	value   atomic.Pointer[T]
	version atomic.Int64
}

// NewReloadable creates a reloadable holding initial.
func NewReloadable[T any](initial *T) *Reloadable[T] {
	r := &Reloadable[T]{}
	if initial != nil {
		r.value.Store(initial)
	}
	return r
}

// Get returns the current value.
func (r *Reloadable[T]) Get() *T {
	return r.value.Load()
}

// Swap replaces the value and returns the old one.
func (r *Reloadable[T]) Swap(v *T) *T {
	old := r.value.Swap(v)
	r.version.Add(1)
	return old
}

// Version counts swaps.
func (r *Reloadable[T]) Version() int64 {
	return r.version.Load()
}
