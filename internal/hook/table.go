package hook

import (
	"sync"

	"go.uber.org/multierr"
)

// Table tracks installed hooks by target address.
type Table struct {
	mu    sync.Mutex
	hooks map[uintptr]*Hook
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{hooks: map[uintptr]*Hook{}}
}

// Get returns the hook on target, if any.
func (t *Table) Get(target uintptr) (*Hook, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.hooks[target]
	return h, ok
}

// Len returns the number of installed hooks.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hooks)
}

// Hooks returns the installed hooks in no particular order.
func (t *Table) Hooks() []*Hook {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Hook, 0, len(t.hooks))
	for _, h := range t.hooks {
		out = append(out, h)
	}
	return out
}

func (t *Table) add(h *Hook) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.hooks[h.Target]; exists {
		return false
	}
	t.hooks[h.Target] = h
	return true
}

func (t *Table) remove(target uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.hooks, target)
}

// UninstallAll removes every hook, continuing past failures.
func (t *Table) UninstallAll() error {
	var err error
	for _, h := range t.Hooks() {
		err = multierr.Append(err, h.Uninstall())
	}
	return err
}
