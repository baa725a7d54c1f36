// Package store persists overlay and telemetry events.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/gameoverlay/gameoverlay/pkg/types"
)

// EventStore is an append-only event journal.
type EventStore interface {
	AppendEvent(ctx context.Context, ev types.Event) error
	QueryEvents(ctx context.Context, q types.EventQuery) ([]types.Event, error)
	Close() error
}

// Query limits shared by the backends.
const (
	DefaultQueryLimit = 200
	MaxQueryLimit     = 5000
)

// Filtered drops events rejected by keep before they reach the inner store.
type Filtered struct {
	EventStore
	keep func(types.Event) bool
}

// NewFiltered wraps inner. A nil keep passes everything.
func NewFiltered(inner EventStore, keep func(types.Event) bool) *Filtered {
	return &Filtered{EventStore: inner, keep: keep}
}

func (f *Filtered) AppendEvent(ctx context.Context, ev types.Event) error {
	if f.keep != nil && !f.keep(ev) {
		return nil
	}
	return f.EventStore.AppendEvent(ctx, ev)
}

// PoseSampler keeps every n-th pose of each plugin, counting from the lock,
// and every event that is not a pose. n <= 0 drops all poses.
func PoseSampler(n int) func(types.Event) bool {
	var mu sync.Mutex
	seen := map[string]int{}
	return func(ev types.Event) bool {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Type {
		case types.EventPluginLocked, types.EventPluginUnlocked:
			delete(seen, ev.Plugin)
			return true
		case types.EventPose:
		default:
			return true
		}
		if n <= 0 {
			return false
		}
		i := seen[ev.Plugin]
		seen[ev.Plugin] = i + 1
		return i%n == 0
	}
}

// Match reports whether ev passes the filters of q. Ordering, offset and
// limit are applied by Window.
func Match(ev types.Event, q types.EventQuery) bool {
	if len(q.Types) > 0 {
		found := false
		for _, t := range q.Types {
			if ev.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Plugin != "" && ev.Plugin != q.Plugin {
		return false
	}
	if q.PID != 0 && ev.PID != q.PID {
		return false
	}
	if q.Since != nil && ev.Timestamp.Before(*q.Since) {
		return false
	}
	if q.Until != nil && ev.Timestamp.After(*q.Until) {
		return false
	}
	return true
}

// Window orders matched events by timestamp (newest first unless q.Asc)
// and applies q's offset and limit.
func Window(events []types.Event, q types.EventQuery) []types.Event {
	sort.SliceStable(events, func(i, j int) bool {
		if q.Asc {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	limit := q.Limit
	if limit <= 0 || limit > MaxQueryLimit {
		limit = DefaultQueryLimit
	}
	offset := max(q.Offset, 0)
	if offset >= len(events) {
		return nil
	}
	events = events[offset:]
	if len(events) > limit {
		events = events[:limit]
	}
	return events
}
