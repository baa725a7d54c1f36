package metrics

import (
	"context"
	"time"

	"github.com/gameoverlay/gameoverlay/internal/store"
	"github.com/gameoverlay/gameoverlay/pkg/types"
)

// journal times and counts every append to the wrapped store.
type journal struct {
	store.EventStore
	c *Collector
}

// WrapEventStore instruments inner with c. A nil collector leaves inner
// unwrapped.
func WrapEventStore(inner store.EventStore, c *Collector) store.EventStore {
	if inner == nil || c == nil {
		return inner
	}
	return &journal{EventStore: inner, c: c}
}

func (j *journal) AppendEvent(ctx context.Context, ev types.Event) error {
	start := time.Now()
	err := j.EventStore.AppendEvent(ctx, ev)
	j.c.ObserveJournal(ev, time.Since(start), err)
	return err
}
