package plugin

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/gameoverlay/gameoverlay/internal/store"
	"github.com/gameoverlay/gameoverlay/pkg/types"
)

// Sink receives host events: poses and lock transitions.
type Sink interface {
	Publish(ctx context.Context, ev types.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev types.Event) error

func (f SinkFunc) Publish(ctx context.Context, ev types.Event) error { return f(ctx, ev) }

// MultiSink publishes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, ev types.Event) error {
	var err error
	for _, s := range m {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Publish(ctx, ev))
	}
	return err
}

// LatestSink keeps the most recent pose per plugin.
type LatestSink struct {
	mu    sync.RWMutex
	poses map[string]types.Event
}

func NewLatestSink() *LatestSink {
	return &LatestSink{poses: make(map[string]types.Event)}
}

func (s *LatestSink) Publish(_ context.Context, ev types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case types.EventPose:
		s.poses[ev.Plugin] = ev
	case types.EventPluginUnlocked:
		delete(s.poses, ev.Plugin)
	}
	return nil
}

// Latest returns the last pose event for plugin.
func (s *LatestSink) Latest(plugin string) (types.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.poses[plugin]
	return ev, ok
}

// JournalSink appends events to an event store.
type JournalSink struct {
	Store store.EventStore
}

func (j JournalSink) Publish(ctx context.Context, ev types.Event) error {
	return j.Store.AppendEvent(ctx, ev)
}
