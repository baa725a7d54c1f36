// Package composite fans events out to several stores.
package composite

import (
	"context"

	"go.uber.org/multierr"

	"github.com/gameoverlay/gameoverlay/internal/store"
	"github.com/gameoverlay/gameoverlay/pkg/types"
)

// Store appends to every member and queries the primary.
type Store struct {
	primary store.EventStore
	others  []store.EventStore
}

func New(primary store.EventStore, others ...store.EventStore) *Store {
	return &Store{primary: primary, others: others}
}

func (s *Store) AppendEvent(ctx context.Context, ev types.Event) error {
	err := s.primary.AppendEvent(ctx, ev)
	for _, o := range s.others {
		err = multierr.Append(err, o.AppendEvent(ctx, ev))
	}
	return err
}

func (s *Store) QueryEvents(ctx context.Context, q types.EventQuery) ([]types.Event, error) {
	return s.primary.QueryEvents(ctx, q)
}

func (s *Store) Close() error {
	err := s.primary.Close()
	for _, o := range s.others {
		err = multierr.Append(err, o.Close())
	}
	return err
}
