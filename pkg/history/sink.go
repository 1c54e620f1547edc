package history

import (
	"context"
	"sync"

	"Sherpa/pkg/bus"
	"Sherpa/pkg/logger"
	"Sherpa/pkg/types"
)

// Sink records every snapshot event on the bus.
// The first event, normally the baseline, is diffed against an empty snapshot.
type Sink struct {
	store *Store

	mu   sync.Mutex
	prev types.ConnectedDevicesSnapshot
}

// NewSink creates a bus sink backed by store
func NewSink(store *Store) *Sink {
	return &Sink{store: store}
}

func (s *Sink) Name() string { return "history" }

func (s *Sink) Handle(ctx context.Context, event bus.Event) error {
	if !event.HasSnapshot() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	transitions, err := s.store.Record(ctx, s.prev, event.Snapshot)
	if err != nil {
		return err
	}
	s.prev = event.Snapshot.Clone()

	for _, t := range transitions {
		logger.LogDebug("history").
			Str("device", t.DeviceID).
			Str("platform", t.Platform).
			Str("action", t.Action).
			Msg("Device transition recorded")
	}
	return nil
}
