package bus

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"Sherpa/pkg/logger"
	"Sherpa/pkg/types"

	"github.com/google/uuid"
)

const (
	// TopicDevicesChanged is published whenever the connected device set changes
	TopicDevicesChanged = "devices-changed"
	// TopicDevicesBaseline carries the devices already connected when monitoring starts
	TopicDevicesBaseline = "devices-baseline"
)

// DefaultQueueSize is used when New is given a non-positive size
const DefaultQueueSize = 64

// sinkTimeout bounds a single sink delivery
const sinkTimeout = 5 * time.Second

var (
	// ErrQueueFull is returned by Publish when the dispatcher is behind
	ErrQueueFull = errors.New("event bus queue full")
	// ErrClosed is returned by Publish after Close
	ErrClosed = errors.New("event bus closed")
)

// Event is one message on the bus
type Event struct {
	ID        string                         `json:"id"`
	Topic     string                         `json:"topic"`
	Timestamp int64                          `json:"timestamp"` // unix ms
	Snapshot  types.ConnectedDevicesSnapshot `json:"snapshot"`
}

// NewDevicesChanged builds a devices-changed event for snapshot
func NewDevicesChanged(snapshot types.ConnectedDevicesSnapshot) Event {
	return newSnapshotEvent(TopicDevicesChanged, snapshot)
}

// NewBaseline builds a devices-baseline event for snapshot
func NewBaseline(snapshot types.ConnectedDevicesSnapshot) Event {
	return newSnapshotEvent(TopicDevicesBaseline, snapshot)
}

func newSnapshotEvent(topic string, snapshot types.ConnectedDevicesSnapshot) Event {
	return Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Timestamp: time.Now().UnixMilli(),
		Snapshot:  snapshot.Clone(),
	}
}

// HasSnapshot reports whether the event carries the full device set
func (e Event) HasSnapshot() bool {
	return e.Topic == TopicDevicesChanged || e.Topic == TopicDevicesBaseline
}

// Sink receives every event published on the bus
type Sink interface {
	Name() string
	Handle(ctx context.Context, event Event) error
}

// Bus fans events out to sinks from a single dispatcher goroutine.
// Publish never blocks; events are delivered in publish order.
type Bus struct {
	queue chan Event

	mu     sync.RWMutex
	sinks  []Sink
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a bus and starts its dispatcher
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		queue:  make(chan Event, queueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe adds a sink. Sinks added later do not see earlier events.
func (b *Bus) Subscribe(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish enqueues event without blocking
func (b *Bus) Publish(event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	select {
	case b.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events, delivers what is queued and waits for the dispatcher
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
	b.cancel()
}

func (b *Bus) dispatch() {
	defer close(b.done)

	for event := range b.queue {
		b.mu.RLock()
		sinks := make([]Sink, len(b.sinks))
		copy(sinks, b.sinks)
		b.mu.RUnlock()

		for _, sink := range sinks {
			b.deliver(sink, event)
		}
	}
}

func (b *Bus) deliver(sink Sink, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic("bus/"+sink.Name(), r, string(debug.Stack()))
		}
	}()

	ctx, cancel := context.WithTimeout(b.ctx, sinkTimeout)
	defer cancel()

	if err := sink.Handle(ctx, event); err != nil {
		logger.LogWarn("bus").
			Err(err).
			Str("sink", sink.Name()).
			Str("topic", event.Topic).
			Str("event_id", event.ID).
			Msg("Sink failed to handle event")
	}
}
