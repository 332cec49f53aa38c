package app

import (
	"sync"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
)

// EventKind tags which of the enumerated observability events a value
// carries.
type EventKind int

// The event kinds a node emits, per section 6.
const (
	EventNewTip EventKind = iota
	EventReorg
	EventSyncedStatus
	EventPeerMisbehavior
	EventBroadcastBlock
	EventBroadcastTx
)

// Event is the payload delivered to every subscriber; only the field
// matching Kind is populated.
type Event struct {
	Kind EventKind

	// Chain: EventNewTip, EventReorg, EventBroadcastTx.
	// Hash, Weight: EventNewTip.
	Chain  externalapi.ChainIndex
	Hash   externalapi.DomainHash
	Weight externalapi.Weight

	// EventReorg
	Removed []externalapi.DomainHash
	Added   []externalapi.DomainHash

	// EventSyncedStatus
	Synced bool

	// EventPeerMisbehavior
	MisbehaviorKind string
	PeerAddress     string

	// EventBroadcastBlock
	Block  *externalapi.DomainBlock
	Origin string

	// EventBroadcastTx
	TxHashes []externalapi.DomainHash
}

// EventBus is a simple publish/subscribe bus: every subscriber receives
// every published event on its own buffered channel, so a slow consumer
// never blocks a fast one from being scheduled, only from draining.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[int]chan Event)}
}

// Subscribe registers a new listener with the given channel buffer depth
// and returns the channel to receive on plus an unsubscribe function.
func (b *EventBus) Subscribe(bufferSize int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, bufferSize)
	b.subscribers[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
}

// Publish delivers event to every current subscriber, dropping it for any
// subscriber whose buffer is full rather than blocking the publisher.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
