package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
)

// EventKind enumerates the structured events every Session variant
// publishes to the shared event bus (spec §4.5: "peer_discovery,
// dial_attempt, dial_success, dial_failure, accept, disconnect").
type EventKind int

const (
	EventPeerDiscovery EventKind = iota
	EventDialAttempt
	EventDialSuccess
	EventDialFailure
	EventAccept
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventPeerDiscovery:
		return "peer_discovery"
	case EventDialAttempt:
		return "dial_attempt"
	case EventDialSuccess:
		return "dial_success"
	case EventDialFailure:
		return "dial_failure"
	case EventAccept:
		return "accept"
	case EventDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one structured entry on the internal event bus.
type Event struct {
	Kind    EventKind
	Session string // "seed", "outbound", "inbound", "manual"
	Address addr.Address
	Err     error
	Time    time.Time
}

// EventBus is a simple fan-out broadcaster; every subscriber receives
// every published Event, with DropOldest backpressure so one slow
// observability consumer never stalls dialing.
type EventBus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Event
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[uint64]chan Event)}
}

// Publish broadcasts e to every current subscriber, non-blockingly.
func (b *EventBus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- e:
			default:
			}
		}
	}
}

// Subscribe registers a new listener with the given buffer size,
// returning the channel and an unsubscribe function.
func (b *EventBus) Subscribe(bufSize int) (<-chan Event, func()) {
	if bufSize <= 0 {
		bufSize = 32
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, bufSize)
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
}
