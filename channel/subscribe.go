package channel

import (
	"sync/atomic"

	"github.com/darkrenaissance/darkfi-sub003/message"
)

// subscriberEntry is the internal, type-erased side of a Subscription:
// push delivers a decoded message.Message to the subscriber, applying
// whatever BackpressurePolicy it was created with.
type subscriberEntry struct {
	id      uint64
	push    func(msg message.Message)
	closeFn func()
}

// Subscription is a typed, back-pressured stream of one message
// command, fanned out identically to every subscriber of that type
// (spec §4.4: "multiple subscribers for the same type fan-out identical
// copies"). T is normally a concrete *message.Version, *message.Ping,
// etc.
type Subscription[T message.Message] struct {
	ch      chan T
	channel *Channel
	name    string
	id      uint64
}

// Messages returns the channel of typed payloads. It is closed once the
// owning Channel stops (spec §4.4: "signals all subscriptions to
// complete").
func (s *Subscription[T]) Messages() <-chan T { return s.ch }

// Unsubscribe detaches this subscription; it is idempotent.
func (s *Subscription[T]) Unsubscribe() {
	s.channel.unsubscribe(s.name, s.id)
}

// Subscribe registers a new Subscription[T] on c for T's command name.
// bufSize <= 0 uses DefaultSubscriptionBuffer.
func Subscribe[T message.Message](c *Channel, policy BackpressurePolicy, bufSize int) *Subscription[T] {
	if bufSize <= 0 {
		bufSize = DefaultSubscriptionBuffer
	}

	var zero T
	name := zero.Command()
	ch := make(chan T, bufSize)
	id := atomic.AddUint64(&c.nextSubID, 1)

	push := func(msg message.Message) {
		typed, ok := msg.(T)
		if !ok {
			return
		}
		switch policy {
		case Block:
			select {
			case ch <- typed:
			case <-c.quit:
			}
		case ErrorWhenFull:
			select {
			case ch <- typed:
			default:
				clog.Warnf("channel %d: subscriber for %s saturated, dropping message", c.ID(), name)
			}
		default: // DropOldest
			select {
			case ch <- typed:
			default:
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- typed:
				default:
				}
			}
		}
	}

	c.subMu.Lock()
	c.subs[name] = append(c.subs[name], subscriberEntry{
		id:      id,
		push:    push,
		closeFn: func() { close(ch) },
	})
	c.subMu.Unlock()

	return &Subscription[T]{ch: ch, channel: c, name: name, id: id}
}

func (c *Channel) unsubscribe(name string, id uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	entries := c.subs[name]
	for i, e := range entries {
		if e.id == id {
			c.subs[name] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// dispatch fans msg out to every live subscriber of its command type
// (spec §4.4's "Main receive loop" step 2). A command with no
// subscribers is simply dropped; readHandler drops frames whose command
// has no registered type before they reach here.
func (c *Channel) dispatch(msg message.Message) {
	c.subMu.Lock()
	entries := append([]subscriberEntry(nil), c.subs[msg.Command()]...)
	c.subMu.Unlock()

	for _, e := range entries {
		e.push(msg)
	}
}

// closeSubscriptions closes every subscriber channel for every command
// type, signalling completion (spec §4.4: stop() "signals all
// subscriptions to complete").
func (c *Channel) closeSubscriptions() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for name, entries := range c.subs {
		for _, e := range entries {
			e.closeFn()
		}
		delete(c.subs, name)
	}
}
