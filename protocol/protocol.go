// Package protocol implements the Protocol Registry (C7): a per-channel
// collection of Protocol objects spawned on connect and stopped, in
// reverse order, on disconnect.
package protocol

import (
	"context"

	"github.com/btcsuite/btclog"
	"github.com/darkrenaissance/darkfi-sub003/channel"
	"github.com/darkrenaissance/darkfi-sub003/log"
)

var plog = log.Disabled()

// UseLogger redirects the package-level subsystem logger.
func UseLogger(l btclog.Logger) { plog = l }

// Protocol is anything spawned on a channel-up event and torn down on
// channel-down (spec §4.6). A typical Protocol registers message-type
// subscriptions on the channel, runs a receive loop consuming them, and
// optionally sends messages of its own.
type Protocol interface {
	// Run is invoked once, in a goroutine the registry manages, after
	// the Protocol is constructed. It must return once ctx is done.
	Run(ctx context.Context)
	// Stop tears the protocol down; it must be safe to call even if Run
	// has already returned on its own (e.g. because the channel died).
	Stop()
}

// Factory constructs a Protocol bound to ch. p2pHandle is an opaque
// back-reference (the P2P orchestrator) typed as interface{} here to
// avoid an import cycle between protocol and p2p; factories type-assert
// it to their expected interface.
type Factory func(ch *channel.Channel, p2pHandle interface{}) Protocol

// Registry holds an ordered list of Factories, and the live Protocol set
// bound to each channel. The core supplies the handshake/heartbeat
// factories (C9) and guarantees they run first (spec §4.6).
type Registry struct {
	factories []Factory
	bound     map[uint64][]Protocol
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bound: make(map[uint64][]Protocol)}
}

// Register appends a Factory, to be invoked for every channel-up event
// from this point forward. Call before P2P.Start (spec §4.7:
// register_protocol, "before start").
func (r *Registry) Register(f Factory) {
	r.factories = append(r.factories, f)
}

// OnChannelUp invokes every registered Factory for ch, in registration
// order, starting each returned Protocol's Run loop and recording it for
// ordered teardown.
func (r *Registry) OnChannelUp(ctx context.Context, ch *channel.Channel, p2pHandle interface{}) {
	var bound []Protocol
	for _, f := range r.factories {
		p := f(ch, p2pHandle)
		bound = append(bound, p)
		go p.Run(ctx)
	}
	r.bound[ch.ID()] = bound
	plog.Debugf("channel %d: started %d protocols", ch.ID(), len(bound))
}

// OnChannelDown stops every Protocol bound to ch, in reverse
// registration order, and awaits nothing further — each Stop is
// expected to be synchronous (spec §4.6: "stop() is invoked on each in
// reverse registration order and awaited before the channel is
// removed").
func (r *Registry) OnChannelDown(ch *channel.Channel) {
	bound := r.bound[ch.ID()]
	for i := len(bound) - 1; i >= 0; i-- {
		bound[i].Stop()
	}
	delete(r.bound, ch.ID())
	plog.Debugf("channel %d: stopped %d protocols", ch.ID(), len(bound))
}
