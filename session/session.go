// Package session implements the four Session variants (C6) that drive
// Channel creation and tear-down: Inbound, Outbound, Manual, and Seed.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/channel"
	"github.com/darkrenaissance/darkfi-sub003/handshake"
	"github.com/darkrenaissance/darkfi-sub003/hostlist"
	"github.com/darkrenaissance/darkfi-sub003/log"
	"github.com/darkrenaissance/darkfi-sub003/transport"
)

var slog = log.Disabled()

// UseLogger redirects the package-level subsystem logger.
func UseLogger(l btclog.Logger) { slog = l }

// Session is the tiny shared contract every variant implements (spec
// §4.5: "start, stop, new_channel(stream, addr, outbound)" — new_channel
// is internal to each driver's dial/accept path here, since each variant
// needs different pre-channel bookkeeping).
type Session interface {
	Start(ctx context.Context) error
	Stop() error
}

// Deps bundles everything a Session variant needs that is owned by the
// P2P orchestrator (spec §4.7), so each variant takes one value instead
// of a long constructor argument list.
type Deps struct {
	Hostlist  *hostlist.Store
	Transport *transport.Registry
	Events    *EventBus

	ChannelConfig   channel.Config
	HandshakeConfig handshake.Config
	Nonces          *handshake.NonceTracker

	// NextChannelID allocates the next monotonic channel id, shared
	// across every session so ids are globally unique (spec §3:
	// "stable channel id (monotonic)").
	NextChannelID func() uint64

	// Channels returns a snapshot of every currently connected channel
	// across the whole P2P instance, used by Outbound's peer-discovery
	// step (spec §4.5 step 2: "pick a connected channel at random").
	Channels func() []*channel.Channel

	// OnChannelUp/OnChannelDown hook the channel into the P2P registry
	// and protocol set; they block until protocols have been
	// spawned/stopped respectively.
	OnChannelUp   func(ctx context.Context, ch *channel.Channel)
	OnChannelDown func(ch *channel.Channel)
}

// dialOutbound performs a full outbound connection setup: dial, channel
// construction, and the mandatory handshake, leaving the channel in
// Handshaking-complete state (StartReceiveLoop not yet called — each
// caller starts the receive loop itself; Seed starts it only for its
// one-shot addr exchange and then stops the channel). Shared by
// Outbound, Manual, and Seed.
func dialOutbound(ctx context.Context, deps Deps, target addr.Address, connectTimeout time.Duration) (*channel.Channel, error) {
	dialCtx := ctx
	var cancel context.CancelFunc
	if connectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}

	stream, err := deps.Transport.Dial(dialCtx, target, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("session: dial %v: %w", target, err)
	}

	id := deps.NextChannelID()
	ch := channel.New(id, stream, true, deps.ChannelConfig)
	ch.Start()

	if _, err := handshake.Perform(dialCtx, ch, deps.HandshakeConfig, deps.Nonces, deps.Hostlist); err != nil {
		ch.Stop()
		return nil, fmt.Errorf("session: handshake with %v: %w", target, err)
	}
	return ch, nil
}
