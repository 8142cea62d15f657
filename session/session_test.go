package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/channel"
	"github.com/darkrenaissance/darkfi-sub003/handshake"
	"github.com/darkrenaissance/darkfi-sub003/hostlist"
	"github.com/darkrenaissance/darkfi-sub003/message"
	"github.com/darkrenaissance/darkfi-sub003/session"
	"github.com/darkrenaissance/darkfi-sub003/transport"
)

// testHarness wires a registry and a peer listener so dialOutbound-based
// sessions (Manual, Seed, Outbound) have something real to connect to.
type testHarness struct {
	reg        *transport.Registry
	listenAddr addr.Address
	gossip     addr.Address // the one entry the peer returns to get_addr
	channels   []*channel.Channel
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	dir := t.TempDir()
	local, err := addr.New(addr.SchemeUnix, dir+"/peer.sock", 0)
	require.NoError(t, err)

	reg, err := transport.NewRegistry(transport.Config{
		AllowedTransports: map[addr.Scheme]bool{addr.SchemeUnix: true},
	})
	require.NoError(t, err)

	ln, err := reg.Listen(local)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	gossip, err := addr.New(addr.SchemeTCP, "7.7.7.7", 8333)
	require.NoError(t, err)

	h := &testHarness{reg: reg, listenAddr: local, gossip: gossip}

	go func() {
		for {
			stream, peerAddr, err := ln.Accept()
			if err != nil {
				return
			}
			id := uint64(len(h.channels)) + 1000
			ch := channel.New(id, stream, false, channel.Config{Magic: message.DefaultMagic, MaxPayload: message.DefaultMaxPayload})
			_ = peerAddr
			ch.Start()

			srvCfg := handshake.Config{ProtocolVersion: 1, UserAgent: "peer", HandshakeTimeout: 2 * time.Second, NonceFunc: sequentialNonce(5000)}
			if _, err := handshake.Perform(context.Background(), ch, srvCfg, handshake.NewNonceTracker(), hostlist.New(hostlist.Config{})); err != nil {
				ch.Stop()
				continue
			}
			ch.StartReceiveLoop()
			h.channels = append(h.channels, ch)

			go func(c *channel.Channel) {
				sub := channel.Subscribe[*message.GetAddr](c, channel.DropOldest, 1)
				defer sub.Unsubscribe()
				req, ok := <-sub.Messages()
				if !ok {
					return
				}
				_ = req
				c.QueueMessage(&message.Addr{Entries: []addr.Address{h.gossip}}, nil)
			}(ch)
		}
	}()

	return h
}

func sequentialNonce(start uint64) func() uint64 {
	n := start
	return func() uint64 {
		n++
		return n
	}
}

func newDeps(t *testing.T, h *testHarness) session.Deps {
	t.Helper()

	var nextID uint64 = 1
	return session.Deps{
		Hostlist:  hostlist.New(hostlist.Config{}),
		Transport: h.reg,
		Events:    session.NewEventBus(),
		ChannelConfig: channel.Config{
			Magic:      message.DefaultMagic,
			MaxPayload: message.DefaultMaxPayload,
		},
		HandshakeConfig: handshake.Config{
			ProtocolVersion:  1,
			UserAgent:        "test",
			HandshakeTimeout: 2 * time.Second,
			NonceFunc:        sequentialNonce(1),
		},
		Nonces: handshake.NewNonceTracker(),
		NextChannelID: func() uint64 {
			id := nextID
			nextID++
			return id
		},
		Channels:      func() []*channel.Channel { return nil },
		OnChannelUp:   func(ctx context.Context, ch *channel.Channel) {},
		OnChannelDown: func(ch *channel.Channel) {},
	}
}

func TestManualConnectsAndRegistersPinned(t *testing.T) {
	h := newHarness(t)
	deps := newDeps(t, h)

	sub, unsubscribe := deps.Events.Subscribe(8)
	defer unsubscribe()

	m := session.NewManual(deps, session.ManualConfig{
		Target:         h.listenAddr,
		ConnectTimeout: 2 * time.Second,
	})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	select {
	case ev := <-sub:
		require.Equal(t, session.EventDialSuccess, ev.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for dial_success event")
	}

	tier, ok := deps.Hostlist.TierOf(h.listenAddr)
	require.True(t, ok)
	require.Equal(t, hostlist.TierAnchor, tier)
}

func TestSeedSyncHarvestsAddressesAndDisconnects(t *testing.T) {
	h := newHarness(t)
	deps := newDeps(t, h)

	s := session.NewSeed(deps, session.SeedConfig{
		Seeds:          []addr.Address{h.listenAddr},
		ConnectTimeout: 2 * time.Second,
	})
	s.Sync(context.Background())

	tier, ok := deps.Hostlist.TierOf(h.gossip)
	require.True(t, ok, "address returned by the seed should be registered")
	require.Equal(t, hostlist.TierGrey, tier)

	// Seed never keeps the channel alive past the exchange.
	require.Len(t, deps.Channels(), 0)
}

func TestOutboundSlotConnectsToFetchedAddress(t *testing.T) {
	h := newHarness(t)
	deps := newDeps(t, h)

	require.NoError(t, deps.Hostlist.Register(h.listenAddr, hostlist.TierWhite))

	sub, unsubscribe := deps.Events.Subscribe(8)
	defer unsubscribe()

	o := session.NewOutbound(deps, session.OutboundConfig{
		Slots:             1,
		AllowedTransports: map[addr.Scheme]bool{addr.SchemeUnix: true},
		ConnectTimeout:    2 * time.Second,
		DiscoveryCooloff:  100 * time.Millisecond,
	}, nil)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Kind == session.EventDialSuccess {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for outbound dial_success event")
		}
	}
}
