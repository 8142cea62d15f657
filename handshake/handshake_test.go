package handshake_test

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
	"github.com/darkrenaissance/darkfi-sub003/transport"
)

func newLoopbackPair(t *testing.T) (*channel.Channel, *channel.Channel) {
	t.Helper()

	dir := t.TempDir()
	local, err := addr.New(addr.SchemeUnix, dir+"/loop.sock", 0)
	require.NoError(t, err)

	reg, err := transport.NewRegistry(transport.Config{
		AllowedTransports: map[addr.Scheme]bool{addr.SchemeUnix: true},
	})
	require.NoError(t, err)

	ln, err := reg.Listen(local)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan transport.Stream, 1)
	go func() {
		s, _, err := ln.Accept()
		require.NoError(t, err)
		accepted <- s
	}()

	clientStream, err := reg.Dial(context.Background(), local, time.Second)
	require.NoError(t, err)
	serverStream := <-accepted

	cfg := channel.Config{Magic: message.DefaultMagic, MaxPayload: message.DefaultMaxPayload}
	client := channel.New(1, clientStream, true, cfg)
	server := channel.New(2, serverStream, false, cfg)
	client.Start()
	server.Start()

	t.Cleanup(func() {
		client.Stop()
		server.Stop()
	})
	return client, server
}

func sequentialNonce(start uint64) func() uint64 {
	n := start
	return func() uint64 {
		n++
		return n
	}
}

func TestPerformSucceedsAndHarvestsListeningAddrs(t *testing.T) {
	client, server := newLoopbackPair(t)
	store := hostlist.New(hostlist.Config{})

	listening, err := addr.New(addr.SchemeTCP, "1.2.3.4", 8333)
	require.NoError(t, err)

	clientCfg := handshake.Config{
		ProtocolVersion:  1,
		UserAgent:        "test-client",
		HandshakeTimeout: 2 * time.Second,
		NonceFunc:        sequentialNonce(1),
		ListeningAddrs:   []addr.Address{listening},
	}
	serverCfg := handshake.Config{
		ProtocolVersion:  1,
		UserAgent:        "test-server",
		HandshakeTimeout: 2 * time.Second,
		NonceFunc:        sequentialNonce(1000),
	}

	clientResult := make(chan error, 1)
	go func() {
		_, err := handshake.Perform(context.Background(), client, clientCfg, handshake.NewNonceTracker(), hostlist.New(hostlist.Config{}))
		clientResult <- err
	}()

	peerVer, err := handshake.Perform(context.Background(), server, serverCfg, handshake.NewNonceTracker(), store)
	require.NoError(t, err)
	require.Equal(t, "test-client", peerVer.UserAgent)
	require.NoError(t, <-clientResult)

	tier, ok := store.TierOf(listening)
	require.True(t, ok)
	require.Equal(t, hostlist.TierGrey, tier)
}

func TestPerformRejectsIncompatibleVersion(t *testing.T) {
	client, server := newLoopbackPair(t)

	clientCfg := handshake.Config{ProtocolVersion: 1, HandshakeTimeout: 2 * time.Second, NonceFunc: sequentialNonce(1)}
	serverCfg := handshake.Config{ProtocolVersion: 2, HandshakeTimeout: 2 * time.Second, NonceFunc: sequentialNonce(1000)}

	go handshake.Perform(context.Background(), client, clientCfg, handshake.NewNonceTracker(), hostlist.New(hostlist.Config{}))

	_, err := handshake.Perform(context.Background(), server, serverCfg, handshake.NewNonceTracker(), hostlist.New(hostlist.Config{}))
	require.ErrorIs(t, err, handshake.ErrIncompatibleVersion)
}

func TestRequestAddrsRoundTrip(t *testing.T) {
	client, server := newLoopbackPair(t)
	client.StartReceiveLoop()
	server.StartReceiveLoop()

	store := hostlist.New(hostlist.Config{})
	a, err := addr.New(addr.SchemeTCP, "9.9.9.9", 1234)
	require.NoError(t, err)
	require.NoError(t, store.Register(a, hostlist.TierWhite))

	responder := func() {
		sub := channel.Subscribe[*message.GetAddr](server, channel.DropOldest, 1)
		defer sub.Unsubscribe()
		<-sub.Messages()
		entries := store.Filter(nil)
		server.QueueMessage(&message.Addr{Entries: entries}, nil)
	}
	go responder()

	reply, err := handshake.RequestAddrs(context.Background(), client, 10, nil, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, reply.Entries, 1)
	require.True(t, reply.Entries[0].Equal(a))
}
