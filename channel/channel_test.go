package channel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/channel"
	"github.com/darkrenaissance/darkfi-sub003/message"
	"github.com/darkrenaissance/darkfi-sub003/transport"
)

func newLoopbackPair(t *testing.T) (*channel.Channel, *channel.Channel) {
	t.Helper()

	dir := t.TempDir()
	sockPath := dir + "/loop.sock"
	local, err := addr.New(addr.SchemeUnix, sockPath, 0)
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
	client.StartReceiveLoop()
	server.Start()
	server.StartReceiveLoop()

	t.Cleanup(func() {
		client.Stop()
		server.Stop()
	})
	return client, server
}

func TestSendSubscribeOrdering(t *testing.T) {
	client, server := newLoopbackPair(t)

	sub := channel.Subscribe[*message.Ping](server, channel.DropOldest, 8)

	for i := uint64(0); i < 5; i++ {
		require.NoError(t, client.Send(&message.Ping{Cookie: i}))
	}

	for i := uint64(0); i < 5; i++ {
		select {
		case got := <-sub.Messages():
			require.Equal(t, i, got.Cookie)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for ping %d", i)
		}
	}
}

func TestStopIsIdempotentAndClosesSubscriptions(t *testing.T) {
	client, server := newLoopbackPair(t)

	sub := channel.Subscribe[*message.Pong](server, channel.DropOldest, 4)

	require.NoError(t, client.Stop())
	require.NoError(t, client.Stop()) // idempotent
	server.Stop()

	select {
	case _, ok := <-sub.Messages():
		require.False(t, ok, "subscription channel should be closed after Stop")
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel was never closed")
	}
}

func TestQueueMessageAfterStopReturnsError(t *testing.T) {
	client, server := newLoopbackPair(t)
	_ = server

	require.NoError(t, client.Stop())
	err := client.Send(&message.Ping{Cookie: 1})
	require.ErrorIs(t, err, channel.ErrChannelStopped)
}
