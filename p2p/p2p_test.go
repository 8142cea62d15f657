package p2p_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/message"
	"github.com/darkrenaissance/darkfi-sub003/p2p"
)

func unixAddr(t *testing.T, name string) addr.Address {
	t.Helper()
	dir := t.TempDir()
	a, err := addr.New(addr.SchemeUnix, dir+"/"+name+".sock", 0)
	require.NoError(t, err)
	return a
}

func TestNewRejectsNegativeSlotCounts(t *testing.T) {
	_, err := p2p.New(p2p.Settings{
		OutboundConnections: -1,
		AllowedTransports:   map[addr.Scheme]bool{addr.SchemeUnix: true},
	})
	var cfgErr *p2p.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestStartStopIsIdempotentAndGracefulWithNoPeers(t *testing.T) {
	inst, err := p2p.New(p2p.Settings{
		AllowedTransports: map[addr.Scheme]bool{addr.SchemeUnix: true},
	})
	require.NoError(t, err)

	require.NoError(t, inst.Start(context.Background()))
	require.Error(t, inst.Start(context.Background())) // already started

	require.NoError(t, inst.Stop())
	require.NoError(t, inst.Stop()) // idempotent
}

func TestOutboundDialsInboundAndChannelComesUp(t *testing.T) {
	listenAddr := unixAddr(t, "server")

	server, err := p2p.New(p2p.Settings{
		Inbound:            []addr.Address{listenAddr},
		InboundConnections: 4,
		AllowedTransports:  map[addr.Scheme]bool{addr.SchemeUnix: true},
		Magic:              message.DefaultMagic,
	})
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	client, err := p2p.New(p2p.Settings{
		Peers:              []addr.Address{listenAddr},
		ManualAttemptLimit: 1,
		AllowedTransports:  map[addr.Scheme]bool{addr.SchemeUnix: true},
		Magic:              message.DefaultMagic,
	})
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Stop()

	require.Eventually(t, func() bool {
		return len(server.Channels()) == 1 && len(client.Channels()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	info := client.GetInfo()
	require.NotNil(t, info.DialAttemptCounters)
}

func TestBroadcastReachesConnectedChannels(t *testing.T) {
	listenAddr := unixAddr(t, "broadcast-server")

	server, err := p2p.New(p2p.Settings{
		Inbound:            []addr.Address{listenAddr},
		InboundConnections: 4,
		AllowedTransports:  map[addr.Scheme]bool{addr.SchemeUnix: true},
	})
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	client, err := p2p.New(p2p.Settings{
		Peers:              []addr.Address{listenAddr},
		ManualAttemptLimit: 1,
		AllowedTransports:  map[addr.Scheme]bool{addr.SchemeUnix: true},
	})
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Stop()

	require.Eventually(t, func() bool {
		return len(client.Channels()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	sent := client.Broadcast(&message.Ping{Cookie: 42}, nil)
	require.Equal(t, 1, sent)
}
