package transport_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/transport"
)

func TestUnixDialListenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "darkfi.sock")
	local, err := addr.New(addr.SchemeUnix, sockPath, 0)
	require.NoError(t, err)

	reg, err := transport.NewRegistry(transport.Config{
		AllowedTransports: map[addr.Scheme]bool{addr.SchemeUnix: true},
	})
	require.NoError(t, err)

	ln, err := reg.Listen(local)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan transport.Stream, 1)
	go func() {
		s, _, err := ln.Accept()
		require.NoError(t, err)
		accepted <- s
	}()

	clientStream, err := reg.Dial(context.Background(), local, time.Second)
	require.NoError(t, err)
	defer clientStream.Close()

	serverStream := <-accepted
	defer serverStream.Close()

	msg := []byte("ping")
	_, err = clientStream.Write(msg)
	require.NoError(t, err)

	buf := make([]byte, len(msg))
	_, err = serverStream.Read(buf)
	require.NoError(t, err)
	require.Equal(t, msg, buf)
}

func TestRegistryRejectsDisallowedScheme(t *testing.T) {
	reg, err := transport.NewRegistry(transport.Config{
		AllowedTransports: map[addr.Scheme]bool{addr.SchemeUnix: true},
	})
	require.NoError(t, err)

	target, err := addr.New(addr.SchemeTCP, "127.0.0.1", 65100)
	require.NoError(t, err)

	_, err = reg.Dial(context.Background(), target, time.Second)
	require.Error(t, err)
}
