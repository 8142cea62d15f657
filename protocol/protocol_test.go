package protocol_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkrenaissance/darkfi-sub003/channel"
	"github.com/darkrenaissance/darkfi-sub003/protocol"
)

type stubProtocol struct {
	name    string
	order   *[]string
	mu      *sync.Mutex
	running chan struct{}
}

func (s *stubProtocol) Run(ctx context.Context) {
	close(s.running)
	<-ctx.Done()
}

func (s *stubProtocol) Stop() {
	s.mu.Lock()
	*s.order = append(*s.order, s.name)
	s.mu.Unlock()
}

func TestOrderedStartAndReverseStop(t *testing.T) {
	var mu sync.Mutex
	var stopOrder []string
	var startOrder []string

	reg := protocol.NewRegistry()
	makeFactory := func(name string) protocol.Factory {
		return func(ch *channel.Channel, handle interface{}) protocol.Protocol {
			startOrder = append(startOrder, name)
			return &stubProtocol{name: name, order: &stopOrder, mu: &mu, running: make(chan struct{})}
		}
	}
	reg.Register(makeFactory("handshake"))
	reg.Register(makeFactory("ping"))
	reg.Register(makeFactory("app"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := &channel.Channel{}
	reg.OnChannelUp(ctx, ch, nil)
	require.Equal(t, []string{"handshake", "ping", "app"}, startOrder)
	reg.OnChannelDown(ch)

	require.Equal(t, []string{"app", "ping", "handshake"}, stopOrder)
}
