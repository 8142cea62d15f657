package session

import (
	"context"
	"sync"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/channel"
	"github.com/darkrenaissance/darkfi-sub003/handshake"
	"github.com/darkrenaissance/darkfi-sub003/transport"

	"golang.org/x/sync/semaphore"
)

// InboundConfig configures the Inbound session (spec §4.5, §6
// Settings: "inbound_connections", "inbound").
type InboundConfig struct {
	ListenAddrs      []addr.Address
	MaxConnections   int64
	HandshakeTimeout time.Duration
}

// Inbound accepts connections on every configured listen address,
// enforcing a shared inbound connection cap (spec §4.5: "accept loop
// per listen address ... respects inbound_connections").
type Inbound struct {
	deps Deps
	cfg  InboundConfig

	sem *semaphore.Weighted

	listeners []transport.Listener
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// NewInbound constructs an Inbound session.
func NewInbound(deps Deps, cfg InboundConfig) *Inbound {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 128
	}
	return &Inbound{
		deps: deps,
		cfg:  cfg,
		sem:  semaphore.NewWeighted(cfg.MaxConnections),
	}
}

// Start opens a listener per configured address and spawns its accept
// loop (grounded on server.go's listener()/WatchNewAddress pattern:
// one goroutine per bound address, forwarding each accepted conn into
// shared bookkeeping).
func (in *Inbound) Start(ctx context.Context) error {
	ctx, in.cancel = context.WithCancel(ctx)

	for _, a := range in.cfg.ListenAddrs {
		l, err := in.deps.Transport.Listen(a)
		if err != nil {
			in.Stop()
			return err
		}
		in.listeners = append(in.listeners, l)

		in.wg.Add(1)
		go in.acceptLoop(ctx, l)
	}
	return nil
}

// Stop closes every listener and waits for accept loops to unwind.
func (in *Inbound) Stop() error {
	if in.cancel != nil {
		in.cancel()
	}
	for _, l := range in.listeners {
		l.Close()
	}
	in.wg.Wait()
	return nil
}

func (in *Inbound) acceptLoop(ctx context.Context, l transport.Listener) {
	defer in.wg.Done()

	for {
		stream, peer, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				slog.Warnf("inbound: accept on %v failed: %v", l.ListenAddress(), err)
				return
			}
		}

		if !in.sem.TryAcquire(1) {
			slog.Debugf("inbound: rejecting %v, at capacity", peer)
			stream.Close()
			continue
		}

		go in.handleConn(ctx, stream, peer)
	}
}

func (in *Inbound) handleConn(ctx context.Context, stream transport.Stream, peer addr.Address) {
	defer in.sem.Release(1)

	hctx := ctx
	var cancel context.CancelFunc
	if in.cfg.HandshakeTimeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, in.cfg.HandshakeTimeout)
		defer cancel()
	}

	id := in.deps.NextChannelID()
	ch := channel.New(id, stream, false, in.deps.ChannelConfig)
	ch.Start()

	if _, err := handshake.Perform(hctx, ch, in.deps.HandshakeConfig, in.deps.Nonces, in.deps.Hostlist); err != nil {
		slog.Debugf("inbound: handshake with %v failed: %v", peer, err)
		ch.Stop()
		return
	}

	in.deps.Events.Publish(Event{Kind: EventAccept, Session: "inbound", Address: peer, Time: time.Now()})

	ch.StartReceiveLoop()
	in.deps.OnChannelUp(ctx, ch)

	<-ch.Done()

	in.deps.OnChannelDown(ch)
	in.deps.Events.Publish(Event{Kind: EventDisconnect, Session: "inbound", Address: peer, Time: time.Now()})
}
