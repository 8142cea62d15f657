package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	lndtor "github.com/lightningnetwork/lnd/tor"

	"github.com/darkrenaissance/darkfi-sub003/addr"
)

// torTransport routes dials through a managed Tor SOCKS5 port and
// publishes a hidden-service listener via the Tor control port, using
// github.com/lightningnetwork/lnd/tor the same way server.go's
// brontide-fronted listeners manage their network identity (spec §4.2).
// withTLS additionally wraps the resulting stream in the tcp+tls
// transport's mutual-auth handshake.
type torTransport struct {
	cfg     Config
	withTLS bool
	socks   *socks5Transport
	tls     *tlsTransport
}

func newTorTransport(cfg Config, withTLS bool) *torTransport {
	t := &torTransport{
		cfg:     cfg,
		withTLS: withTLS,
		socks:   newSocks5Transport(cfg.TorSocks5Proxy, false),
	}
	if withTLS {
		tlsT, err := newTLSTransport(cfg)
		if err == nil {
			t.tls = tlsT
		}
	}
	return t
}

func (t *torTransport) Dial(ctx context.Context, target addr.Address, timeout time.Duration) (Stream, error) {
	stream, err := t.socks.dialThroughProxy(ctx, target, timeout)
	if err != nil {
		return nil, err
	}
	if !t.withTLS {
		return stream, nil
	}

	// Re-handshake TLS on top of the proxied stream, mirroring how the
	// bare tcp+tls transport authenticates, but without a fresh TCP dial.
	return wrapTLSOverStream(stream, t.tls, target)
}

// torController lazily starts a control-port session the first time a
// hidden service needs to be published.
func (t *torTransport) controller() (*lndtor.Controller, error) {
	if t.cfg.TorControlAddr == "" {
		return nil, fmt.Errorf("transport: tor_control_addr not configured")
	}
	c := lndtor.NewController(t.cfg.TorControlAddr, "", "")
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("transport: tor controller start: %w", err)
	}
	return c, nil
}

func (t *torTransport) Listen(local addr.Address) (Listener, error) {
	ctrl, err := t.controller()
	if err != nil {
		return nil, listenErr(err)
	}

	// The hidden-service virtual port is the advertised port; Tor routes
	// it to a locally bound plain TCP listener which we create first.
	plainLocal, err := addr.New(addr.SchemeTCP, "127.0.0.1", local.Port())
	if err != nil {
		ctrl.Stop()
		return nil, listenErr(err)
	}
	innerLn, err := (newTCPTransport()).Listen(plainLocal)
	if err != nil {
		ctrl.Stop()
		return nil, listenErr(err)
	}

	onionAddr, err := ctrl.AddOnionV3(int(local.Port()), []int{int(local.Port())})
	if err != nil {
		innerLn.Close()
		ctrl.Stop()
		return nil, listenErr(fmt.Errorf("tor: publish hidden service: %w", err))
	}

	onionAddress, err := addr.New(local.Scheme(), onionAddr, local.Port())
	if err != nil {
		innerLn.Close()
		ctrl.Stop()
		return nil, listenErr(err)
	}

	return &torListener{inner: innerLn, ctrl: ctrl, local: onionAddress, withTLS: t.withTLS, tls: t.tls}, nil
}

type torListener struct {
	inner   Listener
	ctrl    *lndtor.Controller
	local   addr.Address
	withTLS bool
	tls     *tlsTransport
}

func (l *torListener) Accept() (Stream, addr.Address, error) {
	stream, _, err := l.inner.Accept()
	if err != nil {
		return nil, addr.Address{}, err
	}
	peer := l.local
	if !l.withTLS {
		return stream, peer, nil
	}
	if l.tls == nil {
		stream.Close()
		return nil, addr.Address{}, acceptErr(fmt.Errorf("tls transport unavailable"))
	}
	tlsConn := tls.Server(stream, l.tls.tlsConfig(nil))
	if err := tlsConn.Handshake(); err != nil {
		stream.Close()
		return nil, addr.Address{}, acceptErr(fmt.Errorf("tls handshake: %w", err))
	}
	return wrapTLSStream(tlsConn, stream, peer), peer, nil
}

func (l *torListener) Close() error {
	err := l.inner.Close()
	if l.ctrl != nil {
		l.ctrl.Stop()
	}
	return err
}

func (l *torListener) ListenAddress() addr.Address { return l.local }

// wrapTLSOverStream runs a TLS client handshake over an already-dialed
// Stream (used when Tor/SOCKS5 has already established the underlying
// pipe and TLS is layered on top rather than dialed directly).
func wrapTLSOverStream(s Stream, t *tlsTransport, peer addr.Address) (Stream, error) {
	if t == nil {
		return nil, dialErr(fmt.Errorf("tls transport unavailable"))
	}

	tlsConn := tls.Client(s, t.tlsConfig(nil))
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		s.Close()
		return nil, dialErr(fmt.Errorf("tls handshake over proxied stream: %w", err))
	}
	return wrapTLSStream(tlsConn, s, peer), nil
}
