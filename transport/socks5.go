package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	"github.com/darkrenaissance/darkfi-sub003/addr"
)

// socks5Transport dials targets through an explicit SOCKS5 proxy
// endpoint. It backs i2p, nym, socks5(+tls), and is composed into the
// Tor transport's dial path (spec §4.2: "Dial through a configured
// SOCKS5 proxy to either raw host or another scheme's endpoint").
type socks5Transport struct {
	proxyAddr addr.Address
	withTLS   bool
	tls       *tlsTransport
}

func newSocks5Transport(proxyAddr addr.Address, withTLS bool) *socks5Transport {
	return &socks5Transport{proxyAddr: proxyAddr, withTLS: withTLS}
}

// dialThroughProxy performs the raw SOCKS5 CONNECT, returning a plain
// Stream with no TLS layered on top (callers that need TLS call
// wrapTLSOverStream themselves, as the Tor transport does).
func (t *socks5Transport) dialThroughProxy(ctx context.Context, target addr.Address, timeout time.Duration) (Stream, error) {
	if t.proxyAddr.Host() == "" {
		return nil, dialErr(fmt.Errorf("no socks5 proxy configured for scheme %q", target.Scheme()))
	}

	proxyHostPort := net.JoinHostPort(t.proxyAddr.Host(), strconv.Itoa(int(t.proxyAddr.Port())))
	dialer, err := proxy.SOCKS5("tcp", proxyHostPort, nil, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, dialErr(fmt.Errorf("socks5 dialer: %w", err))
	}

	targetHostPort := net.JoinHostPort(target.Host(), strconv.Itoa(int(target.Port())))

	type ctxDialer interface {
		DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	}

	var conn net.Conn
	if cd, ok := dialer.(ctxDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", targetHostPort)
	} else {
		conn, err = dialer.Dial("tcp", targetHostPort)
	}
	if err != nil {
		return nil, dialErr(fmt.Errorf("socks5 connect to %v via %v: %w", target, t.proxyAddr, err))
	}

	return wrapStream(conn, target), nil
}

func (t *socks5Transport) Dial(ctx context.Context, target addr.Address, timeout time.Duration) (Stream, error) {
	stream, err := t.dialThroughProxy(ctx, target, timeout)
	if err != nil {
		return nil, err
	}
	if !t.withTLS {
		return stream, nil
	}
	if t.tls == nil {
		stream.Close()
		return nil, dialErr(fmt.Errorf("tls not initialized for socks5+tls transport"))
	}
	return wrapTLSOverStream(stream, t.tls, target)
}

// Listen is not supported for proxy-only schemes: a node cannot bind an
// i2p/nym/socks5 listener without a dedicated hidden-service mechanism,
// which for i2p/nym is out of scope for this core (spec §1 "content-level
// anonymity is delegated to an external anonymizer").
func (t *socks5Transport) Listen(local addr.Address) (Listener, error) {
	return nil, listenErr(fmt.Errorf("listen is not supported for scheme %q", local.Scheme()))
}
