// Package transport implements the Transport Abstraction (C2): a uniform
// dial/listen interface over plain TCP, TCP+TLS, Unix sockets, Tor, I2P,
// Nym, and SOCKS5-routed variants, dispatched by tagged scheme rather than
// by inheritance (spec §9 "Dynamic dispatch of transports").
package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
)

// Stream is a bidirectional byte pipe with independently shutdownable
// halves, per spec §4.2.
type Stream interface {
	net.Conn
	// CloseRead shuts down the read half only.
	CloseRead() error
	// CloseWrite shuts down the write half only.
	CloseWrite() error
	// PeerAddress returns the parsed Address of the remote end.
	PeerAddress() addr.Address
}

// Listener accepts inbound Streams for one bound Address.
type Listener interface {
	Accept() (Stream, addr.Address, error)
	Close() error
	// ListenAddress is the Address this listener is bound to.
	ListenAddress() addr.Address
}

// Transport is the tagged-variant contract every scheme implements.
// New schemes are added by extending this variant set, not by adding a
// layer of inheritance (spec §9).
type Transport interface {
	// Dial connects to target, returning a Stream once established or a
	// retriable *Error on failure.
	Dial(ctx context.Context, target addr.Address, timeout time.Duration) (Stream, error)
	// Listen binds a Listener at local. Bind failures are fatal for the
	// caller's session; per-accept failures surfaced later are not.
	Listen(local addr.Address) (Listener, error)
}

// Config carries the Settings (§6) this package needs: proxy endpoints
// and the transport allow-list/mixing policy.
type Config struct {
	// AllowedTransports whitelists dial schemes.
	AllowedTransports map[addr.Scheme]bool
	// MixedTransports lists, per carrier scheme, the target schemes it
	// may reach (e.g. a plain TCP peer over Tor). Registry.Dial always
	// dials a target with its own scheme's transport, so no dial ever
	// crosses schemes and this map has no effect on Dial.
	MixedTransports map[addr.Scheme]map[addr.Scheme]bool

	TorSocks5Proxy addr.Address
	NymSocks5Proxy addr.Address
	I2PSocks5Proxy addr.Address

	// TorControlAddr is the Tor control-port address used to manage
	// hidden-service lifetime for tor/tor+tls listeners.
	TorControlAddr string

	// TLSCertPath/TLSKeyPath locate (or will receive) this node's
	// self-signed Ed25519 TLS identity (spec §4.2).
	TLSCertPath string
	TLSKeyPath  string
}

// Registry dispatches to the Transport implementation for each scheme,
// honoring Config's allow-list.
type Registry struct {
	cfg      Config
	byScheme map[addr.Scheme]Transport
}

// NewRegistry builds the full set of built-in transports from cfg.
func NewRegistry(cfg Config) (*Registry, error) {
	r := &Registry{cfg: cfg, byScheme: make(map[addr.Scheme]Transport)}

	tcpT := newTCPTransport()
	r.byScheme[addr.SchemeTCP] = tcpT

	tlsT, err := newTLSTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: tls setup: %w", err)
	}
	r.byScheme[addr.SchemeTCPTLS] = tlsT

	r.byScheme[addr.SchemeUnix] = newUnixTransport()

	torT := newTorTransport(cfg, false)
	torTLST := newTorTransport(cfg, true)
	r.byScheme[addr.SchemeTor] = torT
	r.byScheme[addr.SchemeTorTLS] = torTLST

	r.byScheme[addr.SchemeSocks5] = newSocks5Transport(cfg.proxyFor(addr.SchemeSocks5), false)

	socks5TLS := newSocks5Transport(cfg.proxyFor(addr.SchemeSocks5TLS), true)
	socks5TLS.tls = tlsT
	r.byScheme[addr.SchemeSocks5TLS] = socks5TLS

	r.byScheme[addr.SchemeI2P] = newSocks5Transport(cfg.I2PSocks5Proxy, false)
	r.byScheme[addr.SchemeNym] = newSocks5Transport(cfg.NymSocks5Proxy, false)

	nymTLS := newSocks5Transport(cfg.NymSocks5Proxy, true)
	nymTLS.tls = tlsT
	r.byScheme[addr.SchemeNymTLS] = nymTLS

	return r, nil
}

func (c Config) proxyFor(s addr.Scheme) addr.Address {
	switch s {
	case addr.SchemeSocks5, addr.SchemeSocks5TLS:
		return c.Socks5ProxyDefault()
	default:
		return addr.Address{}
	}
}

// Socks5ProxyDefault returns the configured proxy for a bare socks5(+tls)
// dial, which is the Tor proxy unless overridden — darkfi routes
// anonymized plain socks5 traffic through the same local Tor daemon by
// convention.
func (c Config) Socks5ProxyDefault() addr.Address {
	return c.TorSocks5Proxy
}

// allowed reports whether dialScheme may be used at all, and — if target
// differs from dialScheme — whether mixing is permitted.
func (r *Registry) allowed(dialScheme, targetScheme addr.Scheme) bool {
	if len(r.cfg.AllowedTransports) > 0 && !r.cfg.AllowedTransports[dialScheme] {
		return false
	}
	if dialScheme == targetScheme {
		return true
	}
	mixes, ok := r.cfg.MixedTransports[dialScheme]
	return ok && mixes[targetScheme]
}

// Dial dials target directly using its own scheme's transport.
func (r *Registry) Dial(ctx context.Context, target addr.Address, timeout time.Duration) (Stream, error) {
	t, ok := r.byScheme[target.Scheme()]
	if !ok {
		return nil, dialErr(fmt.Errorf("no transport registered for scheme %q", target.Scheme()))
	}
	if !r.allowed(target.Scheme(), target.Scheme()) {
		return nil, dialErr(fmt.Errorf("scheme %q is not in allowed_transports", target.Scheme()))
	}
	return t.Dial(ctx, target, timeout)
}

// Listen binds local using its scheme's transport.
func (r *Registry) Listen(local addr.Address) (Listener, error) {
	t, ok := r.byScheme[local.Scheme()]
	if !ok {
		return nil, listenErr(fmt.Errorf("no transport registered for scheme %q", local.Scheme()))
	}
	return t.Listen(local)
}
