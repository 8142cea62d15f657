// Package addr implements the Addr Model (C3): a parsed, immutable peer
// address carrying scheme, host, port, and transport class, per spec §3.
package addr

import (
	"fmt"
	"strconv"
	"strings"
)

// Scheme identifies the wire/transport scheme of an Address. Each scheme
// uniquely determines a TransportClass (spec §3 invariant).
type Scheme string

const (
	SchemeTCP       Scheme = "tcp"
	SchemeTCPTLS    Scheme = "tcp+tls"
	SchemeUnix      Scheme = "unix"
	SchemeTor       Scheme = "tor"
	SchemeTorTLS    Scheme = "tor+tls"
	SchemeI2P       Scheme = "i2p"
	SchemeSocks5    Scheme = "socks5"
	SchemeSocks5TLS Scheme = "socks5+tls"
	SchemeNym       Scheme = "nym"
	SchemeNymTLS    Scheme = "nym+tls"
)

// TransportClass groups schemes that share a dial/listen implementation.
type TransportClass int

const (
	ClassUnknown TransportClass = iota
	ClassTCP
	ClassUnixSocket
	ClassTor
	ClassProxied // i2p, nym, socks5(+tls): dialed via an explicit SOCKS5 proxy
)

// allSchemes is the exhaustive scheme table; it is the single place that
// maps a scheme to its transport class and whether it carries a port.
var allSchemes = map[Scheme]struct {
	class   TransportClass
	tls     bool
	hasPort bool
}{
	SchemeTCP:       {ClassTCP, false, true},
	SchemeTCPTLS:    {ClassTCP, true, true},
	SchemeUnix:      {ClassUnixSocket, false, false},
	SchemeTor:       {ClassTor, false, true},
	SchemeTorTLS:    {ClassTor, true, true},
	SchemeI2P:       {ClassProxied, false, true},
	SchemeSocks5:    {ClassProxied, false, true},
	SchemeSocks5TLS: {ClassProxied, true, true},
	SchemeNym:       {ClassProxied, false, true},
	SchemeNymTLS:    {ClassProxied, true, true},
}

// Class returns s's transport class, or ClassUnknown if s is not a
// recognized scheme.
func (s Scheme) Class() TransportClass {
	return allSchemes[s].class
}

// TLS reports whether s wraps its connection in TLS.
func (s Scheme) TLS() bool {
	return allSchemes[s].tls
}

// Valid reports whether s is a recognized scheme.
func (s Scheme) Valid() bool {
	_, ok := allSchemes[s]
	return ok
}

// Address is an immutable (scheme, host, port) tuple. Zero value is not a
// valid Address; construct via Parse or New.
type Address struct {
	scheme Scheme
	host   string
	port   uint16
}

// New constructs an Address from already-validated parts.
func New(scheme Scheme, host string, port uint16) (Address, error) {
	info, ok := allSchemes[scheme]
	if !ok {
		return Address{}, fmt.Errorf("addr: unknown scheme %q", scheme)
	}
	if host == "" {
		return Address{}, fmt.Errorf("addr: empty host")
	}
	if !info.hasPort {
		port = 0
	} else if port == 0 {
		return Address{}, fmt.Errorf("addr: scheme %q requires a nonzero port", scheme)
	}
	return Address{scheme: scheme, host: host, port: port}, nil
}

// Parse builds an Address from a "scheme://host:port" string (or
// "unix://path" for the unix scheme, which carries no port).
func Parse(s string) (Address, error) {
	parts := strings.SplitN(s, "://", 2)
	if len(parts) != 2 {
		return Address{}, fmt.Errorf("addr: malformed address %q", s)
	}
	scheme := Scheme(parts[0])
	info, ok := allSchemes[scheme]
	if !ok {
		return Address{}, fmt.Errorf("addr: unknown scheme %q", scheme)
	}

	rest := parts[1]
	if !info.hasPort {
		return New(scheme, rest, 0)
	}

	host, portStr, err := splitHostPort(rest)
	if err != nil {
		return Address{}, fmt.Errorf("addr: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("addr: invalid port in %q: %w", s, err)
	}
	return New(scheme, host, uint16(port))
}

// splitHostPort splits "host:port" from the right, tolerating bracketed
// IPv6 literals ("[::1]:1234").
func splitHostPort(s string) (string, string, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return "", "", fmt.Errorf("missing port in %q", s)
	}
	host := s[:i]
	port := s[i+1:]
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return host, port, nil
}

func (a Address) Scheme() Scheme        { return a.scheme }
func (a Address) Host() string          { return a.host }
func (a Address) Port() uint16          { return a.port }
func (a Address) Class() TransportClass { return a.scheme.Class() }

// String renders the canonical "scheme://host:port" form.
func (a Address) String() string {
	if !allSchemes[a.scheme].hasPort {
		return fmt.Sprintf("%s://%s", a.scheme, a.host)
	}
	return fmt.Sprintf("%s://%s:%d", a.scheme, a.host, a.port)
}

// Equal reports whether a and b denote the same address.
func (a Address) Equal(b Address) bool {
	return a.scheme == b.scheme && a.host == b.host && a.port == b.port
}
