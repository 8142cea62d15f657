package transport

import (
	"net"

	"github.com/darkrenaissance/darkfi-sub003/addr"
)

// streamWrapper adapts any net.Conn (optionally TLS-wrapped) to the Stream
// interface, forwarding half-close to the underlying raw connection since
// tls.Conn itself does not implement CloseRead/CloseWrite.
type streamWrapper struct {
	net.Conn
	raw  net.Conn
	peer addr.Address
}

func wrapStream(conn net.Conn, peer addr.Address) Stream {
	return &streamWrapper{Conn: conn, raw: conn, peer: peer}
}

func wrapTLSStream(tlsConn net.Conn, raw net.Conn, peer addr.Address) Stream {
	return &streamWrapper{Conn: tlsConn, raw: raw, peer: peer}
}

func (s *streamWrapper) CloseRead() error {
	if cr, ok := s.raw.(interface{ CloseRead() error }); ok {
		return cr.CloseRead()
	}
	return s.raw.Close()
}

func (s *streamWrapper) CloseWrite() error {
	if cw, ok := s.raw.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return s.raw.Close()
}

func (s *streamWrapper) PeerAddress() addr.Address {
	return s.peer
}
