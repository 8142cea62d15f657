package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/log"
)

// trptLog is the package-wide subsystem logger, following the teacher's
// peerLog/srvrLog convention (SPEC_FULL.md §3.1). UseLogger lets the
// embedding daemon redirect it to a shared backend.
var trptLog = log.Disabled()

// UseLogger swaps the package-level logger.
func UseLogger(l btclog.Logger) {
	trptLog = l
}

type tcpTransport struct {
	keepAlive time.Duration
}

func newTCPTransport() *tcpTransport {
	return &tcpTransport{keepAlive: 30 * time.Second}
}

func (t *tcpTransport) Dial(ctx context.Context, target addr.Address, timeout time.Duration) (Stream, error) {
	d := net.Dialer{Timeout: timeout, KeepAlive: t.keepAlive}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(target.Host(), strconv.Itoa(int(target.Port()))))
	if err != nil {
		trptLog.Debugf("tcp dial %v failed: %v", target, err)
		return nil, dialErr(err)
	}
	return wrapStream(conn, target), nil
}

func (t *tcpTransport) Listen(local addr.Address) (Listener, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp",
		net.JoinHostPort(local.Host(), strconv.Itoa(int(local.Port()))))
	if err != nil {
		return nil, listenErr(err)
	}
	return &tcpListener{ln: ln, local: local}, nil
}

type tcpListener struct {
	ln    net.Listener
	local addr.Address
}

func (l *tcpListener) Accept() (Stream, addr.Address, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, addr.Address{}, acceptErr(err)
	}
	peer, err := peerAddrFromConn(conn, addr.SchemeTCP)
	if err != nil {
		conn.Close()
		return nil, addr.Address{}, acceptErr(err)
	}
	return wrapStream(conn, peer), peer, nil
}

func (l *tcpListener) Close() error                { return l.ln.Close() }
func (l *tcpListener) ListenAddress() addr.Address { return l.local }

func peerAddrFromConn(conn net.Conn, scheme addr.Scheme) (addr.Address, error) {
	host, portStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return addr.Address{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return addr.Address{}, fmt.Errorf("parse remote port: %w", err)
	}
	return addr.New(scheme, host, uint16(port))
}
