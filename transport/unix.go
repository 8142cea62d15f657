package transport

import (
	"context"
	"net"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
)

// unixTransport is used for loopback and testing (spec §4.2).
type unixTransport struct{}

func newUnixTransport() *unixTransport { return &unixTransport{} }

func (t *unixTransport) Dial(ctx context.Context, target addr.Address, timeout time.Duration) (Stream, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", target.Host())
	if err != nil {
		return nil, dialErr(err)
	}
	return wrapStream(conn, target), nil
}

func (t *unixTransport) Listen(local addr.Address) (Listener, error) {
	ln, err := net.Listen("unix", local.Host())
	if err != nil {
		return nil, listenErr(err)
	}
	return &unixListener{ln: ln, local: local}, nil
}

type unixListener struct {
	ln    net.Listener
	local addr.Address
}

func (l *unixListener) Accept() (Stream, addr.Address, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, addr.Address{}, acceptErr(err)
	}
	// A Unix peer carries no meaningful remote address of its own; it is
	// identified by the listening socket's path.
	peer, _ := addr.New(addr.SchemeUnix, l.local.Host(), 0)
	return wrapStream(conn, peer), peer, nil
}

func (l *unixListener) Close() error                { return l.ln.Close() }
func (l *unixListener) ListenAddress() addr.Address { return l.local }
