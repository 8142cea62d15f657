package p2p

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// introspectionServer streams get_info() snapshots (one on connect, then
// one every five seconds) to the external dashboard/TUI consumer named
// in spec §6. It does not stream channel-up/channel-down events.
type introspectionServer struct {
	p2p *P2P

	httpSrv  *http.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newIntrospectionServer(p *P2P, addr string) *introspectionServer {
	s := &introspectionServer{
		p2p:   p,
		conns: make(map[*websocket.Conn]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *introspectionServer) start() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return err
	}
	go s.httpSrv.Serve(ln)
	go s.broadcastSnapshots()
	return nil
}

func (s *introspectionServer) stop() {
	s.httpSrv.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
}

func (s *introspectionServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		plog.Warnf("introspection: upgrade failed: %v", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	conn.WriteJSON(s.p2p.GetInfo())

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *introspectionServer) broadcastSnapshots() {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for range t.C {
		snapshot := s.p2p.GetInfo()
		s.mu.Lock()
		for c := range s.conns {
			if err := c.WriteJSON(snapshot); err != nil {
				c.Close()
				delete(s.conns, c)
			}
		}
		s.mu.Unlock()
	}
}
