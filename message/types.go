package message

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/darkrenaissance/darkfi-sub003/addr"
)

// Built-in command names (spec §6: backward-compatibility boundary).
const (
	CmdVersion = "version"
	CmdVerack  = "verack"
	CmdPing    = "ping"
	CmdPong    = "pong"
	CmdGetAddr = "get_addr"
	CmdAddr    = "addr"
)

const maxListeningAddrs = 64
const maxAddrEntries = 1024
const maxUserAgentLen = 256

func writeAddress(w io.Writer, a addr.Address) error {
	if err := WriteString(w, string(a.Scheme())); err != nil {
		return err
	}
	if err := WriteString(w, a.Host()); err != nil {
		return err
	}
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], a.Port())
	_, err := w.Write(portBuf[:])
	return err
}

func readAddress(r *bufio.Reader) (addr.Address, error) {
	scheme, err := ReadString(r, 16)
	if err != nil {
		return addr.Address{}, err
	}
	host, err := ReadString(r, 255)
	if err != nil {
		return addr.Address{}, err
	}
	var portBuf [2]byte
	if _, err := io.ReadFull(r, portBuf[:]); err != nil {
		return addr.Address{}, err
	}
	port := binary.BigEndian.Uint16(portBuf[:])
	if addr.Scheme(scheme) == addr.SchemeUnix {
		port = 0
		return addr.New(addr.SchemeUnix, host, 0)
	}
	return addr.New(addr.Scheme(scheme), host, port)
}

// Version is the mandatory handshake opener (spec §4.8).
type Version struct {
	ProtocolVersion uint32
	NodeID          string // empty means "not supplied" (node_id_opt)
	UserAgent       string
	Services        uint64
	Timestamp       int64
	Nonce           uint64
	ListeningAddrs  []addr.Address
}

func (v *Version) Command() string { return CmdVersion }

func (v *Version) Encode(w io.Writer) error {
	if err := WriteUvarint(w, uint64(v.ProtocolVersion)); err != nil {
		return err
	}
	if err := WriteString(w, v.NodeID); err != nil {
		return err
	}
	if err := WriteString(w, v.UserAgent); err != nil {
		return err
	}
	if err := WriteUvarint(w, v.Services); err != nil {
		return err
	}
	if err := WriteVarint(w, v.Timestamp); err != nil {
		return err
	}
	if err := WriteUvarint(w, v.Nonce); err != nil {
		return err
	}
	if err := WriteUvarint(w, uint64(len(v.ListeningAddrs))); err != nil {
		return err
	}
	for _, a := range v.ListeningAddrs {
		if err := writeAddress(w, a); err != nil {
			return err
		}
	}
	return nil
}

func (v *Version) Decode(r *bufio.Reader) error {
	pv, err := ReadUvarint(r)
	if err != nil {
		return err
	}
	v.ProtocolVersion = uint32(pv)

	if v.NodeID, err = ReadString(r, 128); err != nil {
		return err
	}
	if v.UserAgent, err = ReadString(r, maxUserAgentLen); err != nil {
		return err
	}
	if v.Services, err = ReadUvarint(r); err != nil {
		return err
	}
	if v.Timestamp, err = ReadVarint(r); err != nil {
		return err
	}
	if v.Nonce, err = ReadUvarint(r); err != nil {
		return err
	}

	n, err := ReadUvarint(r)
	if err != nil {
		return err
	}
	if n > maxListeningAddrs {
		n = maxListeningAddrs
	}
	v.ListeningAddrs = make([]addr.Address, 0, n)
	for i := uint64(0); i < n; i++ {
		a, err := readAddress(r)
		if err != nil {
			return err
		}
		v.ListeningAddrs = append(v.ListeningAddrs, a)
	}
	return nil
}

// Verack acknowledges a received Version (spec §4.8).
type Verack struct{}

func (v *Verack) Command() string              { return CmdVerack }
func (v *Verack) Encode(w io.Writer) error     { return nil }
func (v *Verack) Decode(r *bufio.Reader) error { return nil }

// Ping is the periodic heartbeat probe (spec §4.8).
type Ping struct {
	Cookie uint64
}

func (p *Ping) Command() string { return CmdPing }
func (p *Ping) Encode(w io.Writer) error {
	return WriteUvarint(w, p.Cookie)
}
func (p *Ping) Decode(r *bufio.Reader) error {
	v, err := ReadUvarint(r)
	p.Cookie = v
	return err
}

// Pong answers a Ping with the same cookie.
type Pong struct {
	Cookie uint64
}

func (p *Pong) Command() string { return CmdPong }
func (p *Pong) Encode(w io.Writer) error {
	return WriteUvarint(w, p.Cookie)
}
func (p *Pong) Decode(r *bufio.Reader) error {
	v, err := ReadUvarint(r)
	p.Cookie = v
	return err
}

// GetAddr requests up to Max addresses restricted to Transports (spec
// §4.8's address exchange; empty Transports means no filter).
type GetAddr struct {
	Max        uint32
	Transports []string
}

func (g *GetAddr) Command() string { return CmdGetAddr }

func (g *GetAddr) Encode(w io.Writer) error {
	if err := WriteUvarint(w, uint64(g.Max)); err != nil {
		return err
	}
	if err := WriteUvarint(w, uint64(len(g.Transports))); err != nil {
		return err
	}
	for _, t := range g.Transports {
		if err := WriteString(w, t); err != nil {
			return err
		}
	}
	return nil
}

func (g *GetAddr) Decode(r *bufio.Reader) error {
	max, err := ReadUvarint(r)
	if err != nil {
		return err
	}
	g.Max = uint32(max)

	n, err := ReadUvarint(r)
	if err != nil {
		return err
	}
	if n > 32 {
		n = 32
	}
	g.Transports = make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		t, err := ReadString(r, 16)
		if err != nil {
			return err
		}
		g.Transports = append(g.Transports, t)
	}
	return nil
}

// Addr carries the entries returned in response to GetAddr.
type Addr struct {
	Entries []addr.Address
}

func (a *Addr) Command() string { return CmdAddr }

func (a *Addr) Encode(w io.Writer) error {
	if err := WriteUvarint(w, uint64(len(a.Entries))); err != nil {
		return err
	}
	for _, e := range a.Entries {
		if err := writeAddress(w, e); err != nil {
			return err
		}
	}
	return nil
}

func (a *Addr) Decode(r *bufio.Reader) error {
	n, err := ReadUvarint(r)
	if err != nil {
		return err
	}
	if n > maxAddrEntries {
		n = maxAddrEntries
	}
	a.Entries = make([]addr.Address, 0, n)
	for i := uint64(0); i < n; i++ {
		e, err := readAddress(r)
		if err != nil {
			return err
		}
		a.Entries = append(a.Entries, e)
	}
	return nil
}

func init() {
	Register(CmdVersion, func() Message { return &Version{} })
	Register(CmdVerack, func() Message { return &Verack{} })
	Register(CmdPing, func() Message { return &Ping{} })
	Register(CmdPong, func() Message { return &Pong{} })
	Register(CmdGetAddr, func() Message { return &GetAddr{} })
	Register(CmdAddr, func() Message { return &Addr{} })
}
