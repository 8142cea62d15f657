package p2p

import (
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/hostlist"
	"github.com/darkrenaissance/darkfi-sub003/message"
	"github.com/darkrenaissance/darkfi-sub003/transport"
)

// Settings is the immutable-after-New configuration surface (spec §6).
// The core performs no file/flag parsing itself — the embedding daemon
// constructs this struct however it likes and hands it to New.
type Settings struct {
	// Identity
	NodeID    string
	UserAgent string
	Services  uint64
	Magic     message.Magic // spec §9 Open Question: magic bytes are a Setting

	// Listen/advertise
	Inbound       []addr.Address
	ExternalAddrs []addr.Address

	// Manual/bootstrap
	Peers []addr.Address
	Seeds []addr.Address

	// Slots
	OutboundConnections int
	InboundConnections  int

	// Tier weights for fetch_address
	Weights hostlist.FetchWeights

	// Transports
	AllowedTransports map[addr.Scheme]bool
	MixedTransports   map[addr.Scheme]map[addr.Scheme]bool
	TorSocks5Proxy    addr.Address
	NymSocks5Proxy    addr.Address
	I2PSocks5Proxy    addr.Address
	TorControlAddr    string
	TLSCertPath       string
	TLSKeyPath        string

	// Timing
	OutboundConnectTimeout           time.Duration
	ChannelHandshakeTimeout          time.Duration
	ChannelHeartbeatInterval         time.Duration
	OutboundPeerDiscoveryAttemptTime time.Duration
	OutboundPeerDiscoveryCooloffTime time.Duration

	// Retry
	ManualAttemptLimit int

	// Storage
	HostlistPath  string
	P2PDatastore  string
	HostlistFlush time.Duration

	// Policy
	Localnet  bool
	Blacklist []hostlist.BlacklistRule

	// Introspection
	IntrospectionAddr string // empty disables the websocket introspection server
}

// defaults mirrors spec §5's stated timeout defaults and fills in any
// zero-valued Setting a caller left unset.
func (s Settings) withDefaults() Settings {
	if s.OutboundConnections <= 0 {
		s.OutboundConnections = 8
	}
	if s.InboundConnections <= 0 {
		s.InboundConnections = 128
	}
	if s.OutboundConnectTimeout <= 0 {
		s.OutboundConnectTimeout = 10 * time.Second
	}
	if s.ChannelHandshakeTimeout <= 0 {
		s.ChannelHandshakeTimeout = 4 * time.Second
	}
	if s.ChannelHeartbeatInterval <= 0 {
		s.ChannelHeartbeatInterval = 10 * time.Second
	}
	if s.OutboundPeerDiscoveryAttemptTime <= 0 {
		s.OutboundPeerDiscoveryAttemptTime = 5 * time.Second
	}
	if s.OutboundPeerDiscoveryCooloffTime <= 0 {
		s.OutboundPeerDiscoveryCooloffTime = 30 * time.Second
	}
	if s.HostlistFlush <= 0 {
		s.HostlistFlush = time.Minute
	}
	if s.Magic == (message.Magic{}) {
		s.Magic = message.DefaultMagic
	}
	return s
}

// validate enforces spec §7's ConfigError conditions.
func (s Settings) validate() error {
	if s.OutboundConnections < 0 {
		return &ConfigError{Field: "OutboundConnections", Reason: "must not be negative"}
	}
	if s.InboundConnections < 0 {
		return &ConfigError{Field: "InboundConnections", Reason: "must not be negative"}
	}
	if s.ManualAttemptLimit < 0 {
		return &ConfigError{Field: "ManualAttemptLimit", Reason: "must not be negative (0 means infinite)"}
	}
	for _, a := range s.Peers {
		if len(s.AllowedTransports) > 0 && !s.AllowedTransports[a.Scheme()] {
			return &ConfigError{Field: "Peers", Reason: "address " + a.String() + " uses a scheme not in AllowedTransports"}
		}
	}
	for _, a := range s.Inbound {
		if a.Class() == addr.ClassUnknown {
			return &ConfigError{Field: "Inbound", Reason: "unrecognized scheme in " + a.String()}
		}
	}
	return nil
}

func (s Settings) transportConfig() transport.Config {
	return transport.Config{
		AllowedTransports: s.AllowedTransports,
		MixedTransports:   s.MixedTransports,
		TorSocks5Proxy:    s.TorSocks5Proxy,
		NymSocks5Proxy:    s.NymSocks5Proxy,
		I2PSocks5Proxy:    s.I2PSocks5Proxy,
		TorControlAddr:    s.TorControlAddr,
		TLSCertPath:       s.TLSCertPath,
		TLSKeyPath:        s.TLSKeyPath,
	}
}
