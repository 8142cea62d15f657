// Package handshake implements the mandatory Version/Verack handshake
// and the built-in address-exchange and heartbeat protocols (C9).
package handshake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/channel"
	"github.com/darkrenaissance/darkfi-sub003/hostlist"
	"github.com/darkrenaissance/darkfi-sub003/log"
	"github.com/darkrenaissance/darkfi-sub003/message"

	"github.com/btcsuite/btclog"
)

var hlog = log.Disabled()

// UseLogger redirects the package-level subsystem logger.
func UseLogger(l btclog.Logger) { hlog = l }

// ErrReflexiveConnection is returned when the peer's Version carries a
// nonce this node itself sent — i.e. we dialed ourselves (spec §4.8
// step 3).
var ErrReflexiveConnection = errors.New("handshake: reflexive connection detected")

// ErrIncompatibleVersion is returned when the peer's protocol_version
// does not match ours (spec §4.8 step 2).
var ErrIncompatibleVersion = errors.New("handshake: incompatible protocol version")

// Config carries the node-identifying fields sent in every Version
// message (spec §4.8 step 1).
type Config struct {
	ProtocolVersion  uint32
	NodeID           string
	UserAgent        string
	Services         uint64
	ListeningAddrs   []addr.Address
	HandshakeTimeout time.Duration
	NonceFunc        func() uint64
}

// Perform runs the mandatory Version/Verack exchange over ch, which
// must already have been Start()-ed (so its write goroutine is live)
// but must NOT yet have had StartReceiveLoop called (spec §4.8: this
// exchange happens before any other protocol is notified of the
// channel). On success it returns the peer's Version and registers the
// peer's listening addresses into Grey (spec §4.8 step 5).
func Perform(parent context.Context, ch *channel.Channel, cfg Config, nonces *NonceTracker, store *hostlist.Store) (*message.Version, error) {
	ctx := parent
	var cancel context.CancelFunc
	if cfg.HandshakeTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, cfg.HandshakeTimeout)
		defer cancel()
	}

	nonce := cfg.NonceFunc()
	nonces.Remember(nonce)

	ours := &message.Version{
		ProtocolVersion: cfg.ProtocolVersion,
		NodeID:          cfg.NodeID,
		UserAgent:       cfg.UserAgent,
		Services:        cfg.Services,
		Timestamp:       time.Now().Unix(),
		Nonce:           nonce,
		ListeningAddrs:  cfg.ListeningAddrs,
	}
	if err := ch.Send(ours); err != nil {
		return nil, fmt.Errorf("handshake: send version: %w", err)
	}

	msg, err := ch.ReadOne(ctx)
	if err != nil {
		return nil, fmt.Errorf("handshake: read version: %w", err)
	}
	peerVersion, ok := msg.(*message.Version)
	if !ok {
		return nil, fmt.Errorf("handshake: first message must be version, got %q", msg.Command())
	}
	if peerVersion.ProtocolVersion != cfg.ProtocolVersion {
		return nil, ErrIncompatibleVersion
	}
	if nonces.Seen(peerVersion.Nonce) {
		return nil, ErrReflexiveConnection
	}

	if err := ch.Send(&message.Verack{}); err != nil {
		return nil, fmt.Errorf("handshake: send verack: %w", err)
	}
	ack, err := ch.ReadOne(ctx)
	if err != nil {
		return nil, fmt.Errorf("handshake: read verack: %w", err)
	}
	if ack.Command() != message.CmdVerack {
		return nil, fmt.Errorf("handshake: expected verack, got %q", ack.Command())
	}

	for _, a := range peerVersion.ListeningAddrs {
		store.Register(a, hostlist.TierGrey)
	}

	hlog.Debugf("handshake with %v complete (protocol_version=%d, user_agent=%q)",
		ch.PeerAddress(), peerVersion.ProtocolVersion, peerVersion.UserAgent)
	return peerVersion, nil
}
