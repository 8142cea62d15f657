// Package p2p implements the P2P Orchestrator (C8): the top-level
// facade holding settings, sessions, the channel registry, and the
// subscriber hub every embedding daemon talks to.
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog"
	go_errors "github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/darkrenaissance/darkfi-sub003/channel"
	"github.com/darkrenaissance/darkfi-sub003/handshake"
	"github.com/darkrenaissance/darkfi-sub003/hostlist"
	"github.com/darkrenaissance/darkfi-sub003/log"
	"github.com/darkrenaissance/darkfi-sub003/message"
	"github.com/darkrenaissance/darkfi-sub003/protocol"
	"github.com/darkrenaissance/darkfi-sub003/session"
	"github.com/darkrenaissance/darkfi-sub003/transport"
)

var plog = log.Disabled()

// UseLogger redirects the package-level subsystem logger.
func UseLogger(l btclog.Logger) { plog = l }

// P2P is the top-level facade (spec §4.7). It owns the hostlist store,
// the transport registry, every live Channel, the protocol registry,
// and the four Session variants, and is the sole entry point an
// embedding daemon uses.
type P2P struct {
	settings Settings

	hostlist  *hostlist.Store
	transport *transport.Registry
	protocols *protocol.Registry
	events    *session.EventBus

	nonces *handshake.NonceTracker

	chMu     sync.RWMutex
	channels map[uint64]*channel.Channel
	nextID   uint64

	seed     *session.Seed
	outbound *session.Outbound
	inbound  *session.Inbound
	manual   []*session.Manual

	metrics    *metrics
	promReg    *prometheus.Registry
	health     *healthcheck.Monitor
	introspect *introspectionServer

	startTime    time.Time
	dialAttempts map[string]*int64
	dialMu       sync.Mutex

	started int32
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates settings, opens the hostlist file, and constructs every
// owned component, but does not yet dial or listen (spec §4.7: "new
// ... validates settings, opens hostlist file").
func New(settings Settings) (*P2P, error) {
	settings = settings.withDefaults()
	if err := settings.validate(); err != nil {
		return nil, err
	}

	transportReg, err := transport.NewRegistry(settings.transportConfig())
	if err != nil {
		return nil, go_errors.Errorf("p2p: transport setup: %v", err)
	}

	store := hostlist.New(hostlist.Config{
		Weights:   settings.Weights,
		Blacklist: settings.Blacklist,
		Localnet:  settings.Localnet,
	})
	if settings.HostlistPath != "" {
		if err := store.Load(settings.HostlistPath); err != nil {
			return nil, go_errors.Errorf("p2p: hostlist load: %v", err)
		}
	}
	for _, seedAddr := range settings.Seeds {
		store.Register(seedAddr, hostlist.TierGrey)
	}

	p := &P2P{
		settings:     settings,
		hostlist:     store,
		transport:    transportReg,
		protocols:    protocol.NewRegistry(),
		events:       session.NewEventBus(),
		nonces:       handshake.NewNonceTracker(),
		channels:     make(map[uint64]*channel.Channel),
		metrics:      newMetrics(""),
		promReg:      prometheus.NewRegistry(),
		dialAttempts: make(map[string]*int64),
	}
	p.metrics.register(p.promReg)
	p.health = newHealthMonitor(p)
	p.registerBuiltinProtocols()

	return p, nil
}

// RegisterProtocol appends a protocol.Factory, to be invoked on every
// future channel-up event. Must be called before Start (spec §4.7:
// "register_protocol(factory): before start").
func (p *P2P) RegisterProtocol(f protocol.Factory) {
	p.protocols.Register(f)
}

func (p *P2P) nextChannelID() uint64 {
	return atomic.AddUint64(&p.nextID, 1)
}

func (p *P2P) channelsSnapshot() []*channel.Channel {
	p.chMu.RLock()
	defer p.chMu.RUnlock()
	out := make([]*channel.Channel, 0, len(p.channels))
	for _, ch := range p.channels {
		out = append(out, ch)
	}
	return out
}

func (p *P2P) onChannelUp(ctx context.Context, ch *channel.Channel) {
	p.chMu.Lock()
	p.channels[ch.ID()] = ch
	p.chMu.Unlock()

	p.protocols.OnChannelUp(ctx, ch, p)
	p.metrics.channelsConnected.WithLabelValues(sessionLabel(ch)).Inc()
	plog.Infof("channel %d: up (%v)", ch.ID(), ch.PeerAddress())
}

func (p *P2P) onChannelDown(ch *channel.Channel) {
	p.chMu.Lock()
	delete(p.channels, ch.ID())
	p.chMu.Unlock()

	p.protocols.OnChannelDown(ch)
	p.metrics.channelsConnected.WithLabelValues(sessionLabel(ch)).Dec()
	plog.Infof("channel %d: down (%v)", ch.ID(), ch.PeerAddress())
}

func sessionLabel(ch *channel.Channel) string {
	if ch.Outbound() {
		return "outbound"
	}
	return "inbound"
}

func (p *P2P) channelConfig() channel.Config {
	return channel.Config{
		Magic:             p.settings.Magic,
		WriteTimeout:      p.settings.OutboundConnectTimeout,
		HeartbeatInterval: p.settings.ChannelHeartbeatInterval,
	}
}

func (p *P2P) handshakeConfig() handshake.Config {
	return handshake.Config{
		ProtocolVersion:  1,
		NodeID:           p.settings.NodeID,
		UserAgent:        p.settings.UserAgent,
		Services:         p.settings.Services,
		ListeningAddrs:   p.settings.ExternalAddrs,
		HandshakeTimeout: p.settings.ChannelHandshakeTimeout,
		NonceFunc:        randomNonce,
	}
}

func randomNonce() uint64 {
	var buf [8]byte
	rand.Read(buf[:])
	return binary.BigEndian.Uint64(buf[:])
}

func (p *P2P) deps() session.Deps {
	return session.Deps{
		Hostlist:        p.hostlist,
		Transport:       p.transport,
		Events:          p.events,
		ChannelConfig:   p.channelConfig(),
		HandshakeConfig: p.handshakeConfig(),
		Nonces:          p.nonces,
		NextChannelID:   p.nextChannelID,
		Channels:        p.channelsSnapshot,
		OnChannelUp:     p.onChannelUp,
		OnChannelDown:   p.onChannelDown,
	}
}

// Start launches the Seed session, Inbound listeners, Manual sessions,
// and Outbound slots, plus the hostlist flusher and metrics task. The
// built-in heartbeat/addr-exchange protocols were already registered by
// New, ahead of any RegisterProtocol call (spec §4.6: "guarantees they
// are registered first"). It returns once listeners are bound; dialing
// proceeds asynchronously (spec §4.7).
func (p *P2P) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		return fmt.Errorf("p2p: already started")
	}
	p.startTime = time.Now()

	ctx, p.cancel = context.WithCancel(ctx)

	deps := p.deps()

	p.seed = session.NewSeed(deps, session.SeedConfig{
		Seeds:          p.settings.Seeds,
		ConnectTimeout: p.settings.OutboundConnectTimeout,
	})
	if err := p.seed.Start(ctx); err != nil {
		return go_errors.Errorf("p2p: seed session: %v", err)
	}

	if len(p.settings.Inbound) > 0 {
		p.inbound = session.NewInbound(deps, session.InboundConfig{
			ListenAddrs:      p.settings.Inbound,
			MaxConnections:   int64(p.settings.InboundConnections),
			HandshakeTimeout: p.settings.ChannelHandshakeTimeout,
		})
		if err := p.inbound.Start(ctx); err != nil {
			return go_errors.Errorf("p2p: inbound session: %v", err)
		}
	}

	for _, peerAddr := range p.settings.Peers {
		m := session.NewManual(deps, session.ManualConfig{
			Target:         peerAddr,
			AttemptLimit:   p.settings.ManualAttemptLimit,
			ConnectTimeout: p.settings.OutboundConnectTimeout,
		})
		if err := m.Start(ctx); err != nil {
			return go_errors.Errorf("p2p: manual session for %v: %v", peerAddr, err)
		}
		p.manual = append(p.manual, m)
	}

	p.outbound = session.NewOutbound(deps, session.OutboundConfig{
		Slots:             p.settings.OutboundConnections,
		AllowedTransports: p.settings.AllowedTransports,
		ConnectTimeout:    p.settings.OutboundConnectTimeout,
		DiscoveryCooloff:  p.settings.OutboundPeerDiscoveryCooloffTime,
		DiscoveryTimeout:  p.settings.OutboundPeerDiscoveryAttemptTime,
	}, func(ctx context.Context) { p.seed.Sync(ctx) })
	if err := p.outbound.Start(ctx); err != nil {
		return go_errors.Errorf("p2p: outbound session: %v", err)
	}

	if p.settings.HostlistPath != "" {
		p.wg.Add(1)
		go p.hostlistFlusher(ctx)
	}

	p.wg.Add(2)
	go p.observeEvents(ctx)
	go p.observeHostlist(ctx)

	if err := p.health.Start(); err != nil {
		plog.Warnf("p2p: health monitor failed to start: %v", err)
	}

	if p.settings.IntrospectionAddr != "" {
		p.introspect = newIntrospectionServer(p, p.settings.IntrospectionAddr)
		if err := p.introspect.start(); err != nil {
			plog.Warnf("p2p: introspection server failed to start: %v", err)
		}
	}

	return nil
}

func (p *P2P) registerBuiltinProtocols() {
	p.protocols.Register(handshake.HeartbeatFactory(p.settings.ChannelHeartbeatInterval))
	p.protocols.Register(handshake.AddrExchangeFactory(p.hostlist, nil))
}

func (p *P2P) hostlistFlusher(ctx context.Context) {
	defer p.wg.Done()

	t := time.NewTicker(p.settings.HostlistFlush)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.hostlist.Save(p.settings.HostlistPath)
			return
		case <-t.C:
			if err := p.hostlist.Save(p.settings.HostlistPath); err != nil {
				plog.Warnf("p2p: hostlist flush failed: %v", err)
			}
		}
	}
}

// Stop stops all sessions, then stops each live channel (which stops
// protocols), awaits completion, and flushes the hostlist (spec §4.7).
// Idempotent.
func (p *P2P) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.started, 1, 2) {
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}

	if p.seed != nil {
		p.seed.Stop()
	}
	if p.inbound != nil {
		p.inbound.Stop()
	}
	for _, m := range p.manual {
		m.Stop()
	}
	if p.outbound != nil {
		p.outbound.Stop()
	}

	for _, ch := range p.channelsSnapshot() {
		ch.Stop()
	}

	p.wg.Wait()

	if p.health != nil {
		p.health.Stop()
	}
	if p.introspect != nil {
		p.introspect.stop()
	}

	if p.settings.HostlistPath != "" {
		if err := p.hostlist.Save(p.settings.HostlistPath); err != nil {
			return go_errors.Errorf("p2p: final hostlist flush: %v", err)
		}
	}
	return nil
}

// Broadcast sends msg to every connected channel concurrently,
// best-effort, returning the count of channels it was successfully
// queued on (spec §4.7).
func (p *P2P) Broadcast(msg message.Message, exclude *channel.Channel) int {
	var ok int64
	var wg sync.WaitGroup
	for _, ch := range p.channelsSnapshot() {
		if ch == exclude {
			continue
		}
		wg.Add(1)
		go func(c *channel.Channel) {
			defer wg.Done()
			if err := c.QueueMessage(msg, nil); err == nil {
				atomic.AddInt64(&ok, 1)
			}
		}(ch)
	}
	wg.Wait()
	return int(ok)
}

// Channels returns an observability snapshot of every live channel
// (spec §4.7: "channels() -> snapshot").
func (p *P2P) Channels() []channel.Info {
	snapshot := p.channelsSnapshot()
	out := make([]channel.Info, len(snapshot))
	for i, ch := range snapshot {
		out[i] = ch.Info()
	}
	return out
}

// SubscribeChannelEvents subscribes to the session-level structured
// event bus (peer_discovery/dial_attempt/dial_success/dial_failure/
// accept/disconnect), spec §4.7's "subscribe_channel_events()".
func (p *P2P) SubscribeChannelEvents(bufSize int) (<-chan session.Event, func()) {
	return p.events.Subscribe(bufSize)
}

// GetInfo returns the JSON-shaped aggregate for external monitoring
// (spec §4.7/§6).
func (p *P2P) GetInfo() Info {
	info := Info{
		State:               "running",
		UptimeSeconds:       int64(time.Since(p.startTime).Seconds()),
		DialAttemptCounters: make(map[string]int64),
	}
	for _, a := range p.settings.ExternalAddrs {
		info.ExternalAddr = append(info.ExternalAddr, a.String())
	}

	connected := make(map[string][]ChannelInfo)
	for _, ch := range p.channelsSnapshot() {
		if ch.Outbound() {
			continue
		}
		remote := ch.PeerAddress().String()
		connected[remote] = append(connected[remote], channelInfoFrom(ch.Info()))
	}
	info.SessionInbound = InboundInfo{Connected: connected}

	if p.outbound != nil {
		for _, st := range p.outbound.SlotStates() {
			info.SessionOutbound.Slots = append(info.SessionOutbound.Slots, st.String())
		}
	}

	if len(p.manual) > 0 {
		info.SessionManual = ManualInfo{Key: p.settings.Peers[0].String()}
	}

	p.dialMu.Lock()
	for k, v := range p.dialAttempts {
		info.DialAttemptCounters[k] = atomic.LoadInt64(v)
	}
	p.dialMu.Unlock()

	return info
}

// MetricsRegistry exposes the Prometheus registry so the embedding
// daemon can mount it on its own /metrics handler.
func (p *P2P) MetricsRegistry() *prometheus.Registry {
	return p.promReg
}
