package session

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/handshake"
	"github.com/darkrenaissance/darkfi-sub003/hostlist"

	"golang.org/x/sync/errgroup"
)

// SlotState reports where one Outbound slot is in its state machine
// (spec §4.5: "Idle -> Fetching -> Dialing -> Handshaking -> Connected
// -> (Disconnected -> Cooldown -> Idle)").
type SlotState int32

const (
	SlotIdle SlotState = iota
	SlotFetching
	SlotDialing
	SlotHandshaking
	SlotConnected
	SlotCooldown
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotFetching:
		return "fetching"
	case SlotDialing:
		return "dialing"
	case SlotHandshaking:
		return "handshaking"
	case SlotConnected:
		return "connected"
	case SlotCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// OutboundConfig configures the Outbound session (spec §4.5, §6
// Settings).
type OutboundConfig struct {
	Slots             int
	AllowedTransports map[addr.Scheme]bool
	ConnectTimeout    time.Duration
	DiscoveryCooloff  time.Duration
	DiscoveryTimeout  time.Duration
	ConnectBackoff    time.Duration
}

// Outbound maintains N outbound slots, each an independent state
// machine dialing addresses drawn from the hostlist (spec §4.5).
type Outbound struct {
	deps Deps
	cfg  OutboundConfig

	// seedFallback is invoked once discovery has been tried and the
	// cooloff exhausted, per spec §4.5 step 2's "fall back to Seed
	// session".
	seedFallback func(ctx context.Context)

	slotStates []int32 // atomic SlotState per slot

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewOutbound constructs an Outbound session. seedFallback may be nil.
func NewOutbound(deps Deps, cfg OutboundConfig, seedFallback func(ctx context.Context)) *Outbound {
	if cfg.Slots <= 0 {
		cfg.Slots = 8
	}
	if cfg.DiscoveryCooloff <= 0 {
		cfg.DiscoveryCooloff = 30 * time.Second
	}
	if cfg.ConnectBackoff <= 0 {
		cfg.ConnectBackoff = 5 * time.Second
	}
	return &Outbound{
		deps:         deps,
		cfg:          cfg,
		seedFallback: seedFallback,
		slotStates:   make([]int32, cfg.Slots),
	}
}

// SlotStates returns a snapshot of every slot's current state, for
// get_info()-style introspection.
func (o *Outbound) SlotStates() []SlotState {
	out := make([]SlotState, len(o.slotStates))
	for i := range o.slotStates {
		out[i] = SlotState(atomic.LoadInt32(&o.slotStates[i]))
	}
	return out
}

// Start launches one goroutine per slot (spec §4.7: "start() ...
// spawns ... Outbound slots").
func (o *Outbound) Start(ctx context.Context) error {
	ctx, o.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	o.group = g
	for i := 0; i < len(o.slotStates); i++ {
		idx := i
		g.Go(func() error {
			o.runSlot(gctx, idx)
			return nil
		})
	}
	return nil
}

// Stop cancels every slot and waits for them to unwind.
func (o *Outbound) Stop() error {
	if o.cancel != nil {
		o.cancel()
	}
	if o.group != nil {
		o.group.Wait()
	}
	return nil
}

func (o *Outbound) setSlot(idx int, s SlotState) {
	atomic.StoreInt32(&o.slotStates[idx], int32(s))
}

func (o *Outbound) runSlot(ctx context.Context, idx int) {
	for {
		select {
		case <-ctx.Done():
			o.setSlot(idx, SlotIdle)
			return
		default:
		}

		o.setSlot(idx, SlotFetching)
		target, ok := o.deps.Hostlist.FetchAddress(o.cfg.AllowedTransports)
		if !ok {
			o.deps.Events.Publish(Event{Kind: EventPeerDiscovery, Session: "outbound", Time: time.Now()})
			if !o.discoverFromPeer(ctx) {
				o.setSlot(idx, SlotCooldown)
				select {
				case <-time.After(o.cfg.DiscoveryCooloff):
				case <-ctx.Done():
					return
				}
				if o.seedFallback != nil {
					o.seedFallback(ctx)
				}
			}
			continue
		}

		if err := o.deps.Hostlist.Acquire(target, hostlist.StateConnect); err != nil {
			continue
		}

		o.setSlot(idx, SlotDialing)
		o.deps.Events.Publish(Event{Kind: EventDialAttempt, Session: "outbound", Address: target, Time: time.Now()})

		o.setSlot(idx, SlotHandshaking)
		ch, err := dialOutbound(ctx, o.deps, target, o.cfg.ConnectTimeout)
		if err != nil {
			o.deps.Hostlist.Demote(target, err.Error())
			o.deps.Hostlist.Release(target)
			o.deps.Events.Publish(Event{Kind: EventDialFailure, Session: "outbound", Address: target, Err: err, Time: time.Now()})
			o.setSlot(idx, SlotCooldown)
			select {
			case <-time.After(o.cfg.ConnectBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		if err := o.deps.Hostlist.Acquire(target, hostlist.StateConnected); err != nil {
			slog.Warnf("outbound slot %d: %v", idx, err)
		}
		o.setSlot(idx, SlotConnected)
		o.deps.Events.Publish(Event{Kind: EventDialSuccess, Session: "outbound", Address: target, Time: time.Now()})

		ch.StartReceiveLoop()
		o.deps.OnChannelUp(ctx, ch)

		select {
		case <-ch.Done():
		case <-ctx.Done():
			ch.Stop()
		}

		o.deps.OnChannelDown(ch)
		o.deps.Hostlist.Release(target)
		o.deps.Events.Publish(Event{Kind: EventDisconnect, Session: "outbound", Address: target, Time: time.Now()})
	}
}

// discoverFromPeer implements spec §4.5 step 2: pick a connected
// channel at random, ask it for addresses, register what it returns.
func (o *Outbound) discoverFromPeer(ctx context.Context) bool {
	chs := o.deps.Channels()
	if len(chs) == 0 {
		return false
	}
	pick := chs[rand.Intn(len(chs))]

	reply, err := handshake.RequestAddrs(ctx, pick, 200, nil, o.cfg.DiscoveryTimeout)
	if err != nil || len(reply.Entries) == 0 {
		return false
	}
	for _, a := range reply.Entries {
		o.deps.Hostlist.Register(a, hostlist.TierGrey)
	}
	return true
}
