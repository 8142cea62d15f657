package session

import (
	"context"
	"sync"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/hostlist"
)

// ManualConfig configures the Manual session (spec §4.5: "manual
// connections to user-pinned addresses", "manual_attempt_limit").
type ManualConfig struct {
	Target         addr.Address
	AttemptLimit   int // 0 means unlimited retries
	ConnectTimeout time.Duration
	RetryBackoff   time.Duration
}

// Manual drives a single user-pinned connection, registered into the
// Anchor tier, never subject to the outbound/inbound slot caps (spec
// §4.3: Anchor hosts are "always connect targets, never evicted").
type Manual struct {
	deps Deps
	cfg  ManualConfig

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewManual constructs a Manual session for one pinned target.
func NewManual(deps Deps, cfg ManualConfig) *Manual {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 10 * time.Second
	}
	return &Manual{deps: deps, cfg: cfg}
}

// Start registers the pinned address and begins the connect-retry
// loop in its own goroutine.
func (m *Manual) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	if err := m.deps.Hostlist.RegisterPinned(m.cfg.Target); err != nil {
		return err
	}

	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

// Stop cancels the retry loop and waits for it to unwind.
func (m *Manual) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return nil
}

func (m *Manual) run(ctx context.Context) {
	defer m.wg.Done()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if m.cfg.AttemptLimit > 0 && attempts >= m.cfg.AttemptLimit {
			slog.Warnf("manual: attempt limit reached for %v, giving up", m.cfg.Target)
			return
		}
		attempts++

		if err := m.deps.Hostlist.Acquire(m.cfg.Target, hostlist.StateConnect); err != nil {
			select {
			case <-time.After(m.cfg.RetryBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		m.deps.Events.Publish(Event{Kind: EventDialAttempt, Session: "manual", Address: m.cfg.Target, Time: time.Now()})

		ch, err := dialOutbound(ctx, m.deps, m.cfg.Target, m.cfg.ConnectTimeout)
		if err != nil {
			m.deps.Hostlist.Release(m.cfg.Target)
			m.deps.Events.Publish(Event{Kind: EventDialFailure, Session: "manual", Address: m.cfg.Target, Err: err, Time: time.Now()})
			select {
			case <-time.After(m.cfg.RetryBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		if err := m.deps.Hostlist.Acquire(m.cfg.Target, hostlist.StateConnected); err != nil {
			slog.Warnf("manual: %v", err)
		}
		m.deps.Events.Publish(Event{Kind: EventDialSuccess, Session: "manual", Address: m.cfg.Target, Time: time.Now()})
		attempts = 0

		ch.StartReceiveLoop()
		m.deps.OnChannelUp(ctx, ch)

		select {
		case <-ch.Done():
		case <-ctx.Done():
			ch.Stop()
		}

		m.deps.OnChannelDown(ch)
		m.deps.Hostlist.Release(m.cfg.Target)
		m.deps.Events.Publish(Event{Kind: EventDisconnect, Session: "manual", Address: m.cfg.Target, Time: time.Now()})

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
