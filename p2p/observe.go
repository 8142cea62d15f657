package p2p

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/hostlist"
	"github.com/darkrenaissance/darkfi-sub003/session"
)

// observeEvents feeds the session event bus into the Prometheus
// counters and GetInfo's dial-attempt breakdown. Started by Start; it
// returns when ctx is cancelled or the subscription channel is closed.
func (p *P2P) observeEvents(ctx context.Context) {
	defer p.wg.Done()

	events, unsubscribe := p.events.Subscribe(64)
	defer unsubscribe()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.recordEvent(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (p *P2P) recordEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventDialAttempt:
		p.metrics.dialAttempts.WithLabelValues(ev.Session).Inc()
		p.counterFor(ev.Session)
	case session.EventDialFailure:
		p.metrics.dialFailures.WithLabelValues(ev.Session).Inc()
	}
}

func (p *P2P) counterFor(sessionName string) *int64 {
	p.dialMu.Lock()
	defer p.dialMu.Unlock()
	c, ok := p.dialAttempts[sessionName]
	if !ok {
		c = new(int64)
		p.dialAttempts[sessionName] = c
	}
	atomic.AddInt64(c, 1)
	return c
}

// observeHostlist periodically republishes each tier's size to the
// hostlist_tier_size gauge, stopping when ctx is cancelled.
func (p *P2P) observeHostlist(ctx context.Context) {
	defer p.wg.Done()

	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			for _, tier := range []hostlist.Tier{
				hostlist.TierAnchor, hostlist.TierGold, hostlist.TierWhite,
				hostlist.TierGrey, hostlist.TierBlack,
			} {
				p.metrics.hostlistTierSize.WithLabelValues(tier.String()).Set(float64(p.hostlist.Size(tier)))
			}
		case <-ctx.Done():
			return
		}
	}
}
