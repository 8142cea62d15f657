package session

import (
	"context"
	"sync"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/handshake"
	"github.com/darkrenaissance/darkfi-sub003/hostlist"
)

// SeedConfig configures the Seed session (spec §4.5: "seed sync runs
// once at startup, connecting to each configured seed just long enough
// to exchange addresses").
type SeedConfig struct {
	Seeds          []addr.Address
	ConnectTimeout time.Duration
	Periodic       time.Duration // 0 disables periodic re-sync
}

// Seed connects once to each configured seed, exchanges addresses, and
// disconnects; it never keeps a channel alive past that one-shot
// exchange and is never present in the live channel registry.
type Seed struct {
	deps Deps
	cfg  SeedConfig

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewSeed constructs a Seed session.
func NewSeed(deps Deps, cfg SeedConfig) *Seed {
	return &Seed{deps: deps, cfg: cfg}
}

// Start runs one synchronization pass immediately, then (if Periodic is
// set) repeats it on that interval until Stop.
func (s *Seed) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels the sync loop and waits for the in-flight pass to
// finish.
func (s *Seed) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// Sync performs one seed-sync pass immediately, usable directly by an
// Outbound slot falling back to seeds when discovery is exhausted
// (spec §4.5 step 2).
func (s *Seed) Sync(ctx context.Context) {
	var wg sync.WaitGroup
	for _, seedAddr := range s.cfg.Seeds {
		wg.Add(1)
		go func(target addr.Address) {
			defer wg.Done()
			s.syncOne(ctx, target)
		}(seedAddr)
	}
	wg.Wait()
}

func (s *Seed) loop(ctx context.Context) {
	defer s.wg.Done()

	s.Sync(ctx)

	if s.cfg.Periodic <= 0 {
		return
	}
	t := time.NewTicker(s.cfg.Periodic)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sync(ctx)
		}
	}
}

func (s *Seed) syncOne(ctx context.Context, target addr.Address) {
	s.deps.Events.Publish(Event{Kind: EventDialAttempt, Session: "seed", Address: target, Time: time.Now()})

	ch, err := dialOutbound(ctx, s.deps, target, s.cfg.ConnectTimeout)
	if err != nil {
		s.deps.Events.Publish(Event{Kind: EventDialFailure, Session: "seed", Address: target, Err: err, Time: time.Now()})
		return
	}
	defer ch.Stop()

	s.deps.Events.Publish(Event{Kind: EventDialSuccess, Session: "seed", Address: target, Time: time.Now()})

	ch.StartReceiveLoop()
	reply, err := handshake.RequestAddrs(ctx, ch, 0, nil, s.cfg.ConnectTimeout)
	if err != nil {
		slog.Debugf("seed: addr exchange with %v failed: %v", target, err)
		return
	}

	for _, a := range reply.Entries {
		s.deps.Hostlist.Register(a, hostlist.TierGrey)
	}
	slog.Infof("seed: harvested %d addresses from %v", len(reply.Entries), target)
}
