package hostlist

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/log"
)

var hlog = log.Disabled()

// UseLogger redirects the package-level subsystem logger.
func UseLogger(l btclog.Logger) { hlog = l }

// FetchWeights controls fetch_address's tier preference (spec §4.3,
// default 25/70/5 gold/white/grey).
type FetchWeights struct {
	GoldPercent  int
	WhitePercent int
	GreyPercent  int
}

// DefaultFetchWeights matches spec.md's stated default.
var DefaultFetchWeights = FetchWeights{GoldPercent: 25, WhitePercent: 70, GreyPercent: 5}

// Capacity bounds how many addresses each tier may hold; zero means
// unbounded. Anchor is never evicted regardless of Capacity (invariant
// I3).
type Capacity map[Tier]int

// Config configures a Store at construction.
type Config struct {
	Weights       FetchWeights
	Capacity      Capacity
	Blacklist     []BlacklistRule
	Localnet      bool // stored only: the Store applies no loopback filtering, with or without it
	DemoteToBlack int  // consecutive demotions before forced move to Black; 0 = disabled
}

type entry struct {
	addr      addr.Address
	lastSeen  time.Time
	lastError string
	demotions int
	pinned    bool // manually pinned (eligible for Anchor promotion)
}

// Store is the thread-safe, tier-partitioned address book (C4). All
// mutations go through a single mutex per spec §5; acquire/release are
// the only way to mark an address in-use.
type Store struct {
	mu sync.Mutex

	cfg Config

	// tierOf/entries are keyed by the address's canonical string form.
	tierOf  map[string]Tier
	entries map[string]*entry

	// transient holds the in-flight exclusive state for an address, if
	// any (invariant I2). Absence means StateNone.
	transient map[string]State

	rng *rand.Rand
}

// New constructs an empty Store. Call Load to populate it from disk.
func New(cfg Config) *Store {
	if cfg.Weights == (FetchWeights{}) {
		cfg.Weights = DefaultFetchWeights
	}
	return &Store{
		cfg:       cfg,
		tierOf:    make(map[string]Tier),
		entries:   make(map[string]*entry),
		transient: make(map[string]State),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func key(a addr.Address) string { return a.String() }

// Register inserts addr into tier iff it is not already present in any
// tier; ignored (not an error) if blacklisted or already present (spec
// §4.3).
func (s *Store) Register(a addr.Address, tier Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if Blacklisted(s.cfg.Blacklist, a) {
		return nil
	}

	k := key(a)
	if _, exists := s.tierOf[k]; exists {
		return nil
	}

	s.tierOf[k] = tier
	s.entries[k] = &entry{addr: a, lastSeen: time.Now()}
	s.enforceCapacityLocked(tier)
	return nil
}

// RegisterPinned registers addr into TierAnchor and marks it pinned,
// matching the Manual session's "address is stored in Anchor" rule
// (spec §4.5).
func (s *Store) RegisterPinned(a addr.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(a)
	if e, exists := s.entries[k]; exists {
		e.pinned = true
		return nil
	}
	s.tierOf[k] = TierAnchor
	s.entries[k] = &entry{addr: a, lastSeen: time.Now(), pinned: true}
	return nil
}

// Move atomically removes addr from its current tier and inserts it into
// newTier; fails if the source tier does not contain addr.
func (s *Store) Move(a addr.Address, newTier Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(a, newTier)
}

func (s *Store) moveLocked(a addr.Address, newTier Tier) error {
	k := key(a)
	cur, exists := s.tierOf[k]
	if !exists {
		return fmt.Errorf("hostlist: move: %v is not present in any tier", a)
	}
	if cur == newTier {
		return nil
	}
	s.tierOf[k] = newTier
	s.enforceCapacityLocked(newTier)
	return nil
}

// Promote advances addr one tier: Grey->White, White->Gold, Gold->Anchor
// (only if addr was pinned via RegisterPinned) (spec §4.3).
func (s *Store) Promote(a addr.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(a)
	cur, exists := s.tierOf[k]
	if !exists {
		return fmt.Errorf("hostlist: promote: %v is not present in any tier", a)
	}
	s.entries[k].demotions = 0

	next, ok := promotedTier(cur)
	if !ok {
		return nil
	}
	if next == TierAnchor && !s.entries[k].pinned {
		return nil
	}
	return s.moveLocked(a, next)
}

// Demote worsens addr's tier by one step. A per-address consecutive
// demotion counter (reset by Promote) forces a move straight to Black
// once it reaches cfg.DemoteToBlack (spec §4.3).
func (s *Store) Demote(a addr.Address, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(a)
	cur, exists := s.tierOf[k]
	if !exists {
		return fmt.Errorf("hostlist: demote: %v is not present in any tier", a)
	}

	e := s.entries[k]
	e.lastError = reason
	e.demotions++

	if s.cfg.DemoteToBlack > 0 && e.demotions >= s.cfg.DemoteToBlack {
		return s.moveLocked(a, TierBlack)
	}

	next, ok := demotedTier(cur)
	if !ok {
		return nil
	}
	return s.moveLocked(a, next)
}

// Acquire attempts to move addr into a transient state (Refining,
// Connect, Connected, Disconnect, ...); fails with a *StateError if any
// other transient state is currently held for addr. This is the
// mutual-exclusion primitive preventing two sessions from dialing the
// same peer simultaneously (spec §4.3, invariant P1): it succeeds from
// the rest state (no transient held) or when re-acquiring the state
// already held, and fails only when a different transient is held.
func (s *Store) Acquire(a addr.Address, newState State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(a)
	cur := s.transient[k]
	if cur != StateNone && cur != newState {
		err := &StateError{From: cur, To: newState}
		hlog.Errorf("%v", err)
		return err
	}
	s.transient[k] = newState
	return nil
}

// Release clears addr's transient state, returning it to StateNone.
func (s *Store) Release(a addr.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transient, key(a))
}

// TransientState reports addr's current transient state (StateNone if
// none held).
func (s *Store) TransientState(a addr.Address) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transient[key(a)]
}

// Touch updates addr's last-seen timestamp, e.g. after a successful
// message exchange.
func (s *Store) Touch(a addr.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key(a)]; ok {
		e.lastSeen = time.Now()
	}
}

// FetchAddress returns a candidate address not currently in any
// transient state and not blacklisted, weighted across tiers per
// weights (spec §4.3). Returns false if no eligible candidate exists —
// never panics (spec §8 boundary behavior).
func (s *Store) FetchAddress(allowed map[addr.Scheme]bool) (addr.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.weightedTierOrderLocked()
	for _, tier := range order {
		if cand, ok := s.pickFromTierLocked(tier, allowed); ok {
			return cand, true
		}
	}
	return addr.Address{}, false
}

// weightedTierOrderLocked returns the tier search order for one
// fetch_address call, randomized according to configured weights. Black
// and Anchor are never offered by ordinary fetch_address (Anchor is
// dialed directly by the Manual session; Black is never dialed at all).
func (s *Store) weightedTierOrderLocked() []Tier {
	roll := s.rng.Intn(100)
	gold, white := s.cfg.Weights.GoldPercent, s.cfg.Weights.WhitePercent
	switch {
	case roll < gold:
		return []Tier{TierGold, TierWhite, TierGrey}
	case roll < gold+white:
		return []Tier{TierWhite, TierGold, TierGrey}
	default:
		return []Tier{TierGrey, TierWhite, TierGold}
	}
}

func (s *Store) pickFromTierLocked(tier Tier, allowed map[addr.Scheme]bool) (addr.Address, bool) {
	var candidates []*entry
	for k, t := range s.tierOf {
		if t != tier {
			continue
		}
		if s.transient[k] != StateNone {
			continue
		}
		e := s.entries[k]
		if Blacklisted(s.cfg.Blacklist, e.addr) {
			continue
		}
		if len(allowed) > 0 && !allowed[e.addr.Scheme()] {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return addr.Address{}, false
	}
	return candidates[s.rng.Intn(len(candidates))].addr, true
}

// Filter returns every stored address (across all tiers except Black)
// whose scheme is in schemes, restricting a dial pass to a set of
// allowed transports (spec §4.3).
func (s *Store) Filter(schemes map[addr.Scheme]bool) []addr.Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []addr.Address
	for k, t := range s.tierOf {
		if t == TierBlack {
			continue
		}
		e := s.entries[k]
		if len(schemes) > 0 && !schemes[e.addr.Scheme()] {
			continue
		}
		out = append(out, e.addr)
	}
	return out
}

// TierOf reports which tier addr currently resides in.
func (s *Store) TierOf(a addr.Address) (Tier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tierOf[key(a)]
	return t, ok
}

// Size reports the number of addresses in tier.
func (s *Store) Size(tier Tier) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tierOf {
		if t == tier {
			n++
		}
	}
	return n
}

// enforceCapacityLocked evicts the oldest-last_seen entries in tier once
// it exceeds cfg.Capacity[tier], never evicting Anchor (invariant I3).
// Must be called with s.mu held.
func (s *Store) enforceCapacityLocked(tier Tier) {
	if tier == TierAnchor {
		return
	}
	limit, ok := s.cfg.Capacity[tier]
	if !ok || limit <= 0 {
		return
	}

	var members []*entry
	for k, t := range s.tierOf {
		if t == tier {
			members = append(members, s.entries[k])
		}
	}
	if len(members) <= limit {
		return
	}

	// Oldest last_seen first.
	for len(members) > limit {
		oldestIdx := 0
		for i, e := range members {
			if e.lastSeen.Before(members[oldestIdx].lastSeen) {
				oldestIdx = i
			}
		}
		evicted := members[oldestIdx]
		k := key(evicted.addr)
		delete(s.tierOf, k)
		delete(s.entries, k)
		delete(s.transient, k)
		members = append(members[:oldestIdx], members[oldestIdx+1:]...)
	}
}
