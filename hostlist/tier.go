// Package hostlist implements the Hostlist Store (C4): a thread-safe,
// tier-partitioned, persisted address book with an exclusive transient
// state machine per address, per spec §3-§4.3.
package hostlist

import "fmt"

// Tier is the reputation class an address resides in (spec §3). An
// address belongs to exactly one Tier at a time (invariant I1/P5).
type Tier int

const (
	TierAnchor Tier = iota
	TierGold
	TierWhite
	TierGrey
	TierBlack
)

func (t Tier) String() string {
	switch t {
	case TierAnchor:
		return "anchor"
	case TierGold:
		return "gold"
	case TierWhite:
		return "white"
	case TierGrey:
		return "grey"
	case TierBlack:
		return "black"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier is the inverse of Tier.String, used when loading the TSV
// hostlist file.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "anchor":
		return TierAnchor, nil
	case "gold":
		return TierGold, nil
	case "white":
		return TierWhite, nil
	case "grey":
		return TierGrey, nil
	case "black":
		return TierBlack, nil
	default:
		return 0, fmt.Errorf("hostlist: unknown tier %q", s)
	}
}

// allTiers enumerates every non-transient tier.
var allTiers = []Tier{TierAnchor, TierGold, TierWhite, TierGrey, TierBlack}

// promotedTier returns the tier one step better than t, and whether
// promotion is defined for t at all (spec §4.3: Grey->White->Gold->
// Anchor-if-pinned).
func promotedTier(t Tier) (Tier, bool) {
	switch t {
	case TierGrey:
		return TierWhite, true
	case TierWhite:
		return TierGold, true
	case TierGold:
		return TierAnchor, true
	default:
		return t, false
	}
}

// demotedTier returns the tier one step worse than t (spec §4.3:
// demote worsens by one step).
func demotedTier(t Tier) (Tier, bool) {
	switch t {
	case TierAnchor:
		return TierGold, true
	case TierGold:
		return TierWhite, true
	case TierWhite:
		return TierGrey, true
	case TierGrey:
		return TierBlack, true
	default:
		return t, false
	}
}
