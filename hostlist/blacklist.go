package hostlist

import "github.com/darkrenaissance/darkfi-sub003/addr"

// BlacklistRule matches by (host, [schemes?], [ports?]); an empty Schemes
// list means all schemes, an empty Ports list means all ports (spec
// §4.3). A blacklist match overrides tier membership (spec §8 boundary
// behavior).
type BlacklistRule struct {
	Host    string
	Schemes []addr.Scheme
	Ports   []uint16
}

func (r BlacklistRule) matches(a addr.Address) bool {
	if r.Host != a.Host() {
		return false
	}
	if len(r.Schemes) > 0 {
		found := false
		for _, s := range r.Schemes {
			if s == a.Scheme() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(r.Ports) > 0 {
		found := false
		for _, p := range r.Ports {
			if p == a.Port() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Blacklisted reports whether a matches any rule in rules.
func Blacklisted(rules []BlacklistRule, a addr.Address) bool {
	for _, r := range rules {
		if r.matches(a) {
			return true
		}
	}
	return false
}
