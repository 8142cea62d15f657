package p2p

import (
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/healthcheck"
)

// newHealthMonitor builds the periodic channel/hostlist-store health
// observer, which stops the P2P instance when a check keeps failing; it
// does not feed GetInfo, whose state field is always "running" (spec
// §4.7's "metrics task" is
// prometheus-based per metrics.go; this is the complementary liveness
// observer used to detect a wedged orchestrator rather than to export
// counters).
func newHealthMonitor(p *P2P) *healthcheck.Monitor {
	hostlistCheck := healthcheck.NewObservation(
		"hostlist-store",
		func() error {
			// The store's mutex is always acquirable unless something is
			// deadlocked; Size is the cheapest operation that takes it.
			p.hostlist.Size(0)
			return nil
		},
		time.Minute,
		10*time.Second,
		time.Second,
		1,
	)

	channelsCheck := healthcheck.NewObservation(
		"channel-registry",
		func() error {
			n := len(p.Channels())
			if n < 0 {
				return fmt.Errorf("negative channel count")
			}
			return nil
		},
		time.Minute,
		10*time.Second,
		time.Second,
		1,
	)

	return healthcheck.NewMonitor(&healthcheck.Config{
		Checks: []*healthcheck.Observation{hostlistCheck, channelsCheck},
		Shutdown: func(format string, params ...interface{}) {
			plog.Errorf(format, params...)
			go p.Stop()
		},
	})
}
