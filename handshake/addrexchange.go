package handshake

import (
	"context"
	"fmt"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/channel"
	"github.com/darkrenaissance/darkfi-sub003/hostlist"
	"github.com/darkrenaissance/darkfi-sub003/message"
	"github.com/darkrenaissance/darkfi-sub003/protocol"

	"golang.org/x/time/rate"
)

// DefaultAddrExchangeRate bounds how often this node answers a peer's
// get_addr request (spec §4.8: "entries are rate-limited").
var DefaultAddrExchangeRate = rate.Every(time.Second)

// DefaultMaxAddrEntries caps a single addr response.
const DefaultMaxAddrEntries = 1000

type addrProtocol struct {
	ch      *channel.Channel
	store   *hostlist.Store
	limiter *rate.Limiter

	requests *channel.Subscription[*message.GetAddr]
	cancel   context.CancelFunc
}

// AddrExchangeFactory returns a protocol.Factory that answers incoming
// get_addr requests from store, filtered by the requested transports
// and rate-limited (spec §4.8 "Address exchange").
func AddrExchangeFactory(store *hostlist.Store, limiter *rate.Limiter) protocol.Factory {
	if limiter == nil {
		limiter = rate.NewLimiter(DefaultAddrExchangeRate, 5)
	}
	return func(ch *channel.Channel, _ interface{}) protocol.Protocol {
		return &addrProtocol{
			ch:       ch,
			store:    store,
			limiter:  limiter,
			requests: channel.Subscribe[*message.GetAddr](ch, channel.DropOldest, 8),
		}
	}
}

func (a *addrProtocol) Run(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	for {
		select {
		case req, ok := <-a.requests.Messages():
			if !ok {
				return
			}
			if !a.limiter.Allow() {
				continue
			}
			a.ch.QueueMessage(&message.Addr{Entries: a.filterAddresses(req)}, nil)

		case <-ctx.Done():
			return
		}
	}
}

func (a *addrProtocol) filterAddresses(req *message.GetAddr) []addr.Address {
	var schemes map[addr.Scheme]bool
	if len(req.Transports) > 0 {
		schemes = make(map[addr.Scheme]bool, len(req.Transports))
		for _, t := range req.Transports {
			schemes[addr.Scheme(t)] = true
		}
	}

	all := a.store.Filter(schemes)
	max := int(req.Max)
	if max <= 0 || max > DefaultMaxAddrEntries {
		max = DefaultMaxAddrEntries
	}
	if len(all) > max {
		all = all[:max]
	}
	return all
}

func (a *addrProtocol) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.requests.Unsubscribe()
}

// RequestAddrs synchronously asks ch's peer for up to max addresses
// restricted to transports, used by the Outbound session's peer
// discovery step and by the Seed session's one-shot harvest (spec
// §4.5). It subscribes for the single expected Addr reply, sends
// get_addr, and waits up to timeout.
func RequestAddrs(ctx context.Context, ch *channel.Channel, max uint32, transports []string, timeout time.Duration) (*message.Addr, error) {
	sub := channel.Subscribe[*message.Addr](ch, channel.DropOldest, 1)
	defer sub.Unsubscribe()

	if err := ch.Send(&message.GetAddr{Max: max, Transports: transports}); err != nil {
		return nil, fmt.Errorf("handshake: send get_addr: %w", err)
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case reply, ok := <-sub.Messages():
		if !ok {
			return nil, fmt.Errorf("handshake: channel stopped waiting for addr")
		}
		return reply, nil
	case <-waitCtx.Done():
		return nil, waitCtx.Err()
	}
}
