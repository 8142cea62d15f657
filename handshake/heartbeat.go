package handshake

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/channel"
	"github.com/darkrenaissance/darkfi-sub003/message"
	"github.com/darkrenaissance/darkfi-sub003/protocol"

	"github.com/lightningnetwork/lnd/ticker"
)

// HeartbeatInterval is the default period between pings (spec §4.8:
// channel_heartbeat_interval is a Setting; this is its fallback).
const HeartbeatInterval = 10 * time.Second

type heartbeatProtocol struct {
	ch       *channel.Channel
	interval time.Duration
	ticker   *ticker.Ticker

	pongs  *channel.Subscription[*message.Pong]
	pings  *channel.Subscription[*message.Ping]
	cancel context.CancelFunc
}

// HeartbeatFactory returns a protocol.Factory for the built-in
// ping/pong heartbeat (spec §4.8, §4.6 "guarantees they are registered
// first" — the caller registers this ahead of any application
// protocol). It sends a ping every interval and answers the peer's
// pings with pongs; two consecutive missed replies stop the channel
// (enforced by channel.Channel itself via Touch/its own ticker).
func HeartbeatFactory(interval time.Duration) protocol.Factory {
	if interval <= 0 {
		interval = HeartbeatInterval
	}
	return func(ch *channel.Channel, _ interface{}) protocol.Protocol {
		return &heartbeatProtocol{
			ch:       ch,
			interval: interval,
			ticker:   ticker.New(interval),
			pongs:    channel.Subscribe[*message.Pong](ch, channel.DropOldest, 4),
			pings:    channel.Subscribe[*message.Ping](ch, channel.DropOldest, 4),
		}
	}
}

func (h *heartbeatProtocol) Run(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.ticker.Resume()
	defer h.ticker.Stop()

	for {
		select {
		case <-h.ticker.Ticks():
			var buf [8]byte
			rand.Read(buf[:])
			nonce := binary.BigEndian.Uint64(buf[:])
			h.ch.QueueMessage(&message.Ping{Cookie: nonce}, nil)

		case <-h.pongs.Messages():
			h.ch.Touch()

		case ping, ok := <-h.pings.Messages():
			if !ok {
				return
			}
			h.ch.QueueMessage(&message.Pong{Cookie: ping.Cookie}, nil)

		case <-ctx.Done():
			return
		}
	}
}

func (h *heartbeatProtocol) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.pongs.Unsubscribe()
	h.pings.Unsubscribe()
}
