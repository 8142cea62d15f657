package p2p

import (
	"time"

	"github.com/darkrenaissance/darkfi-sub003/channel"
)

// ChannelInfo is the JSON-shaped per-channel snapshot named in spec §6's
// get_info() response.
type ChannelInfo struct {
	ID           uint64    `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	Outbound     bool      `json:"outbound"`
	State        string    `json:"state"`
	LastSeen     time.Time `json:"last_seen"`
	LastSendName string    `json:"last_send"`
	LastRecvName string    `json:"last_recv"`
}

func channelInfoFrom(info channel.Info) ChannelInfo {
	return ChannelInfo{
		ID:           info.ID,
		RemoteAddr:   info.Address.String(),
		Outbound:     info.Outbound,
		State:        info.State.String(),
		LastSeen:     info.LastSeen,
		LastSendName: info.LastSendName,
		LastRecvName: info.LastRecvName,
	}
}

// InboundInfo is the `session_inbound` section of get_info().
type InboundInfo struct {
	Connected map[string][]ChannelInfo `json:"connected"`
}

// OutboundInfo is the `session_outbound` section of get_info(); Slots
// supplements spec §6's bare shape with each slot's current state,
// since the dashboard/TUI consumer needs more than a static snapshot.
type OutboundInfo struct {
	Slots []string `json:"slots"`
}

// ManualInfo is the `session_manual` section of get_info().
type ManualInfo struct {
	Key string `json:"key"`
}

// Info is the aggregate JSON object returned by P2P.GetInfo (spec §6).
type Info struct {
	ExternalAddr    []string     `json:"external_addr"`
	State           string       `json:"state"`
	SessionInbound  InboundInfo  `json:"session_inbound"`
	SessionOutbound OutboundInfo `json:"session_outbound"`
	SessionManual   ManualInfo   `json:"session_manual"`

	UptimeSeconds       int64            `json:"uptime_seconds"`
	DialAttemptCounters map[string]int64 `json:"dial_attempt_counters"`
}
