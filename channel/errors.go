package channel

import "errors"

// ErrChannelStopped is returned by Send/QueueMessage once a channel has
// begun or finished stopping (spec §7: "send on a dead channel" is a
// soft failure, never a panic).
var ErrChannelStopped = errors.New("channel: stopped")

// ErrWriteTimeout names a send that does not clear the write half of the
// stream within the configured write timeout. No function in this
// package returns it: a write that fails or times out stops the channel,
// and a pending Send then returns ErrChannelStopped.
var ErrWriteTimeout = errors.New("channel: write timeout")
