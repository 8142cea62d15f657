package channel

import "fmt"

// State is a Channel's lifecycle stage (spec §4.4: Created -> Handshaking
// -> Running -> Stopping -> Stopped).
type State int32

const (
	StateCreated State = iota
	StateHandshaking
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateHandshaking:
		return "handshaking"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// BackpressurePolicy selects what a Subscription does when its buffer
// fills (spec §5: "drop-slowest" is the baseline; this core also offers
// Block and ErrorWhenFull for protocols that need different guarantees).
type BackpressurePolicy int

const (
	// DropOldest discards the oldest buffered message to make room for
	// the newest one — the spec's default "drop-slowest" policy.
	DropOldest BackpressurePolicy = iota
	// Block applies backpressure to the channel's dispatch loop itself,
	// pausing delivery to every subscriber of this type until the slow
	// one catches up. Use sparingly — a stuck subscriber stalls the
	// whole channel's receive loop for that message type.
	Block
	// ErrorWhenFull drops the incoming message and logs a warning,
	// leaving the buffer's existing contents untouched.
	ErrorWhenFull
)

// DefaultSubscriptionBuffer is the default Subscription buffer size
// (spec §9 "Open Question" resolution, see DESIGN.md).
const DefaultSubscriptionBuffer = 32
