package hostlist

import "fmt"

// State is an address's transient, mutually-exclusive in-use marker
// (spec §3: HostState). StateNone means "no transient state held" — the
// rest state an address sits in between Disconnect and the next Insert.
type State int

const (
	StateNone State = iota
	StateInsert
	StateRefining
	StateConnect
	StateConnected
	StateSuspend
	StateDisconnect
	StateMove
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateInsert:
		return "insert"
	case StateRefining:
		return "refining"
	case StateConnect:
		return "connect"
	case StateConnected:
		return "connected"
	case StateSuspend:
		return "suspend"
	case StateDisconnect:
		return "disconnect"
	case StateMove:
		return "move"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateError reports a transient state already held by someone else
// (spec §3/§7): a programming bug, logged and skipped, never
// propagated to a peer.
type StateError struct {
	From, To State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("hostlist: cannot acquire %s, already held as %s", e.To, e.From)
}
