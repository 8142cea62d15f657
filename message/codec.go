package message

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"
)

// MaxCommandLen is the longest ASCII command name a message type may
// register under (spec §3: "a registered ASCII name (<= 12 chars)").
const MaxCommandLen = CommandLen

// Message is implemented by every typed payload registered on a channel.
// It mirrors the teacher's lnwire.Message shape (Encode/Decode over a
// stream) generalized to the spec's ULEB128 wire discipline.
type Message interface {
	// Command returns this message's wire command name.
	Command() string
	// Encode serializes the message body (not the frame header) to w.
	Encode(w io.Writer) error
	// Decode populates the message from its serialized body.
	Decode(r *bufio.Reader) error
}

// Factory creates a new zero-value instance of a registered message type,
// ready to have Decode called on it.
type Factory func() Message

// registry is the process-wide map from command name to Factory. Spec §3:
// "Uniqueness of names is a global invariant within a running node."
type registry struct {
	mu    sync.RWMutex
	types map[string]Factory
}

var globalRegistry = &registry{types: make(map[string]Factory)}

// Register installs a message type under its command name. It panics on
// a duplicate registration or an oversize name, since that is a
// programming error caught at init time, not a runtime condition.
func Register(name string, f Factory) {
	if len(name) == 0 || len(name) > MaxCommandLen {
		panic(fmt.Sprintf("message: command name %q must be 1..%d bytes", name, MaxCommandLen))
	}

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if _, exists := globalRegistry.types[name]; exists {
		panic(fmt.Sprintf("message: command %q already registered", name))
	}
	globalRegistry.types[name] = f
}

// Lookup returns the Factory registered for name, if any.
func Lookup(name string) (Factory, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	f, ok := globalRegistry.types[name]
	return f, ok
}

// Serialize encodes m's body (not the frame header) to bytes.
func Serialize(m Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize constructs a new instance of the message type registered
// for name and decodes payload into it.
func Deserialize(name string, payload []byte) (Message, error) {
	factory, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("message: unknown command %q", name)
	}

	m := factory()
	r := bufio.NewReader(bytes.NewReader(payload))
	if err := m.Decode(r); err != nil {
		return nil, newCodecErr(KindShortRead, err)
	}
	return m, nil
}

// Encode is the full contract named in spec §4.1: encode(name,
// payload_bytes) -> frame, taking an already-typed Message instead of
// raw bytes for convenience.
func Encode(magic Magic, m Message, maxPayload uint32) ([]byte, error) {
	payload, err := Serialize(m)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(magic, m.Command(), payload, maxPayload)
}

// ReadTyped reads one frame from r and deserializes it into its
// registered Go type, combining DecodeStream and Deserialize.
func ReadTyped(r io.Reader, magic Magic, maxPayload uint32) (Message, error) {
	name, payload, err := DecodeStream(r, magic, maxPayload)
	if err != nil {
		return nil, err
	}
	return Deserialize(name, payload)
}
