// Package channel implements the Channel (C5): one bidirectional framed
// connection, its send/receive goroutines, and its typed subscription
// fan-out.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/log"
	"github.com/darkrenaissance/darkfi-sub003/message"
	"github.com/darkrenaissance/darkfi-sub003/transport"

	"github.com/btcsuite/btclog"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/queue"
	"github.com/lightningnetwork/lnd/ticker"
)

var clog = log.Disabled()

// UseLogger redirects the package-level subsystem logger.
func UseLogger(l btclog.Logger) { clog = l }

// outgoingMsg pairs a message with an optional completion signal,
// mirroring the teacher's outgoinMsg (peer.go).
type outgoingMsg struct {
	msg      message.Message
	sentChan chan struct{}
}

// Config bundles the per-channel parameters a Session supplies at
// creation time.
type Config struct {
	Magic             message.Magic
	MaxPayload        uint32
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	OutgoingQueueLen  int
}

// Channel is one bidirectional, framed connection (spec §4.4).
// Concurrency shape is grounded directly on the teacher's peer struct:
// a queueHandler draining into a single-slot sendQueue that writeHandler
// drains onto the wire, plus a readHandler dispatching decoded frames.
type Channel struct {
	id uint64

	stream transport.Stream
	peer   addr.Address
	out    bool // outbound direction flag

	cfg Config

	state int32 // atomic State

	outQ        *queue.ConcurrentQueue
	outQueueLen int

	heartbeat *ticker.Ticker

	lastSeen    int64 // unix nano, atomic
	lastSendCmd atomic.Value
	lastRecvCmd atomic.Value

	bytesSent     uint64
	bytesReceived uint64

	missedPongs int32

	subMu sync.Mutex
	subs  map[string][]subscriberEntry

	nextSubID uint64

	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup

	onStop func(*Channel) // P2P registry removal hook, set by the owning Session
}

// New constructs a Channel over an already-established stream. The
// caller (a Session) is responsible for running the handshake before
// calling Start.
func New(id uint64, stream transport.Stream, outbound bool, cfg Config) *Channel {
	if cfg.OutgoingQueueLen <= 0 {
		cfg.OutgoingQueueLen = 50
	}

	c := &Channel{
		id:          id,
		stream:      stream,
		peer:        stream.PeerAddress(),
		out:         outbound,
		cfg:         cfg,
		outQueueLen: cfg.OutgoingQueueLen,
		subs:        make(map[string][]subscriberEntry),
		quit:        make(chan struct{}),
	}
	c.lastSendCmd.Store("")
	c.lastRecvCmd.Store("")
	atomic.StoreInt32(&c.state, int32(StateCreated))

	if cfg.HeartbeatInterval > 0 {
		c.heartbeat = ticker.New(cfg.HeartbeatInterval)
	}
	return c
}

// ID returns the channel's stable monotonic identifier.
func (c *Channel) ID() uint64 { return c.id }

// PeerAddress returns the remote address this channel is connected to.
func (c *Channel) PeerAddress() addr.Address { return c.peer }

// Outbound reports whether this channel was created by an outbound
// dial (true) or an inbound accept (false).
func (c *Channel) Outbound() bool { return c.out }

// State returns the channel's current lifecycle stage.
func (c *Channel) State() State { return State(atomic.LoadInt32(&c.state)) }

func (c *Channel) setState(s State) { atomic.StoreInt32(&c.state, int32(s)) }

// Done returns a channel closed once Stop has begun, letting callers
// block until this Channel dies without polling State().
func (c *Channel) Done() <-chan struct{} { return c.quit }

// SetStopHook installs the callback run once stop() completes, used by
// the owning Session to remove the channel from the P2P registry (spec
// §4.4: "removes self from P2P registry").
func (c *Channel) SetStopHook(f func(*Channel)) { c.onStop = f }

// Info is the observability snapshot returned by P2P.Channels() (spec
// §4.4 info()/§4.7 channels()).
type Info struct {
	ID           uint64
	Address      addr.Address
	Outbound     bool
	State        State
	LastSeen     time.Time
	LastSendName string
	LastRecvName string
}

// Info reports the channel's current observable snapshot.
func (c *Channel) Info() Info {
	return Info{
		ID:           c.id,
		Address:      c.peer,
		Outbound:     c.out,
		State:        c.State(),
		LastSeen:     time.Unix(0, atomic.LoadInt64(&c.lastSeen)),
		LastSendName: c.lastSendCmd.Load().(string),
		LastRecvName: c.lastRecvCmd.Load().(string),
	}
}

// Start launches the queue/write goroutines, marking the channel
// Handshaking (spec §4.4). The caller is expected to drive the
// handshake synchronously using SendSync/ReadOne-style primitives
// before calling StartReceiveLoop.
func (c *Channel) Start() {
	c.setState(StateHandshaking)

	c.outQ = queue.NewConcurrentQueue(c.outQueueLen)
	c.outQ.Start()

	c.wg.Add(1)
	go c.writeHandler()

	if c.heartbeat != nil {
		c.heartbeat.Resume()
	}
}

// ReadOne synchronously reads and decodes a single frame, for use
// during the handshake window before StartReceiveLoop takes over the
// stream (grounded on peer.go's Start(): sendInitMsg followed by one
// blocking readNextMessage, before readHandler is spawned).
func (c *Channel) ReadOne(ctx context.Context) (message.Message, error) {
	type result struct {
		msg message.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := message.ReadTyped(c.stream, c.cfg.Magic, c.cfg.MaxPayload)
		done <- result{msg, err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			c.logWireMessage(r.msg, true)
			c.lastRecvCmd.Store(r.msg.Command())
			atomic.StoreInt64(&c.lastSeen, time.Now().UnixNano())
		}
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, ErrChannelStopped
	}
}

// StartReceiveLoop starts the frame-decoding dispatch loop. Called once
// the handshake (C9) has completed, transitioning the channel to
// Running.
func (c *Channel) StartReceiveLoop() {
	c.setState(StateRunning)
	c.wg.Add(1)
	go c.readHandler()

	if c.heartbeat != nil {
		c.wg.Add(1)
		go c.heartbeatHandler()
	}
}

// Stop idempotently tears the channel down: closes the stream, waits for
// the channel's goroutines to exit, signals every subscription to
// complete, and invokes the registry removal hook (spec §4.4). Sends
// still queued when Stop begins are discarded, not flushed.
func (c *Channel) Stop() error {
	var err error
	c.quitOnce.Do(func() {
		c.setState(StateStopping)
		close(c.quit)

		if c.heartbeat != nil {
			c.heartbeat.Stop()
		}
		if c.outQ != nil {
			c.outQ.Stop()
		}

		err = c.stream.Close()
		c.wg.Wait()

		c.closeSubscriptions()
		c.setState(StateStopped)

		if c.onStop != nil {
			c.onStop(c)
		}
	})
	return err
}

// Send enqueues msg for delivery and blocks until it has been written
// (or the channel stops first).
func (c *Channel) Send(msg message.Message) error {
	done := make(chan struct{})
	if err := c.QueueMessage(msg, done); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-c.quit:
		return ErrChannelStopped
	}
}

// QueueMessage enqueues msg without blocking for delivery; if doneChan
// is non-nil it is closed once the message has been written.
func (c *Channel) QueueMessage(msg message.Message, doneChan chan struct{}) error {
	if c.State() == StateStopped || c.State() == StateStopping {
		return ErrChannelStopped
	}
	select {
	case c.outQ.ChanIn() <- outgoingMsg{msg: msg, sentChan: doneChan}:
		return nil
	case <-c.quit:
		return ErrChannelStopped
	}
}

// writeHandler owns the write half of the stream, draining the outbound
// ConcurrentQueue and framing each message (grounded on peer.go's
// writeHandler/queueHandler pair, collapsed into lnd/queue's own
// aggressive-drain implementation of the same pattern).
func (c *Channel) writeHandler() {
	defer c.wg.Done()

	for {
		select {
		case item := <-c.outQ.ChanOut():
			out := item.(outgoingMsg)
			err := c.writeMessage(out.msg)
			if err != nil {
				clog.Errorf("channel %d: write to %v failed: %v", c.id, c.peer, err)
				go c.Stop()
				return
			}
			if out.sentChan != nil {
				close(out.sentChan)
			}
		case <-c.quit:
			return
		}
	}
}

func (c *Channel) writeMessage(msg message.Message) error {
	c.logWireMessage(msg, false)

	frame, err := message.Encode(c.cfg.Magic, msg, c.cfg.MaxPayload)
	if err != nil {
		return err
	}

	if c.cfg.WriteTimeout > 0 {
		if deadliner, ok := c.stream.(interface{ SetWriteDeadline(time.Time) error }); ok {
			deadliner.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		}
	}

	n, err := c.stream.Write(frame)
	atomic.AddUint64(&c.bytesSent, uint64(n))
	if err != nil {
		return err
	}
	c.lastSendCmd.Store(msg.Command())
	atomic.StoreInt64(&c.lastSeen, time.Now().UnixNano())
	return nil
}

// readHandler reads frames in series and dispatches each to its
// command's subscribers (grounded on peer.go's readHandler).
func (c *Channel) readHandler() {
	defer c.wg.Done()

	for {
		select {
		case <-c.quit:
			return
		default:
		}

		msg, err := message.ReadTyped(c.stream, c.cfg.Magic, c.cfg.MaxPayload)
		if err != nil {
			// A well-formed frame whose command has no registered type
			// is dropped; any codec failure ends the channel.
			var codecErr *message.CodecError
			if !errors.As(err, &codecErr) {
				clog.Debugf("channel %d: dropping frame from %v: %v", c.id, c.peer, err)
				continue
			}
			clog.Infof("channel %d: unable to read from %v: %v", c.id, c.peer, err)
			go c.Stop()
			return
		}

		c.logWireMessage(msg, true)
		c.lastRecvCmd.Store(msg.Command())
		atomic.StoreInt64(&c.lastSeen, time.Now().UnixNano())

		c.dispatch(msg)
	}
}

// Touch resets the missed-heartbeat counter; called by the heartbeat
// protocol (C9) whenever a pong is received for this channel (spec
// §4.8: "missing two consecutive pongs stops the channel").
func (c *Channel) Touch() {
	atomic.StoreInt32(&c.missedPongs, 0)
}

func (c *Channel) heartbeatHandler() {
	defer c.wg.Done()

	for {
		select {
		case <-c.heartbeat.Ticks():
			if atomic.AddInt32(&c.missedPongs, 1) >= 2 {
				clog.Warnf("channel %d: missed heartbeat from %v, stopping", c.id, c.peer)
				go c.Stop()
				return
			}
		case <-c.quit:
			return
		}
	}
}

// logWireMessage mirrors peer.go's debug/trace dump of each frame.
func (c *Channel) logWireMessage(msg message.Message, read bool) {
	verb := "Sending"
	if read {
		verb = "Received"
	}
	clog.Debugf("%s %s message to/from %v on channel %d", verb, msg.Command(), c.peer, c.id)
	clog.Tracef("%s", newLogClosure(func() string { return spew.Sdump(msg) }))
}

type logClosure func() string

func (c logClosure) String() string { return c() }

func newLogClosure(f func() string) logClosure { return logClosure(f) }

// WithContext wraps a context-aware dial/handshake step so callers can
// cancel channel setup without leaking the underlying stream (used by
// Session drivers during the handshake window before StartReceiveLoop).
func (c *Channel) WithContext(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrChannelStopped
	}
}
