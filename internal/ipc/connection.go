package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/portal/internal/endpoint"
	"github.com/danmuck/portal/internal/observability"
	"github.com/danmuck/portal/internal/transport"
	"github.com/danmuck/portal/internal/wire"
)

// State is a connection's lifecycle phase.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures a connection. The zero value is usable.
type Options struct {
	Logger zerolog.Logger
	// ClientID is the server-allocated id, zero on the client side.
	ClientID uint64
	// OnClose runs exactly once when the connection dies. reason is
	// nil for a clean shutdown, otherwise the fatal error.
	OnClose func(c *Connection, reason error)
	// MaxFrameBytes overrides the transport frame limit when nonzero.
	MaxFrameBytes uint32
}

// Connection turns one transport socket into a bidirectional typed
// message channel. It owns the socket exclusively.
type Connection struct {
	sock *transport.Socket
	ep   endpoint.Endpoint
	opts Options
	log  zerolog.Logger
	stub endpoint.Stub

	seq   atomic.Uint64
	state atomic.Int32

	// writeMu serializes frame writes so concurrent senders cannot
	// interleave bytes on the stream.
	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[uint64]chan *endpoint.Envelope
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewConnection wraps sock for the given endpoint. Call Start to bind
// the stub and begin dispatch.
func NewConnection(sock *transport.Socket, ep endpoint.Endpoint, opts Options) *Connection {
	if opts.MaxFrameBytes != 0 {
		sock.SetMaxFrameBytes(opts.MaxFrameBytes)
	}
	return &Connection{
		sock:    sock,
		ep:      ep,
		opts:    opts,
		log:     opts.Logger,
		pending: make(map[uint64]chan *endpoint.Envelope),
		closeCh: make(chan struct{}),
	}
}

// Start binds the dispatch target and launches the dispatch goroutine.
// The stub's magic must match the endpoint's.
func (c *Connection) Start(ctx context.Context, stub endpoint.Stub) error {
	if stub.Magic() != c.ep.Magic {
		return fmt.Errorf("ipc: stub %s magic %#x does not match endpoint %s (%#x)",
			stub.Name(), stub.Magic(), c.ep.Name, c.ep.Magic)
	}
	c.stub = stub
	go c.dispatchLoop(ctx)
	return nil
}

func (c *Connection) ClientID() uint64 {
	return c.opts.ClientID
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

// Post sends an asynchronous message. It returns once the frame is
// handed to the transport; no reply is expected.
func (c *Connection) Post(msg endpoint.Message) error {
	info, ok := c.ep.Info(msg.Opcode())
	if !ok {
		return fmt.Errorf("%w: opcode %#x", ErrBadMessage, msg.Opcode())
	}
	if info.Kind != endpoint.Async {
		return fmt.Errorf("%w: %s is %s, not async", ErrBadMessage, info.Name, info.Kind)
	}
	if c.State() != StateOpen {
		return ErrConnectionClosed
	}
	env, err := endpoint.Seal(c.ep, 0, msg)
	if err != nil {
		return fmt.Errorf("ipc: encoding %s: %w", info.Name, err)
	}
	return c.send(env)
}

// Call sends a request and blocks until the correlated response
// arrives, the connection dies, or ctx expires. Context expiry abandons
// this call only; the connection stays usable and a late reply is
// dropped.
func (c *Connection) Call(ctx context.Context, req endpoint.Message, reply wire.Unmarshaler) error {
	info, ok := c.ep.Info(req.Opcode())
	if !ok {
		return fmt.Errorf("%w: opcode %#x", ErrBadMessage, req.Opcode())
	}
	if info.Kind != endpoint.Request {
		return fmt.Errorf("%w: %s is %s, not a request", ErrBadMessage, info.Name, info.Kind)
	}

	seq := c.seq.Add(1)
	ch := make(chan *endpoint.Envelope, 1)

	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.pending[seq] = ch
	c.mu.Unlock()

	env, err := endpoint.Seal(c.ep, seq, req)
	if err != nil {
		c.abandon(seq, ch)
		return fmt.Errorf("ipc: encoding %s: %w", info.Name, err)
	}
	if err := c.send(env); err != nil {
		c.abandon(seq, ch)
		return err
	}

	select {
	case resp := <-ch:
		return c.decodeReply(info.Name, resp, reply)
	case <-c.closeCh:
		// The reply may have been resolved just before death.
		select {
		case resp := <-ch:
			return c.decodeReply(info.Name, resp, reply)
		default:
			return ErrConnectionClosed
		}
	case <-ctx.Done():
		c.abandon(seq, ch)
		return fmt.Errorf("ipc: call %s: %w", info.Name, ctx.Err())
	}
}

func (c *Connection) decodeReply(name string, resp *endpoint.Envelope, reply wire.Unmarshaler) error {
	d := resp.Decoder()
	if err := reply.UnmarshalWire(d); err != nil {
		c.die(err)
		return fmt.Errorf("ipc: decoding reply to %s: %w", name, err)
	}
	if err := d.Finish(); err != nil {
		c.die(err)
		return fmt.Errorf("ipc: decoding reply to %s: %w", name, err)
	}
	return nil
}

// abandon removes a pending slot. If the reply raced in first it is
// discarded with its descriptors.
func (c *Connection) abandon(seq uint64, ch chan *endpoint.Envelope) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
	select {
	case resp := <-ch:
		resp.CloseFiles()
	default:
	}
}

func (c *Connection) send(env *endpoint.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.sock.Send(env.EncodeFrame(), env.Files); err != nil {
		c.die(err)
		return fmt.Errorf("ipc: send: %w", err)
	}
	return nil
}

// dispatchLoop is the connection's single reader. It resolves replies
// to pending calls and hands everything else to the stub, in wire
// order.
func (c *Connection) dispatchLoop(ctx context.Context) {
	for {
		payload, files, err := c.sock.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrPeerClosed) || errors.Is(err, transport.ErrSocketClosed) {
				c.die(nil)
			} else {
				c.die(err)
			}
			return
		}
		env, err := endpoint.DecodeFrame(payload, files)
		if err != nil {
			c.die(err)
			return
		}
		if env.Magic != c.ep.Magic {
			env.CloseFiles()
			c.die(c.ep.MagicMismatch(env.Magic))
			return
		}
		info, ok := c.ep.Info(env.Opcode)
		if !ok {
			env.CloseFiles()
			c.die(c.ep.UnknownOpcode(env.Opcode))
			return
		}

		if info.Kind == endpoint.Response {
			c.resolve(env)
			continue
		}

		start := time.Now()
		reply, err := c.stub.Handle(ctx, env)
		observability.RecordDispatch(c.ep.Name, info.Name, time.Since(start))
		if err != nil {
			c.die(err)
			return
		}
		switch {
		case info.Kind == endpoint.Request:
			if reply == nil {
				c.die(fmt.Errorf("ipc: handler for request %s produced no reply", info.Name))
				return
			}
			if err := c.send(reply); err != nil {
				return
			}
		case reply != nil:
			c.log.Warn().Str("message", info.Name).Msg("handler replied to async message, dropping")
			reply.CloseFiles()
		}
	}
}

// resolve delivers a response envelope to its pending call.
func (c *Connection) resolve(env *endpoint.Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.Seq]
	if ok {
		delete(c.pending, env.Seq)
	}
	c.mu.Unlock()
	if !ok {
		// Caller gave up (context expiry) or the peer invented a seq.
		c.log.Debug().Uint64("seq", env.Seq).Msg("dropping uncorrelated reply")
		env.CloseFiles()
		return
	}
	ch <- env
}

// die moves the connection to Closed: the socket closes, every pending
// call fails with ErrConnectionClosed, and the owner is notified once.
// Idempotent.
func (c *Connection) die(reason error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		if reason != nil {
			c.log.Error().Err(reason).Msg("connection failed")
			observability.RecordConnectionFailure(c.ep.Name, failureReason(reason))
		} else {
			c.log.Debug().Msg("connection closed")
		}
		c.sock.Close()

		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()

		close(c.closeCh)
		c.state.Store(int32(StateClosed))

		if c.opts.OnClose != nil {
			c.opts.OnClose(c, reason)
		}
	})
}

// Close shuts the connection down locally. Pending calls fail with
// ErrConnectionClosed. Safe to call more than once.
func (c *Connection) Close() error {
	c.die(nil)
	return nil
}
