package portalreq

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/danmuck/portal/internal/endpoint"
	"github.com/danmuck/portal/internal/ipc"
	"github.com/danmuck/portal/internal/transport"
	"github.com/danmuck/portal/internal/wire"
)

// ClientOptions configures a request portal client.
type ClientOptions struct {
	Logger zerolog.Logger
	// OnFinished receives completion notices. It runs on the
	// connection's dispatch goroutine and must not call back into the
	// client synchronously.
	OnFinished func(*RequestFinished)
	// OnClose runs once when the connection dies; reason is nil for a
	// clean shutdown.
	OnClose func(reason error)
}

// Client is the caller-facing side of the request portal.
type Client struct {
	conn *ipc.Connection
}

// Dial connects to the portal socket at path and starts dispatch.
func Dial(ctx context.Context, path string, opts ClientOptions) (*Client, error) {
	sock, err := transport.Dial(path)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, sock, opts)
}

// NewClient wraps an already-connected socket, e.g. one half of a
// socket pair handed down by a parent process.
func NewClient(ctx context.Context, sock *transport.Socket, opts ClientOptions) (*Client, error) {
	conn := ipc.NewConnection(sock, Endpoint(), ipc.Options{
		Logger: opts.Logger,
		OnClose: func(_ *ipc.Connection, reason error) {
			if opts.OnClose != nil {
				opts.OnClose(reason)
			}
		},
	})
	stub := &clientStub{ep: Endpoint(), onFinished: opts.OnFinished, log: opts.Logger}
	if err := conn.Start(ctx, stub); err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// StartRequest asks the server to begin a request and reports whether
// it was accepted.
func (c *Client) StartRequest(ctx context.Context, req *StartRequest) (StartOutcome, error) {
	var resp StartRequestResponse
	if err := c.conn.Call(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Outcome, nil
}

// GetHeaders fetches the response status and headers for a request.
func (c *Client) GetHeaders(ctx context.Context, id int64) (*GetHeadersResponse, error) {
	var resp GetHeadersResponse
	if err := c.conn.Call(ctx, &GetHeaders{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeliverFile passes f to the server for the request body and reports
// how many bytes the server wrote. The server receives its own
// duplicate of the descriptor; the caller still owns f and should
// close it once the call returns.
func (c *Client) DeliverFile(ctx context.Context, id int64, f *os.File) (uint64, error) {
	msg := &DeliverFile{ID: id, File: wire.NewFile(f)}
	var resp DeliverFileResponse
	if err := c.conn.Call(ctx, msg, &resp); err != nil {
		return 0, err
	}
	return resp.Written, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// clientStub handles the server-initiated half of the schema.
type clientStub struct {
	ep         endpoint.Endpoint
	onFinished func(*RequestFinished)
	log        zerolog.Logger
}

func (s *clientStub) Magic() uint32 { return Magic }

func (s *clientStub) Name() string { return s.ep.Name }

func (s *clientStub) Handle(_ context.Context, env *endpoint.Envelope) (*endpoint.Envelope, error) {
	switch env.Opcode {
	case OpRequestFinished:
		var msg RequestFinished
		if err := decodeBody(env, &msg); err != nil {
			return nil, err
		}
		if s.onFinished != nil {
			s.onFinished(&msg)
		} else {
			s.log.Debug().Int64("id", msg.ID).Msg("request finished, no listener")
		}
		return nil, nil
	default:
		env.CloseFiles()
		return nil, s.ep.UnknownOpcode(env.Opcode)
	}
}
