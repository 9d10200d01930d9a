package portalreq

import (
	"context"

	"github.com/danmuck/portal/internal/endpoint"
	"github.com/danmuck/portal/internal/wire"
)

// Service is the server-side behavior behind the request portal. One
// Service instance backs one client connection.
type Service interface {
	StartRequest(ctx context.Context, req *StartRequest) (StartOutcome, error)
	GetHeaders(ctx context.Context, req *GetHeaders) (*GetHeadersResponse, error)
	// DeliverFile may return a completion notice alongside the reply;
	// the stub posts it to the client. Because the notice is posted
	// while the reply is still queued, it can reach the client before
	// the DeliverFile reply does. Callers must not assume ordering
	// between the two.
	DeliverFile(ctx context.Context, req *DeliverFile) (*DeliverFileResponse, *RequestFinished, error)
}

// Poster is the slice of a connection the stub needs for asynchronous
// notices.
type Poster interface {
	Post(msg endpoint.Message) error
}

// Stub decodes request portal messages and routes them to a Service.
type Stub struct {
	ep   endpoint.Endpoint
	svc  Service
	post Poster
}

func NewStub(svc Service, post Poster) *Stub {
	return &Stub{ep: Endpoint(), svc: svc, post: post}
}

func (s *Stub) Magic() uint32 { return Magic }

func (s *Stub) Name() string { return s.ep.Name }

func (s *Stub) Handle(ctx context.Context, env *endpoint.Envelope) (*endpoint.Envelope, error) {
	switch env.Opcode {
	case OpStartRequest:
		var req StartRequest
		if err := decodeBody(env, &req); err != nil {
			return nil, err
		}
		outcome, err := s.svc.StartRequest(ctx, &req)
		if err != nil {
			return nil, err
		}
		return endpoint.Reply(s.ep, env, &StartRequestResponse{Outcome: outcome})

	case OpGetHeaders:
		var req GetHeaders
		if err := decodeBody(env, &req); err != nil {
			return nil, err
		}
		resp, err := s.svc.GetHeaders(ctx, &req)
		if err != nil {
			return nil, err
		}
		return endpoint.Reply(s.ep, env, resp)

	case OpDeliverFile:
		var req DeliverFile
		if err := decodeBody(env, &req); err != nil {
			return nil, err
		}
		resp, finished, err := s.svc.DeliverFile(ctx, &req)
		if err != nil {
			return nil, err
		}
		if finished != nil {
			if err := s.post.Post(finished); err != nil {
				return nil, err
			}
		}
		return endpoint.Reply(s.ep, env, resp)

	default:
		env.CloseFiles()
		return nil, s.ep.UnknownOpcode(env.Opcode)
	}
}

// decodeBody unmarshals the envelope fields and verifies the message
// consumed every byte and descriptor it was sent with.
func decodeBody(env *endpoint.Envelope, msg wire.Unmarshaler) error {
	d := env.Decoder()
	if err := msg.UnmarshalWire(d); err != nil {
		return err
	}
	return d.Finish()
}
