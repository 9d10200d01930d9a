package endpoint

import "context"

// Stub is the dispatch target for one endpoint: it decodes the
// opcode-specific payload, invokes the typed handler, and for request
// opcodes seals the handler's return value as the reply envelope.
// Returning a nil envelope means no reply; returning an error tears the
// connection down.
//
// Handle runs on the connection's dispatch goroutine. It must not issue
// a synchronous call back over its own connection from that goroutine;
// calls over other connections are safe.
type Stub interface {
	Magic() uint32
	Name() string
	Handle(ctx context.Context, env *Envelope) (*Envelope, error)
}
