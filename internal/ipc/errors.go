package ipc

import (
	"errors"

	"github.com/danmuck/portal/internal/endpoint"
	"github.com/danmuck/portal/internal/wire"
)

var (
	// ErrConnectionClosed reports a clean peer shutdown or local close.
	// In-flight synchronous calls fail with it; it is not escalated
	// further.
	ErrConnectionClosed = errors.New("ipc: connection closed")

	// ErrBadMessage reports an outbound message whose opcode is not in
	// the connection's endpoint table, or whose kind does not match the
	// operation (Call wants a request, Post wants an async message).
	// A local programming error, not a peer protocol violation.
	ErrBadMessage = errors.New("ipc: message does not fit endpoint")
)

// failureReason buckets a fatal connection error for metrics.
func failureReason(err error) string {
	var decodeErr *wire.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.Is(err, endpoint.ErrUnknownMessage):
		return "unknown_message"
	default:
		return "transport"
	}
}
