package endpoint

import (
	"errors"
	"fmt"
)

// ErrUnknownMessage reports an opcode absent from the endpoint's table
// or an envelope whose magic does not match the stub's. Either means
// the peers disagree on the schema, which is fatal to the connection.
var ErrUnknownMessage = errors.New("endpoint: unknown message")

// Kind is a message's cardinality within its endpoint.
type Kind uint8

const (
	// Async messages expect no reply.
	Async Kind = iota
	// Request messages block the sender until the paired Response.
	Request
	// Response messages resolve the pending call carrying their seq.
	Response
)

func (k Kind) String() string {
	switch k {
	case Async:
		return "async"
	case Request:
		return "request"
	case Response:
		return "response"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MessageInfo describes one opcode in an endpoint's table.
type MessageInfo struct {
	Name string
	Kind Kind
}

// Endpoint is the immutable schema for one named service channel.
type Endpoint struct {
	// Magic identifies which schema a byte stream belongs to.
	Magic uint32
	Name  string
	// Messages maps opcode to shape metadata. Fixed at construction.
	Messages map[uint32]MessageInfo
}

// Info looks up an opcode in the table.
func (ep Endpoint) Info(opcode uint32) (MessageInfo, bool) {
	info, ok := ep.Messages[opcode]
	return info, ok
}

// UnknownOpcode builds the fatal error for an opcode outside the table.
func (ep Endpoint) UnknownOpcode(opcode uint32) error {
	return fmt.Errorf("%w: opcode %#x not in endpoint %s", ErrUnknownMessage, opcode, ep.Name)
}

// MagicMismatch builds the fatal error for an envelope from a different
// schema.
func (ep Endpoint) MagicMismatch(got uint32) error {
	return fmt.Errorf("%w: magic %#x does not match endpoint %s (%#x)", ErrUnknownMessage, got, ep.Name, ep.Magic)
}
