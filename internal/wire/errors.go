package wire

import (
	"errors"
	"fmt"
)

// ErrDecode is the sentinel wrapped by every DecodeError. Byte alignment
// with the peer is presumed lost once decoding fails, so callers treat
// any error matching this as fatal to the connection.
var ErrDecode = errors.New("wire: decode failed")

// DecodeError reports a malformed, truncated, or structurally
// inconsistent payload, with the cursor offset where decoding stopped.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: decode failed at offset %d: %s", e.Offset, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return ErrDecode
}

func decodeErrorf(offset int, format string, args ...any) error {
	return &DecodeError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
