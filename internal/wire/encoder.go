package wire

import (
	"encoding/binary"
	"math"
	"os"
)

// Encoder appends big-endian value encodings to a growable buffer.
// Descriptors registered during encoding travel on a side channel, in
// traversal order, never inline in the byte stream.
type Encoder struct {
	buf   []byte
	files []*os.File
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded payload accumulated so far.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Files returns the descriptors registered during encoding, in the
// order their owning values were encoded.
func (e *Encoder) Files() []*os.File {
	return e.files
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteU16(v uint16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) WriteU32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteU64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) WriteI32(v int32) {
	e.WriteU32(uint32(v))
}

func (e *Encoder) WriteI64(v int64) {
	e.WriteU64(uint64(v))
}

func (e *Encoder) WriteF32(v float32) {
	e.WriteU32(math.Float32bits(v))
}

func (e *Encoder) WriteF64(v float64) {
	e.WriteU64(math.Float64bits(v))
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteU8(1)
	} else {
		e.WriteU8(0)
	}
}

// WriteString writes a u32 length prefix followed by the raw bytes.
func (e *Encoder) WriteString(v string) {
	e.WriteU32(uint32(len(v)))
	e.buf = append(e.buf, v...)
}

// WriteBytes writes a u32 length prefix followed by the raw bytes.
func (e *Encoder) WriteBytes(v []byte) {
	e.WriteU32(uint32(len(v)))
	e.buf = append(e.buf, v...)
}

// WriteCount writes the element count of a sequence. Elements follow in
// order, encoded by the caller.
func (e *Encoder) WriteCount(n int) {
	e.WriteU32(uint32(n))
}

// WritePresence writes the one-byte flag that precedes an optional
// value. The payload follows only when present is true.
func (e *Encoder) WritePresence(present bool) {
	e.WriteBool(present)
}

// WriteDiscriminant writes the tag selecting a union variant. The
// active variant's payload follows.
func (e *Encoder) WriteDiscriminant(tag uint8) {
	e.WriteU8(tag)
}

// WriteFile registers a descriptor with the outgoing message; nothing
// is written inline. The receiver gets its own duplicate of the
// descriptor, so the caller keeps ownership of f.
func (e *Encoder) WriteFile(f *os.File) {
	e.files = append(e.files, f)
}
