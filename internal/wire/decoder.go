package wire

import (
	"encoding/binary"
	"math"
	"os"
)

// Decoder walks an encoded payload with an offset cursor, popping
// descriptors off the incoming message's queue in the same order the
// encoder registered them. Decoding is sequential: two fields that both
// carry descriptors must be decoded in declared order.
type Decoder struct {
	data  []byte
	off   int
	files []*os.File
}

func NewDecoder(data []byte, files []*os.File) *Decoder {
	return &Decoder{data: data, files: files}
}

// Remaining reports how many payload bytes have not been consumed.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.off
}

// RemainingFiles reports how many attached descriptors have not been
// consumed.
func (d *Decoder) RemainingFiles() int {
	return len(d.files)
}

func (d *Decoder) need(n int) error {
	if d.Remaining() < n {
		return decodeErrorf(d.off, "need %d bytes, %d remain", n, d.Remaining())
	}
	return nil
}

func (d *Decoder) take(n int) []byte {
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *Decoder) ReadU8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	return d.take(1)[0], nil
}

func (d *Decoder) ReadU16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(d.take(2)), nil
}

func (d *Decoder) ReadU32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(d.take(4)), nil
}

func (d *Decoder) ReadU64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(d.take(8)), nil
}

func (d *Decoder) ReadI32() (int32, error) {
	v, err := d.ReadU32()
	return int32(v), err
}

func (d *Decoder) ReadI64() (int64, error) {
	v, err := d.ReadU64()
	return int64(v), err
}

func (d *Decoder) ReadF32() (float32, error) {
	v, err := d.ReadU32()
	return math.Float32frombits(v), err
}

func (d *Decoder) ReadF64() (float64, error) {
	v, err := d.ReadU64()
	return math.Float64frombits(v), err
}

func (d *Decoder) ReadBool() (bool, error) {
	v, err := d.ReadU8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, decodeErrorf(d.off-1, "invalid bool byte %#x", v)
	}
}

// readLength validates a u32 length prefix against the remaining input
// before any allocation happens.
func (d *Decoder) readLength() (int, error) {
	n, err := d.ReadU32()
	if err != nil {
		return 0, err
	}
	if int(n) > d.Remaining() {
		return 0, decodeErrorf(d.off, "length prefix %d exceeds %d remaining bytes", n, d.Remaining())
	}
	return int(n), nil
}

func (d *Decoder) ReadString() (string, error) {
	n, err := d.readLength()
	if err != nil {
		return "", err
	}
	return string(d.take(n)), nil
}

func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.readLength()
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.take(n))
	return out, nil
}

// ReadCount reads a sequence's element count. Each element still to be
// decoded needs at least one byte, which bounds hostile counts without
// knowing element sizes.
func (d *Decoder) ReadCount() (int, error) {
	n, err := d.ReadU32()
	if err != nil {
		return 0, err
	}
	if int(n) > d.Remaining() {
		return 0, decodeErrorf(d.off, "sequence count %d exceeds %d remaining bytes", n, d.Remaining())
	}
	return int(n), nil
}

// ReadPresence reads the one-byte flag preceding an optional value.
func (d *Decoder) ReadPresence() (bool, error) {
	return d.ReadBool()
}

// ReadDiscriminant reads a union tag. Callers reject tags outside their
// closed variant set with UnknownDiscriminant.
func (d *Decoder) ReadDiscriminant() (uint8, error) {
	return d.ReadU8()
}

// UnknownDiscriminant builds the DecodeError for a union tag outside
// the decoder's variant set. Never a silent default.
func (d *Decoder) UnknownDiscriminant(tag uint8) error {
	return decodeErrorf(d.off-1, "unknown union discriminant %d", tag)
}

// ReadFile pops the next attached descriptor. Ownership moves to the
// decoded value.
func (d *Decoder) ReadFile() (*os.File, error) {
	if len(d.files) == 0 {
		return nil, decodeErrorf(d.off, "descriptor queue exhausted")
	}
	f := d.files[0]
	d.files = d.files[1:]
	return f, nil
}

// Finish verifies the decode consumed exactly what the matching encode
// produced. Leftover bytes or descriptors mean the peers disagree on
// the message shape; leftover descriptors are closed so they cannot
// leak into a later message.
func (d *Decoder) Finish() error {
	if d.Remaining() > 0 {
		return decodeErrorf(d.off, "%d trailing bytes after message", d.Remaining())
	}
	if len(d.files) > 0 {
		n := len(d.files)
		for _, f := range d.files {
			f.Close()
		}
		d.files = nil
		return decodeErrorf(d.off, "%d unconsumed descriptors after message", n)
	}
	return nil
}
