package wire

import (
	"errors"
	"math"
	"os"
	"testing"
)

func TestScalarRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.WriteU8(0xAB)
	e.WriteU16(0xCDEF)
	e.WriteU32(0xDEADBEEF)
	e.WriteU64(0x0102030405060708)
	e.WriteI32(-42)
	e.WriteI64(-1 << 40)
	e.WriteF32(1.5)
	e.WriteF64(math.Pi)
	e.WriteBool(true)
	e.WriteBool(false)

	d := NewDecoder(e.Bytes(), nil)
	if v, err := d.ReadU8(); err != nil || v != 0xAB {
		t.Fatalf("u8: %v %v", v, err)
	}
	if v, err := d.ReadU16(); err != nil || v != 0xCDEF {
		t.Fatalf("u16: %v %v", v, err)
	}
	if v, err := d.ReadU32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("u32: %v %v", v, err)
	}
	if v, err := d.ReadU64(); err != nil || v != 0x0102030405060708 {
		t.Fatalf("u64: %v %v", v, err)
	}
	if v, err := d.ReadI32(); err != nil || v != -42 {
		t.Fatalf("i32: %v %v", v, err)
	}
	if v, err := d.ReadI64(); err != nil || v != -1<<40 {
		t.Fatalf("i64: %v %v", v, err)
	}
	if v, err := d.ReadF32(); err != nil || v != 1.5 {
		t.Fatalf("f32: %v %v", v, err)
	}
	if v, err := d.ReadF64(); err != nil || v != math.Pi {
		t.Fatalf("f64: %v %v", v, err)
	}
	if v, err := d.ReadBool(); err != nil || v != true {
		t.Fatalf("bool: %v %v", v, err)
	}
	if v, err := d.ReadBool(); err != nil || v != false {
		t.Fatalf("bool: %v %v", v, err)
	}
	if err := d.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
}

func TestStringAndBytesRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.WriteString("héllo")
	e.WriteString("")
	e.WriteBytes([]byte{1, 2, 3})
	e.WriteBytes(nil)

	d := NewDecoder(e.Bytes(), nil)
	if v, err := d.ReadString(); err != nil || v != "héllo" {
		t.Fatalf("string: %q %v", v, err)
	}
	if v, err := d.ReadString(); err != nil || v != "" {
		t.Fatalf("empty string: %q %v", v, err)
	}
	if v, err := d.ReadBytes(); err != nil || len(v) != 3 || v[2] != 3 {
		t.Fatalf("bytes: %v %v", v, err)
	}
	if v, err := d.ReadBytes(); err != nil || len(v) != 0 {
		t.Fatalf("empty bytes: %v %v", v, err)
	}
	if err := d.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
}

func TestOptionalAndUnionShapes(t *testing.T) {
	e := NewEncoder()
	e.WritePresence(false)
	e.WritePresence(true)
	e.WriteI32(7)
	e.WriteDiscriminant(1)
	e.WriteString("variant-b")

	d := NewDecoder(e.Bytes(), nil)
	if present, err := d.ReadPresence(); err != nil || present {
		t.Fatalf("absent optional: %v %v", present, err)
	}
	present, err := d.ReadPresence()
	if err != nil || !present {
		t.Fatalf("present optional: %v %v", present, err)
	}
	if v, err := d.ReadI32(); err != nil || v != 7 {
		t.Fatalf("optional payload: %v %v", v, err)
	}
	tag, err := d.ReadDiscriminant()
	if err != nil || tag != 1 {
		t.Fatalf("discriminant: %v %v", tag, err)
	}
	if v, err := d.ReadString(); err != nil || v != "variant-b" {
		t.Fatalf("variant payload: %q %v", v, err)
	}
}

func TestUnknownDiscriminantIsDecodeError(t *testing.T) {
	d := NewDecoder([]byte{9}, nil)
	tag, err := d.ReadDiscriminant()
	if err != nil {
		t.Fatalf("read discriminant: %v", err)
	}
	err = d.UnknownDiscriminant(tag)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestBadBoolIsDecodeError(t *testing.T) {
	d := NewDecoder([]byte{2}, nil)
	if _, err := d.ReadBool(); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for bool byte 2, got %v", err)
	}
}

func TestLengthPrefixBeyondRemainingIsDecodeError(t *testing.T) {
	e := NewEncoder()
	e.WriteU32(1000)
	e.WriteBytes([]byte("xy"))
	data := e.Bytes()[:6] // prefix says 1000, only two bytes follow

	d := NewDecoder(data, nil)
	if _, err := d.ReadBytes(); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

// Every truncation of a valid encoding must produce a DecodeError,
// never a panic or a bogus value.
func TestEveryTruncationFailsCleanly(t *testing.T) {
	e := NewEncoder()
	e.WriteU32(77)
	e.WriteString("truncate me")
	e.WritePresence(true)
	e.WriteI64(-9)
	full := e.Bytes()

	decode := func(d *Decoder) error {
		if _, err := d.ReadU32(); err != nil {
			return err
		}
		if _, err := d.ReadString(); err != nil {
			return err
		}
		present, err := d.ReadPresence()
		if err != nil {
			return err
		}
		if present {
			if _, err := d.ReadI64(); err != nil {
				return err
			}
		}
		return d.Finish()
	}

	if err := decode(NewDecoder(full, nil)); err != nil {
		t.Fatalf("full input must decode: %v", err)
	}
	for n := 0; n < len(full); n++ {
		err := decode(NewDecoder(full[:n], nil))
		if !errors.Is(err, ErrDecode) {
			t.Fatalf("truncated to %d bytes: expected ErrDecode, got %v", n, err)
		}
	}
}

func TestDecodeErrorCarriesOffset(t *testing.T) {
	d := NewDecoder([]byte{1, 2}, nil)
	if _, err := d.ReadU8(); err != nil {
		t.Fatalf("read: %v", err)
	}
	_, err := d.ReadU32()
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if de.Offset != 1 {
		t.Fatalf("offset = %d, want 1", de.Offset)
	}
}

func TestFileRoundTripPreservesDescriptor(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()

	e := NewEncoder()
	e.WriteString("payload")
	f := NewFile(w)
	if err := f.MarshalWire(e); err != nil {
		t.Fatalf("marshal file: %v", err)
	}
	if len(e.Files()) != 1 {
		t.Fatalf("expected one registered descriptor, got %d", len(e.Files()))
	}

	d := NewDecoder(e.Bytes(), e.Files())
	if _, err := d.ReadString(); err != nil {
		t.Fatalf("read string: %v", err)
	}
	var got File
	if err := got.UnmarshalWire(d); err != nil {
		t.Fatalf("unmarshal file: %v", err)
	}
	if err := d.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	out := got.Take()
	if out == nil {
		t.Fatal("Take returned nil")
	}
	defer out.Close()
	if _, err := out.WriteString("ping"); err != nil {
		t.Fatalf("write through descriptor: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := r.Read(buf); err != nil || string(buf) != "ping" {
		t.Fatalf("read side: %q %v", buf, err)
	}
}

func TestEncodeFileWithoutDescriptorFails(t *testing.T) {
	e := NewEncoder()
	var f File
	if err := f.MarshalWire(e); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile, got %v", err)
	}
}

func TestDescriptorUnderflowIsDecodeError(t *testing.T) {
	d := NewDecoder(nil, nil)
	if _, err := d.ReadFile(); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestFinishRejectsTrailingBytes(t *testing.T) {
	d := NewDecoder([]byte{1, 2, 3}, nil)
	if _, err := d.ReadU8(); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := d.Finish(); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for trailing bytes, got %v", err)
	}
}

func TestFinishRejectsUnconsumedDescriptors(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	d := NewDecoder(nil, []*os.File{w})
	if err := d.Finish(); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for leftover descriptor, got %v", err)
	}
}
