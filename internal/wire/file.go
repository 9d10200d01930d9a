package wire

import (
	"errors"
	"os"
)

var ErrNoFile = errors.New("wire: encoding a File with no descriptor")

// File carries an open descriptor across the connection. The descriptor
// never appears in the byte stream; encode registers it with the
// message's side channel and decode pops the next one in order.
type File struct {
	f *os.File
}

func NewFile(f *os.File) File {
	return File{f: f}
}

// Take surrenders the received descriptor to the caller.
func (f *File) Take() *os.File {
	out := f.f
	f.f = nil
	return out
}

func (f File) MarshalWire(e *Encoder) error {
	if f.f == nil {
		return ErrNoFile
	}
	e.WriteFile(f.f)
	return nil
}

func (f *File) UnmarshalWire(d *Decoder) error {
	file, err := d.ReadFile()
	if err != nil {
		return err
	}
	f.f = file
	return nil
}
