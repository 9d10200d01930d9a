package endpoint

import (
	"os"

	"github.com/danmuck/portal/internal/wire"
)

// Message is anything that can travel over a connection: it names its
// opcode and encodes its fields.
type Message interface {
	Opcode() uint32
	wire.Marshaler
}

// Envelope is one decoded frame: the endpoint magic, the opcode scoped
// under it, the correlation seq (zero for async messages), the field
// bytes, and the descriptors that arrived with the frame. Consumed
// exactly once by the receiving connection's dispatch step.
type Envelope struct {
	Magic  uint32
	Opcode uint32
	Seq    uint64
	Data   []byte
	Files  []*os.File
}

// Seal encodes msg into an envelope under ep's magic.
func Seal(ep Endpoint, seq uint64, msg Message) (*Envelope, error) {
	e := wire.NewEncoder()
	if err := msg.MarshalWire(e); err != nil {
		return nil, err
	}
	return &Envelope{
		Magic:  ep.Magic,
		Opcode: msg.Opcode(),
		Seq:    seq,
		Data:   e.Bytes(),
		Files:  e.Files(),
	}, nil
}

// Reply seals a response to req, echoing its seq.
func Reply(ep Endpoint, req *Envelope, msg Message) (*Envelope, error) {
	return Seal(ep, req.Seq, msg)
}

// EncodeFrame renders the envelope as a frame payload:
// [magic u32][opcode u32][seq u64][field bytes].
func (env *Envelope) EncodeFrame() []byte {
	e := wire.NewEncoder()
	e.WriteU32(env.Magic)
	e.WriteU32(env.Opcode)
	e.WriteU64(env.Seq)
	return append(e.Bytes(), env.Data...)
}

// DecodeFrame parses a frame payload back into an envelope. The
// envelope adopts the frame's descriptors.
func DecodeFrame(payload []byte, files []*os.File) (*Envelope, error) {
	d := wire.NewDecoder(payload, nil)
	magic, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	opcode, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	seq, err := d.ReadU64()
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Magic:  magic,
		Opcode: opcode,
		Seq:    seq,
		Data:   payload[len(payload)-d.Remaining():],
		Files:  files,
	}, nil
}

// Decoder returns a decoder positioned over the envelope's field bytes
// and descriptor queue.
func (env *Envelope) Decoder() *wire.Decoder {
	return wire.NewDecoder(env.Data, env.Files)
}

// CloseFiles releases descriptors that never reached a decoder, e.g.
// when an envelope is dropped before dispatch.
func (env *Envelope) CloseFiles() {
	for _, f := range env.Files {
		f.Close()
	}
	env.Files = nil
}
