package endpoint

import (
	"errors"
	"testing"

	"github.com/danmuck/portal/internal/wire"
)

const testMagic = 0x54455354 // "TEST"

func testEndpoint() Endpoint {
	return Endpoint{
		Magic: testMagic,
		Name:  "test",
		Messages: map[uint32]MessageInfo{
			1: {Name: "Ping", Kind: Request},
			2: {Name: "Pong", Kind: Response},
			3: {Name: "Note", Kind: Async},
		},
	}
}

type ping struct {
	Text string
}

func (*ping) Opcode() uint32 { return 1 }

func (p *ping) MarshalWire(e *wire.Encoder) error {
	e.WriteString(p.Text)
	return nil
}

func (p *ping) UnmarshalWire(d *wire.Decoder) error {
	var err error
	p.Text, err = d.ReadString()
	return err
}

func TestSealEncodeDecodeRoundTrip(t *testing.T) {
	ep := testEndpoint()
	env, err := Seal(ep, 7, &ping{Text: "hello"})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if env.Magic != testMagic || env.Opcode != 1 || env.Seq != 7 {
		t.Fatalf("envelope header: %+v", env)
	}

	out, err := DecodeFrame(env.EncodeFrame(), nil)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if out.Magic != env.Magic || out.Opcode != env.Opcode || out.Seq != env.Seq {
		t.Fatalf("header mismatch: got=%+v want=%+v", out, env)
	}

	var p ping
	d := out.Decoder()
	if err := p.UnmarshalWire(d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := d.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if p.Text != "hello" {
		t.Fatalf("text = %q", p.Text)
	}
}

func TestReplyEchoesSeq(t *testing.T) {
	ep := testEndpoint()
	req, err := Seal(ep, 42, &ping{Text: "q"})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	resp, err := Reply(ep, req, &ping{Text: "a"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if resp.Seq != 42 {
		t.Fatalf("reply seq = %d, want 42", resp.Seq)
	}
}

func TestDecodeFrameTruncatedHeader(t *testing.T) {
	if _, err := DecodeFrame([]byte{1, 2, 3}, nil); !errors.Is(err, wire.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestUnknownOpcodeError(t *testing.T) {
	ep := testEndpoint()
	if _, ok := ep.Info(0xFFFF); ok {
		t.Fatal("0xFFFF must not be a known opcode")
	}
	err := ep.UnknownOpcode(0xFFFF)
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestMagicMismatchError(t *testing.T) {
	ep := testEndpoint()
	if err := ep.MagicMismatch(0xBAD); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}
