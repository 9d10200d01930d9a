package portalreq

import (
	"errors"

	"github.com/danmuck/portal/internal/endpoint"
	"github.com/danmuck/portal/internal/wire"
)

// Magic identifies the request portal schema: "RQST".
const Magic uint32 = 0x52515354

const (
	OpStartRequest         uint32 = 1
	OpStartRequestResponse uint32 = 2
	OpGetHeaders           uint32 = 3
	OpGetHeadersResponse   uint32 = 4
	OpDeliverFile          uint32 = 5
	OpDeliverFileResponse  uint32 = 6
	OpRequestFinished      uint32 = 7
)

// Endpoint returns the request portal schema. The table is fixed:
// adding an opcode means updating the dispatch switches in this
// package, which the compiler and tests enforce.
func Endpoint() endpoint.Endpoint {
	return endpoint.Endpoint{
		Magic: Magic,
		Name:  "request-portal",
		Messages: map[uint32]endpoint.MessageInfo{
			OpStartRequest:         {Name: "StartRequest", Kind: endpoint.Request},
			OpStartRequestResponse: {Name: "StartRequestResponse", Kind: endpoint.Response},
			OpGetHeaders:           {Name: "GetHeaders", Kind: endpoint.Request},
			OpGetHeadersResponse:   {Name: "GetHeadersResponse", Kind: endpoint.Response},
			OpDeliverFile:          {Name: "DeliverFile", Kind: endpoint.Request},
			OpDeliverFileResponse:  {Name: "DeliverFileResponse", Kind: endpoint.Response},
			OpRequestFinished:      {Name: "RequestFinished", Kind: endpoint.Async},
		},
	}
}

// Header is one name/value pair in request or response headers.
type Header struct {
	Name  string
	Value string
}

func (h Header) MarshalWire(e *wire.Encoder) error {
	e.WriteString(h.Name)
	e.WriteString(h.Value)
	return nil
}

func (h *Header) UnmarshalWire(d *wire.Decoder) error {
	var err error
	if h.Name, err = d.ReadString(); err != nil {
		return err
	}
	h.Value, err = d.ReadString()
	return err
}

func marshalHeaders(e *wire.Encoder, headers []Header) {
	e.WriteCount(len(headers))
	for _, h := range headers {
		h.MarshalWire(e)
	}
}

func unmarshalHeaders(d *wire.Decoder) ([]Header, error) {
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}
	headers := make([]Header, n)
	for i := range headers {
		if err := headers[i].UnmarshalWire(d); err != nil {
			return nil, err
		}
	}
	return headers, nil
}

// StartRequest asks the request server to begin a network request.
type StartRequest struct {
	Method  string
	URL     string
	Headers []Header
	Body    []byte
}

func (*StartRequest) Opcode() uint32 { return OpStartRequest }

func (m *StartRequest) MarshalWire(e *wire.Encoder) error {
	e.WriteString(m.Method)
	e.WriteString(m.URL)
	marshalHeaders(e, m.Headers)
	e.WriteBytes(m.Body)
	return nil
}

func (m *StartRequest) UnmarshalWire(d *wire.Decoder) error {
	var err error
	if m.Method, err = d.ReadString(); err != nil {
		return err
	}
	if m.URL, err = d.ReadString(); err != nil {
		return err
	}
	if m.Headers, err = unmarshalHeaders(d); err != nil {
		return err
	}
	m.Body, err = d.ReadBytes()
	return err
}

// StartOutcome is the closed union carried by StartRequestResponse.
type StartOutcome interface {
	startOutcome()
}

// Started reports the id allocated for an accepted request.
type Started struct {
	ID int64
}

// Refused reports why the request server would not start the request.
type Refused struct {
	Reason string
}

func (Started) startOutcome() {}
func (Refused) startOutcome() {}

const (
	outcomeStarted uint8 = 0
	outcomeRefused uint8 = 1
)

var errNoOutcome = errors.New("portalreq: StartRequestResponse has no outcome")

// StartRequestResponse answers StartRequest.
type StartRequestResponse struct {
	Outcome StartOutcome
}

func (*StartRequestResponse) Opcode() uint32 { return OpStartRequestResponse }

func (m *StartRequestResponse) MarshalWire(e *wire.Encoder) error {
	switch o := m.Outcome.(type) {
	case Started:
		e.WriteDiscriminant(outcomeStarted)
		e.WriteI64(o.ID)
	case Refused:
		e.WriteDiscriminant(outcomeRefused)
		e.WriteString(o.Reason)
	default:
		return errNoOutcome
	}
	return nil
}

func (m *StartRequestResponse) UnmarshalWire(d *wire.Decoder) error {
	tag, err := d.ReadDiscriminant()
	if err != nil {
		return err
	}
	switch tag {
	case outcomeStarted:
		var o Started
		if o.ID, err = d.ReadI64(); err != nil {
			return err
		}
		m.Outcome = o
	case outcomeRefused:
		var o Refused
		if o.Reason, err = d.ReadString(); err != nil {
			return err
		}
		m.Outcome = o
	default:
		return d.UnknownDiscriminant(tag)
	}
	return nil
}

// GetHeaders asks for the response headers of a running request.
type GetHeaders struct {
	ID int64
}

func (*GetHeaders) Opcode() uint32 { return OpGetHeaders }

func (m *GetHeaders) MarshalWire(e *wire.Encoder) error {
	e.WriteI64(m.ID)
	return nil
}

func (m *GetHeaders) UnmarshalWire(d *wire.Decoder) error {
	var err error
	m.ID, err = d.ReadI64()
	return err
}

// GetHeadersResponse answers GetHeaders.
type GetHeadersResponse struct {
	ID      int64
	Status  uint32
	Headers []Header
}

func (*GetHeadersResponse) Opcode() uint32 { return OpGetHeadersResponse }

func (m *GetHeadersResponse) MarshalWire(e *wire.Encoder) error {
	e.WriteI64(m.ID)
	e.WriteU32(m.Status)
	marshalHeaders(e, m.Headers)
	return nil
}

func (m *GetHeadersResponse) UnmarshalWire(d *wire.Decoder) error {
	var err error
	if m.ID, err = d.ReadI64(); err != nil {
		return err
	}
	if m.Status, err = d.ReadU32(); err != nil {
		return err
	}
	m.Headers, err = unmarshalHeaders(d)
	return err
}

// DeliverFile hands the request server an open descriptor to write the
// request's body into. The descriptor travels out of band; ownership
// moves to the server.
type DeliverFile struct {
	ID   int64
	File wire.File
}

func (*DeliverFile) Opcode() uint32 { return OpDeliverFile }

func (m *DeliverFile) MarshalWire(e *wire.Encoder) error {
	e.WriteI64(m.ID)
	return m.File.MarshalWire(e)
}

func (m *DeliverFile) UnmarshalWire(d *wire.Decoder) error {
	var err error
	if m.ID, err = d.ReadI64(); err != nil {
		return err
	}
	return m.File.UnmarshalWire(d)
}

// DeliverFileResponse answers DeliverFile.
type DeliverFileResponse struct {
	Written uint64
}

func (*DeliverFileResponse) Opcode() uint32 { return OpDeliverFileResponse }

func (m *DeliverFileResponse) MarshalWire(e *wire.Encoder) error {
	e.WriteU64(m.Written)
	return nil
}

func (m *DeliverFileResponse) UnmarshalWire(d *wire.Decoder) error {
	var err error
	m.Written, err = d.ReadU64()
	return err
}

// NetworkError describes why a request failed.
type NetworkError struct {
	Code    uint32
	Message string
}

// RequestFinished is the server's asynchronous completion notice. Err
// is nil when the request succeeded.
type RequestFinished struct {
	ID        int64
	TotalSize uint64
	Err       *NetworkError
}

func (*RequestFinished) Opcode() uint32 { return OpRequestFinished }

func (m *RequestFinished) MarshalWire(e *wire.Encoder) error {
	e.WriteI64(m.ID)
	e.WriteU64(m.TotalSize)
	e.WritePresence(m.Err != nil)
	if m.Err != nil {
		e.WriteU32(m.Err.Code)
		e.WriteString(m.Err.Message)
	}
	return nil
}

func (m *RequestFinished) UnmarshalWire(d *wire.Decoder) error {
	var err error
	if m.ID, err = d.ReadI64(); err != nil {
		return err
	}
	if m.TotalSize, err = d.ReadU64(); err != nil {
		return err
	}
	present, err := d.ReadPresence()
	if err != nil {
		return err
	}
	if !present {
		m.Err = nil
		return nil
	}
	m.Err = &NetworkError{}
	if m.Err.Code, err = d.ReadU32(); err != nil {
		return err
	}
	m.Err.Message, err = d.ReadString()
	return err
}
