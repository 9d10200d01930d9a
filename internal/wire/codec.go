package wire

// Marshaler is the encode half of the codec capability. A type
// participates in portal transfer by appending its canonical byte
// representation, field by field in declared order, and registering any
// owned descriptors with the encoder.
type Marshaler interface {
	MarshalWire(e *Encoder) error
}

// Unmarshaler is the decode half. It must consume exactly the bytes and
// descriptors a matching MarshalWire produced.
type Unmarshaler interface {
	UnmarshalWire(d *Decoder) error
}
