// Package protocol implements the binary envelope codec used on the wire.
//
// All multi-byte integers are unsigned varints (7 bits of data per byte,
// MSB marks continuation). Byte strings are varint-length-prefixed.
package protocol

import (
	"errors"
)

// MaxPayloadSize caps the length prefix a decoder will honor. Anything
// larger is treated as a malformed frame rather than an allocation request.
const MaxPayloadSize = 4 * 1024 * 1024

var (
	// ErrBufferTooShort is returned when a frame ends mid-field.
	ErrBufferTooShort = errors.New("protocol: buffer too short")

	// ErrVarintOverflow is returned when a varint does not terminate
	// within 64 bits.
	ErrVarintOverflow = errors.New("protocol: varint overflow")

	// ErrPayloadTooLarge is returned when a length prefix exceeds
	// MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("protocol: payload size exceeds limit")
)

// Encoder is an append-only binary encoder.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with a small initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 128)}
}

// Bytes returns the encoded bytes. The slice is valid until the next write.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteUvarint appends an unsigned varint.
func (e *Encoder) WriteUvarint(v uint64) {
	for v >= 0x80 {
		e.buf = append(e.buf, byte(v)|0x80)
		v >>= 7
	}
	e.buf = append(e.buf, byte(v))
}

// WriteBytes appends raw bytes without a length prefix.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteLenBytes appends a varint length prefix followed by the bytes.
func (e *Encoder) WriteLenBytes(b []byte) {
	e.WriteUvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteString appends a varint length prefix followed by the string bytes.
func (e *Encoder) WriteString(s string) {
	e.WriteUvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// Decoder reads binary fields from a byte buffer.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder creates a decoder over buf. The decoder does not copy buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Rest returns all unread bytes without advancing the position.
func (d *Decoder) Rest() []byte {
	return d.buf[d.pos:]
}

// ReadUvarint reads an unsigned varint.
func (d *Decoder) ReadUvarint() (uint64, error) {
	var v uint64
	var shift uint
	for {
		if d.pos >= len(d.buf) {
			return 0, ErrBufferTooShort
		}
		b := d.buf[d.pos]
		d.pos++
		v |= uint64(b&0x7F) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, ErrVarintOverflow
		}
	}
}

// ReadLenBytes reads a varint length prefix and returns a copy of that many
// bytes, so the result is safe to retain past the frame's lifetime.
func (d *Decoder) ReadLenBytes() ([]byte, error) {
	length, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if length > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	if length > uint64(d.Remaining()) {
		return nil, ErrBufferTooShort
	}
	n := int(length)
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+n])
	d.pos += n
	return b, nil
}

// ReadString reads a varint length prefix followed by that many string bytes.
func (d *Decoder) ReadString() (string, error) {
	length, err := d.ReadUvarint()
	if err != nil {
		return "", err
	}
	if length > MaxPayloadSize {
		return "", ErrPayloadTooLarge
	}
	if length > uint64(d.Remaining()) {
		return "", ErrBufferTooShort
	}
	n := int(length)
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n
	return s, nil
}
