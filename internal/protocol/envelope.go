package protocol

// Envelope tags. Every WebSocket message starts with one of these as a
// varint; unknown tags are dropped by the relay for forward compatibility.
const (
	// MessageSync carries the document sync sub-protocol. The payload is
	// opaque to the relay and handed to the document engine verbatim.
	MessageSync = 0

	// MessagePresence carries a length-prefixed presence delta.
	MessagePresence = 1
)

// Envelope is one decoded wire message.
type Envelope struct {
	Tag     uint64
	Payload []byte
}

// DecodeEnvelope splits a frame into its tag and remaining payload bytes.
// The payload references the frame buffer and must not outlive it.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	dec := NewDecoder(frame)
	tag, err := dec.ReadUvarint()
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Tag: tag, Payload: dec.Rest()}, nil
}

// EncodeSync builds a sync envelope around an engine payload.
func EncodeSync(payload []byte) []byte {
	enc := NewEncoder()
	enc.WriteUvarint(MessageSync)
	enc.WriteBytes(payload)
	return enc.Bytes()
}

// EncodePresence builds a presence envelope. The delta is length-prefixed
// inside the envelope.
func EncodePresence(delta []byte) []byte {
	enc := NewEncoder()
	enc.WriteUvarint(MessagePresence)
	enc.WriteLenBytes(delta)
	return enc.Bytes()
}
