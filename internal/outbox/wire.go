package outbox

import (
	"encoding/binary"
	"fmt"
)

// wireHeaderLen is the Confluent frame prefix: a zero magic byte and a 4-byte schema id.
const wireHeaderLen = 5

// EncodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func EncodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, wireHeaderLen+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:wireHeaderLen], uint32(schemaID))
	copy(frame[wireHeaderLen:], payload)
	return frame
}

// DecodeWireFormat splits a Confluent frame into schema id and payload.
func DecodeWireFormat(frame []byte) (int, []byte, error) {
	if len(frame) < wireHeaderLen {
		return 0, nil, fmt.Errorf("invalid payload length: %d", len(frame))
	}
	if frame[0] != 0 {
		return 0, nil, fmt.Errorf("unexpected magic byte %d", frame[0])
	}
	schemaID := int(binary.BigEndian.Uint32(frame[1:wireHeaderLen]))
	payload := append([]byte(nil), frame[wireHeaderLen:]...)
	return schemaID, payload, nil
}
