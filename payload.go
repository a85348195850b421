package beacon

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// PayloadLength is the size of the beacon advertising payload: 16 bytes
// proximity UUID, 2 bytes major, 2 bytes minor, 1 byte measured power.
const PayloadLength = 21

// ErrMalformedPayload is returned by Decode for byte sequences that are
// not a beacon advertising payload.
var ErrMalformedPayload = errors.New("malformed beacon payload")

// A Codec converts between a Descriptor and its wire payload. Both
// implementations in this module (BinaryCodec and adv.Codec) produce
// byte-identical payloads; pick whichever matches the radio backend.
type Codec interface {
	Encode(d Descriptor) []byte
	Decode(b []byte) (Descriptor, error)
}

// BinaryCodec encodes the payload directly, for radio stacks that accept
// the bare 21-byte beacon data.
type BinaryCodec struct{}

// Encode returns the 21-byte payload for d. Major and minor are
// big-endian per the beacon wire format.
func (BinaryCodec) Encode(d Descriptor) []byte {
	b := make([]byte, PayloadLength)
	copy(b, d.ProximityUUID)
	binary.BigEndian.PutUint16(b[16:], d.Major)
	binary.BigEndian.PutUint16(b[18:], d.Minor)
	b[20] = uint8(d.MeasuredPower)
	return b
}

// Decode parses a 21-byte payload back into a Descriptor. It returns
// ErrMalformedPayload for any other length.
func (BinaryCodec) Decode(b []byte) (Descriptor, error) {
	if len(b) != PayloadLength {
		return Descriptor{}, errors.Wrapf(ErrMalformedPayload, "length %d", len(b))
	}
	u := make(UUID, 16)
	copy(u, b[:16])
	return Descriptor{
		ProximityUUID: u,
		Major:         binary.BigEndian.Uint16(b[16:18]),
		Minor:         binary.BigEndian.Uint16(b[18:20]),
		MeasuredPower: int8(b[20]),
	}, nil
}
