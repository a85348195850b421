package adv

import (
	"github.com/pkg/errors"

	"github.com/nearfield/beacon"
)

// Codec derives the beacon payload by assembling a complete advertising
// packet and reading it back out of the manufacturer record. It mirrors
// radio stacks whose native descriptor-to-payload conversion is the only
// encoding path, and must stay byte-identical to beacon.BinaryCodec.
type Codec struct{}

// Encode returns the 21-byte beacon payload for d. Encoding is total,
// so the packet round-trip falls back to the directly encoded payload
// instead of failing.
func (Codec) Encode(d beacon.Descriptor) []byte {
	var direct beacon.BinaryCodec
	data := direct.Encode(d)

	p, err := NewPacket(Flags(FlagGeneralDiscoverable|FlagLEOnly), Beacon(d))
	if err != nil {
		// a flags record and one beacon record always fit
		return data
	}
	md, ok := p.ManufacturerData()
	if !ok {
		return data
	}
	return md[4:]
}

// Decode parses a payload produced by Encode.
func (Codec) Decode(b []byte) (beacon.Descriptor, error) {
	if len(b) != beacon.PayloadLength {
		return beacon.Descriptor{}, errors.Wrapf(beacon.ErrMalformedPayload, "length %d", len(b))
	}
	var c beacon.BinaryCodec
	return c.Decode(b)
}
