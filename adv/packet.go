// Package adv builds and parses the GAP advertising packets that carry a
// beacon broadcast. Refer to Supplement to Bluetooth Core Specification,
// Part A, for the record layout.
package adv

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/nearfield/beacon"
)

// MaxEIRPacketLength is the maximum length of a legacy advertising PDU.
const MaxEIRPacketLength = 31

// AppleCompanyID tags the manufacturer record a beacon rides in.
const AppleCompanyID = 0x004C

// Markers identifying the Apple manufacturer record as a proximity
// beacon: record type, then the length of the beacon data.
const (
	beaconType       = 0x02
	beaconDataLength = 0x15
)

// Advertising data record types.
const (
	typFlags            = 0x01
	typCompleteName     = 0x09
	typTxPower          = 0x0a
	typManufacturerData = 0xff
)

// Flag bits for the flags record.
const (
	FlagLimitedDiscoverable = 0x01
	FlagGeneralDiscoverable = 0x02
	FlagLEOnly              = 0x04
)

// ErrNotFit means a record doesn't fit into the packet.
var ErrNotFit = errors.New("data not fit")

// Packet is an advertising packet under construction or inspection.
type Packet struct {
	b []byte
}

// Bytes returns the bytes of the packet.
func (p *Packet) Bytes() []byte {
	return p.b
}

// Len returns the length of the packet.
func (p *Packet) Len() int {
	return len(p.b)
}

// NewPacket returns an advertising packet assembled from the fields.
func NewPacket(fields ...Field) (*Packet, error) {
	p := &Packet{b: make([]byte, 0, MaxEIRPacketLength)}
	for _, f := range fields {
		if err := f(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// A Field is an advertising record which can be appended to a packet.
type Field func(p *Packet) error

// Append appends a field to the packet. It returns ErrNotFit if the
// field doesn't fit, and leaves the packet intact.
func (p *Packet) Append(f Field) error {
	return f(p)
}

func (p *Packet) append(typ byte, b []byte) error {
	if p.Len()+1+1+len(b) > MaxEIRPacketLength {
		return ErrNotFit
	}
	p.b = append(p.b, byte(len(b)+1))
	p.b = append(p.b, typ)
	p.b = append(p.b, b...)
	return nil
}

// field scans the packet for the first record of the given type.
func (p *Packet) field(typ byte) ([]byte, bool) {
	b := p.b
	for len(b) >= 2 {
		length := int(b[0])
		if length < 1 || length >= len(b) {
			return nil, false
		}
		if b[1] == typ {
			return b[2 : 1+length], true
		}
		b = b[1+length:]
	}
	return nil, false
}

// Flags is a flags record.
func Flags(f byte) Field {
	return func(p *Packet) error {
		return p.append(typFlags, []byte{f})
	}
}

// CompleteName is a complete local name record.
func CompleteName(n string) Field {
	return func(p *Packet) error {
		return p.append(typCompleteName, []byte(n))
	}
}

// TxPower is a radiated power record. This is the radio's transmit
// power, distinct from the beacon's calibrated measured power byte.
func TxPower(pwr int8) Field {
	return func(p *Packet) error {
		return p.append(typTxPower, []byte{uint8(pwr)})
	}
}

// ManufacturerData is a manufacturer specific data record.
func ManufacturerData(id uint16, b []byte) Field {
	return func(p *Packet) error {
		d := append([]byte{uint8(id), uint8(id >> 8)}, b...)
		return p.append(typManufacturerData, d)
	}
}

// Raw appends bytes to the packet as-is. Helpful for rebuilding a packet
// from captured records.
func Raw(b []byte) Field {
	return func(p *Packet) error {
		if p.Len()+len(b) > MaxEIRPacketLength {
			return ErrNotFit
		}
		p.b = append(p.b, b...)
		return nil
	}
}

// Beacon is the Apple manufacturer record carrying d's beacon data.
func Beacon(d beacon.Descriptor) Field {
	return func(p *Packet) error {
		var c beacon.BinaryCodec
		return ManufacturerData(AppleCompanyID, BeaconRecord(c.Encode(d)))(p)
	}
}

// ManufacturerData returns the manufacturer record of the packet,
// company identifier included.
func (p *Packet) ManufacturerData() ([]byte, bool) {
	return p.field(typManufacturerData)
}

// LocalName returns the complete local name record, if present.
func (p *Packet) LocalName() string {
	if b, ok := p.field(typCompleteName); ok {
		return string(b)
	}
	return ""
}

// Flags returns the flags record of the packet.
func (p *Packet) Flags() (flags byte, present bool) {
	if b, ok := p.field(typFlags); ok && len(b) > 0 {
		return b[0], true
	}
	return 0, false
}

// BeaconRecord frames beacon data as the body of the Apple manufacturer
// record: the beacon type and length markers followed by the data. This
// is the form BlueZ and friends take manufacturer data in, company
// identifier kept separate.
func BeaconRecord(data []byte) []byte {
	return append([]byte{beaconType, beaconDataLength}, data...)
}

// BeaconData parses a manufacturer record (company identifier included)
// back into a descriptor. It returns beacon.ErrMalformedPayload unless
// the record carries the beacon markers and exactly 21 bytes of data.
func BeaconData(md []byte) (beacon.Descriptor, error) {
	if len(md) != 4+beacon.PayloadLength {
		return beacon.Descriptor{}, errors.Wrapf(beacon.ErrMalformedPayload, "manufacturer data length %d", len(md))
	}
	if binary.LittleEndian.Uint16(md) != AppleCompanyID {
		return beacon.Descriptor{}, errors.Wrap(beacon.ErrMalformedPayload, "company identifier")
	}
	if md[2] != beaconType || md[3] != beaconDataLength {
		return beacon.Descriptor{}, errors.Wrap(beacon.ErrMalformedPayload, "beacon markers")
	}
	var c beacon.BinaryCodec
	return c.Decode(md[4:])
}
