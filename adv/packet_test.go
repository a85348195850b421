package adv

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"github.com/nearfield/beacon"
)

func TestCodecEquivalence(t *testing.T) {
	descriptors := []beacon.Descriptor{
		beacon.NewDescriptor(beacon.MustParse("E2C56DB5-DFFB-48D2-B060-D0F5A71096E0"), 1, 100),
		beacon.NewDescriptor(beacon.MustParse("34DA3AD1-7110-41A1-B1EF-4430F509CDE7"), 0, 0),
		beacon.NewDescriptor(beacon.MustParse("00000000-0000-0000-0000-000000000000"), 0xFFFF, 0xFFFF, beacon.WithMeasuredPower(-128)),
		beacon.NewDescriptor(beacon.MustParse("FFFFFFFF-FFFF-FFFF-FFFF-FFFFFFFFFFFF"), 0x0102, 0x0304, beacon.WithMeasuredPower(0)),
	}

	var manual beacon.BinaryCodec
	var packet Codec

	for _, d := range descriptors {
		m := manual.Encode(d)
		p := packet.Encode(d)
		if !bytes.Equal(m, p) {
			t.Fatalf("codecs disagree for %v:\nmanual % x\npacket % x", d, m, p)
		}
	}
}

// Encode never returns nil, not even for a zero-value descriptor whose
// UUID was never set.
func TestCodecEncodeTotal(t *testing.T) {
	var packet Codec
	var manual beacon.BinaryCodec

	for _, d := range []beacon.Descriptor{
		{},
		beacon.NewDescriptor(nil, 1, 2),
	} {
		got := packet.Encode(d)
		if len(got) != beacon.PayloadLength {
			t.Fatalf("expected a %d-byte payload for %v, got % x", beacon.PayloadLength, d, got)
		}
		if !bytes.Equal(got, manual.Encode(d)) {
			t.Fatalf("codecs disagree for %v", d)
		}
	}
}

func TestBeaconFieldLayout(t *testing.T) {
	d := beacon.NewDescriptor(beacon.MustParse("E2C56DB5-DFFB-48D2-B060-D0F5A71096E0"), 1, 100)

	p, err := NewPacket(Flags(FlagGeneralDiscoverable|FlagLEOnly), Beacon(d))
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	b := p.Bytes()
	// flags record
	if !bytes.Equal(b[:3], []byte{0x02, 0x01, FlagGeneralDiscoverable | FlagLEOnly}) {
		t.Fatalf("bad flags record: % x", b[:3])
	}
	// manufacturer record header: length, type, company, beacon markers
	if !bytes.Equal(b[3:9], []byte{0x1A, 0xFF, 0x4C, 0x00, 0x02, 0x15}) {
		t.Fatalf("bad manufacturer record header: % x", b[3:9])
	}
	if p.Len() != 3+27 {
		t.Fatalf("unexpected packet length %d", p.Len())
	}
}

func TestBeaconDataRoundTrip(t *testing.T) {
	d := beacon.NewDescriptor(beacon.MustParse("E2C56DB5-DFFB-48D2-B060-D0F5A71096E0"), 7, 9, beacon.WithMeasuredPower(-20))

	p, err := NewPacket(Beacon(d))
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	md, ok := p.ManufacturerData()
	if !ok {
		t.Fatalf("manufacturer record missing")
	}

	got, err := BeaconData(md)
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
	if !reflect.DeepEqual(d, got) {
		t.Fatalf("round trip mismatch: sent %v, got %v", d, got)
	}
}

func TestBeaconDataMalformed(t *testing.T) {
	var c beacon.BinaryCodec
	d := beacon.NewDescriptor(beacon.MustParse("E2C56DB5-DFFB-48D2-B060-D0F5A71096E0"), 1, 2)
	data := c.Encode(d)

	good := append([]byte{0x4C, 0x00, 0x02, 0x15}, data...)

	cases := map[string][]byte{
		"short":         good[:10],
		"long":          append(append([]byte{}, good...), 0x00),
		"wrong company": append([]byte{0x4D, 0x00, 0x02, 0x15}, data...),
		"wrong type":    append([]byte{0x4C, 0x00, 0x03, 0x15}, data...),
		"wrong marker":  append([]byte{0x4C, 0x00, 0x02, 0x16}, data...),
	}

	for name, md := range cases {
		if _, err := BeaconData(md); errors.Cause(err) != beacon.ErrMalformedPayload {
			t.Fatalf("%s: expected ErrMalformedPayload, got %v", name, err)
		}
	}
}

func TestPacketFieldScan(t *testing.T) {
	p, err := NewPacket(Flags(FlagLEOnly), CompleteName("kiosk-12"), TxPower(-8))
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	if f, ok := p.Flags(); !ok || f != FlagLEOnly {
		t.Fatalf("flags not found: %v %v", f, ok)
	}
	if p.LocalName() != "kiosk-12" {
		t.Fatalf("local name mismatch: %q", p.LocalName())
	}
	if _, ok := p.ManufacturerData(); ok {
		t.Fatalf("found a manufacturer record that was never added")
	}
}

func TestPacketNotFit(t *testing.T) {
	long := make([]byte, MaxEIRPacketLength)
	_, err := NewPacket(CompleteName(string(long)))
	if err != ErrNotFit {
		t.Fatalf("expected ErrNotFit, got %v", err)
	}

	p, err := NewPacket(Flags(FlagLEOnly))
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
	if err := p.Append(Raw(long)); err != ErrNotFit {
		t.Fatalf("expected ErrNotFit, got %v", err)
	}
	if p.Len() != 3 {
		t.Fatalf("packet mutated by a record that didn't fit")
	}
}
