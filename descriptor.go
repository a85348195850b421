package beacon

import "fmt"

// DefaultMeasuredPower is the calibration constant used when a descriptor
// is built without an explicit measured power: the expected RSSI at one
// meter, in dBm.
const DefaultMeasuredPower int8 = -59

// Descriptor describes one beacon region advertisement: the 128-bit
// proximity identifier plus the major/minor pair and the measured power
// calibration byte. Descriptors are values and never mutated after
// construction.
type Descriptor struct {
	ProximityUUID UUID
	Major         uint16
	Minor         uint16
	MeasuredPower int8
}

// A DescriptorOption configures optional descriptor fields.
type DescriptorOption func(*Descriptor)

// WithMeasuredPower overrides the default measured power.
func WithMeasuredPower(p int8) DescriptorOption {
	return func(d *Descriptor) {
		d.MeasuredPower = p
	}
}

// NewDescriptor builds a descriptor with all fields bound; measured power
// defaults to DefaultMeasuredPower unless overridden.
func NewDescriptor(u UUID, major, minor uint16, opts ...DescriptorOption) Descriptor {
	d := Descriptor{
		ProximityUUID: u,
		Major:         major,
		Minor:         minor,
		MeasuredPower: DefaultMeasuredPower,
	}
	for _, o := range opts {
		o(&d)
	}
	return d
}

var DescriptorMapKeys = struct {
	UUID          string
	Major         string
	Minor         string
	MeasuredPower string
}{
	UUID:          "uuid",
	Major:         "major",
	Minor:         "minor",
	MeasuredPower: "measuredPower",
}

// ToMap returns the descriptor as a generic map, suitable for JSON
// encoders and structured log fields.
func (d Descriptor) ToMap() map[string]interface{} {
	return map[string]interface{}{
		DescriptorMapKeys.UUID:          d.ProximityUUID.String(),
		DescriptorMapKeys.Major:         d.Major,
		DescriptorMapKeys.Minor:         d.Minor,
		DescriptorMapKeys.MeasuredPower: d.MeasuredPower,
	}
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s %d:%d @%ddBm", d.ProximityUUID, d.Major, d.Minor, d.MeasuredPower)
}
