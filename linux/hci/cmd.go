//go:build linux
// +build linux

package hci

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// H4 packet indicators.
const (
	pktTypeCommand = 0x01
	pktTypeEvent   = 0x04
)

// Event codes.
const (
	evtCommandComplete = 0x0E
	evtCommandStatus   = 0x0F
)

// Opcodes used by the advertising path.
const (
	opReset                      = 0x0C03 // OGF 0x03, OCF 0x003
	opLESetAdvertisingParameters = 0x2006
	opLESetAdvertisingData       = 0x2008
	opLESetAdvertiseEnable       = 0x200A
)

// advNonConnInd is the non-connectable undirected advertising type: a
// beacon broadcasts, nothing connects to it.
const advNonConnInd = 0x03

// 100ms in 0.625ms advertising interval units.
const advInterval = 0x00A0

// advertisingDataLength is the fixed size of the advertising data
// parameter block: one significant-length byte plus 31 data bytes.
const advertisingDataLength = 32

// marshalCmd frames an HCI command as an H4 packet.
func marshalCmd(opcode uint16, params []byte) []byte {
	b := make([]byte, 4+len(params))
	b[0] = pktTypeCommand
	binary.LittleEndian.PutUint16(b[1:], opcode)
	b[3] = byte(len(params))
	copy(b[4:], params)
	return b
}

// advertisingParameters builds the LE Set Advertising Parameters block
// for a non-connectable broadcast on all three advertising channels.
func advertisingParameters() []byte {
	p := make([]byte, 15)
	binary.LittleEndian.PutUint16(p[0:], advInterval) // interval min
	binary.LittleEndian.PutUint16(p[2:], advInterval) // interval max
	p[4] = advNonConnInd
	// own address type public, no direct address
	p[13] = 0x07 // channel map: 37, 38, 39
	p[14] = 0x00 // filter policy: allow all
	return p
}

// advertisingData pads packet bytes into the fixed 32-byte parameter
// block of LE Set Advertising Data.
func advertisingData(pkt []byte) ([]byte, error) {
	if len(pkt) > advertisingDataLength-1 {
		return nil, errors.Errorf("advertising data too long: %d", len(pkt))
	}
	p := make([]byte, advertisingDataLength)
	p[0] = byte(len(pkt))
	copy(p[1:], pkt)
	return p, nil
}

// completedOpcode extracts the acknowledged opcode and status from a
// Command Complete event packet, header included.
func completedOpcode(pkt []byte) (opcode uint16, status byte, ok bool) {
	// [type, code, plen, numPkts, opcode(2), status]
	if len(pkt) < 7 || pkt[1] != evtCommandComplete {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint16(pkt[4:6]), pkt[6], true
}
