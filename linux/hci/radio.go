//go:build linux
// +build linux

// Package hci is a beacon.Radio that talks to the Bluetooth controller
// directly over HCI, either through the kernel's user channel socket or
// an H4 UART. The beacon payload is framed into a full advertising PDU
// and programmed with the LE advertising commands.
package hci

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nearfield/beacon"
	"github.com/nearfield/beacon/adv"
)

const cmdTimeout = time.Second

// Radio drives one HCI transport.
type Radio struct {
	mu          sync.Mutex
	t           io.ReadWriteCloser
	handler     beacon.RadioHandler
	state       beacon.RadioState
	advertising bool

	cmdMu    sync.Mutex
	complete chan []byte

	done chan struct{}
	log  beacon.Logger
}

// NewRadio wraps an HCI transport. The controller is reset up front;
// a transport that answers the reset is reported powered on.
func NewRadio(t io.ReadWriteCloser) (*Radio, error) {
	r := &Radio{
		t:        t,
		state:    beacon.RadioUnknown,
		complete: make(chan []byte, 4),
		done:     make(chan struct{}),
		log:      beacon.GetLogger().ChildLogger(map[string]interface{}{"component": "hci"}),
	}
	go r.loop()

	if err := r.sendCmd(opReset, nil); err != nil {
		t.Close()
		return nil, errors.Wrap(err, "reset")
	}

	r.mu.Lock()
	r.state = beacon.RadioPoweredOn
	r.mu.Unlock()
	return r, nil
}

// NewSocketRadio opens the HCI user channel of the given device id
// (-1 for the first claimable device).
func NewSocketRadio(id int) (*Radio, error) {
	s, err := NewSocket(id)
	if err != nil {
		return nil, err
	}
	return NewRadio(s)
}

// loop reads the transport and reassembles event packets. UART reads
// fragment, so packets are accumulated across reads.
func (r *Radio) loop() {
	buf := make([]byte, 512)
	var acc []byte
	for {
		n, err := r.t.Read(buf)
		if err != nil {
			r.transportLost(err)
			return
		}
		if n == 0 {
			continue
		}
		acc = append(acc, buf[:n]...)

		for {
			pkt, rest, ok := nextEvent(acc)
			if !ok {
				break
			}
			acc = rest
			r.handleEvent(pkt)
		}
	}
}

// nextEvent extracts one complete H4 event packet from b. Bytes that
// aren't the start of an event packet are dropped to resynchronize.
func nextEvent(b []byte) (pkt, rest []byte, ok bool) {
	for len(b) > 0 && b[0] != pktTypeEvent {
		b = b[1:]
	}
	if len(b) < 3 {
		return nil, b, false
	}
	full := 3 + int(b[2])
	if len(b) < full {
		return nil, b, false
	}
	return b[:full], b[full:], true
}

func (r *Radio) handleEvent(pkt []byte) {
	switch pkt[1] {
	case evtCommandComplete, evtCommandStatus:
		select {
		case r.complete <- pkt:
		default:
			r.log.Debugf("dropping unclaimed command event % x", pkt)
		}
	default:
		// broadcast-only: nothing else is expected from the controller
		r.log.Debugf("ignoring event 0x%02X", pkt[1])
	}
}

func (r *Radio) transportLost(err error) {
	select {
	case <-r.done:
		return
	default:
	}

	r.log.Warnf("hci transport lost: %v", err)

	r.mu.Lock()
	r.state = beacon.RadioPoweredOff
	h := r.handler
	r.mu.Unlock()

	if h != nil {
		h.RadioStateChanged(beacon.RadioPoweredOff)
	}
}

// sendCmd issues one command and waits for its Command Complete. One
// command is in flight at a time.
func (r *Radio) sendCmd(opcode uint16, params []byte) error {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	// drain stale completes from an earlier timeout
	for {
		select {
		case <-r.complete:
			continue
		default:
		}
		break
	}

	if _, err := r.t.Write(marshalCmd(opcode, params)); err != nil {
		return errors.Wrapf(err, "write opcode 0x%04X", opcode)
	}

	deadline := time.After(cmdTimeout)
	for {
		select {
		case pkt := <-r.complete:
			op, status, ok := completedOpcode(pkt)
			if !ok || op != opcode {
				continue
			}
			if status != 0 {
				return errors.Errorf("opcode 0x%04X failed, status 0x%02X", opcode, status)
			}
			return nil
		case <-deadline:
			return errors.Errorf("opcode 0x%04X timed out", opcode)
		}
	}
}

// SetHandler implements beacon.Radio.
func (r *Radio) SetHandler(h beacon.RadioHandler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// State implements beacon.Radio.
func (r *Radio) State() beacon.RadioState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Advertising implements beacon.Radio.
func (r *Radio) Advertising() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.advertising
}

// StartAdvertising implements beacon.Radio. The command sequence runs on
// its own goroutine; the outcome lands in the handler.
func (r *Radio) StartAdvertising(data []byte) {
	go func() {
		err := r.program(data)

		r.mu.Lock()
		r.advertising = err == nil
		h := r.handler
		r.mu.Unlock()

		if h != nil {
			h.AdvertisingStarted(err)
		}
	}()
}

// packetForData frames the beacon payload into a full advertising PDU.
func packetForData(data []byte) ([]byte, error) {
	pkt, err := adv.NewPacket(
		adv.Flags(adv.FlagGeneralDiscoverable|adv.FlagLEOnly),
		adv.ManufacturerData(adv.AppleCompanyID, adv.BeaconRecord(data)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "build advertising packet")
	}
	return pkt.Bytes(), nil
}

func (r *Radio) program(data []byte) error {
	pkt, err := packetForData(data)
	if err != nil {
		return err
	}
	block, err := advertisingData(pkt)
	if err != nil {
		return err
	}

	// advertising must be off while parameters change; the disable is
	// best effort since it fails when nothing is on the air
	r.sendCmd(opLESetAdvertiseEnable, []byte{0x00})

	if err := r.sendCmd(opLESetAdvertisingParameters, advertisingParameters()); err != nil {
		return err
	}
	if err := r.sendCmd(opLESetAdvertisingData, block); err != nil {
		return err
	}
	return r.sendCmd(opLESetAdvertiseEnable, []byte{0x01})
}

// StopAdvertising implements beacon.Radio. Fire-and-forget: the disable
// command's status is logged, never reported.
func (r *Radio) StopAdvertising() {
	r.mu.Lock()
	r.advertising = false
	r.mu.Unlock()

	if err := r.sendCmd(opLESetAdvertiseEnable, []byte{0x00}); err != nil {
		r.log.Warnf("advertise disable: %v", err)
	}
}

// Close shuts the transport down.
func (r *Radio) Close() error {
	r.StopAdvertising()
	close(r.done)
	return r.t.Close()
}
