//go:build darwin
// +build darwin

// Package darwin is a beacon.Radio backed by the CoreBluetooth daemon
// over xpc. The beacon payload is handed to the daemon under the Apple
// beacon data key; the daemon does its own framing on the air.
package darwin

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/raff/goble/xpc"

	"github.com/nearfield/beacon"
)

const blued = "com.apple.blued"

const beaconDataKey = "kCBAdvDataAppleBeaconKey"

// Radio drives one peripheral-manager session with blued.
type Radio struct {
	mu          sync.Mutex
	conn        xpc.Connection
	handler     beacon.RadioHandler
	state       beacon.RadioState
	advertising bool
	log         beacon.Logger
}

// NewRadio opens an xpc session with the CoreBluetooth daemon. The
// daemon reports its readiness asynchronously; callers should wait for
// the powered-on callback before advertising.
func NewRadio() (*Radio, error) {
	initXpcIDs()

	r := &Radio{
		state: beacon.RadioUnknown,
		log:   beacon.GetLogger().ChildLogger(map[string]interface{}{"component": "darwin"}),
	}
	r.conn = xpc.XpcConnect(blued, r)

	r.sendCmd(cmdInit, xpc.Dict{
		"kCBMsgArgName":    fmt.Sprintf("beacon-%v", time.Now().Unix()),
		"kCBMsgArgOptions": xpc.Dict{"kCBInitOptionShowPowerAlert": 1},
		"kCBMsgArgType":    1,
	})
	return r, nil
}

func (r *Radio) sendCmd(id int, args xpc.Dict) {
	msg := xpc.Dict{"kCBMsgId": xpcID[id]}
	if args != nil {
		msg["kCBMsgArgs"] = args
	}
	r.conn.Send(msg, false)
}

// HandleXpcEvent implements xpc.EventHandler; blued invokes it on its
// own queue.
func (r *Radio) HandleXpcEvent(event xpc.Dict, err error) {
	if err != nil {
		r.log.Errorf("xpc event: %v", err)
		return
	}

	id := event.GetInt("kCBMsgId", 0)
	args := xpc.Dict{}
	if event.Contains("kCBMsgArgs") {
		args = event.MustGetDict("kCBMsgArgs")
	}

	switch id {
	case xpcID[evtStateChanged]:
		// CBManagerState raw values match beacon.RadioState ordering
		s := beacon.RadioState(args.GetInt("kCBMsgArgState", 0))
		if s < beacon.RadioUnknown || s > beacon.RadioPoweredOn {
			s = beacon.RadioUnknown
		}

		// the advertising flag is left alone here: the controller reacts
		// to the state change and issues the stop that clears it
		r.mu.Lock()
		r.state = s
		h := r.handler
		r.mu.Unlock()

		r.log.Debugf("radio state %v", s)
		if h != nil {
			h.RadioStateChanged(s)
		}

	case xpcID[evtAdvertisingStarted]:
		result := args.GetInt("kCBMsgArgResult", 0)
		var aerr error
		if result != 0 {
			aerr = errors.Errorf("advertising start rejected, code %d", result)
		}

		r.mu.Lock()
		r.advertising = aerr == nil
		h := r.handler
		r.mu.Unlock()

		if h != nil {
			h.AdvertisingStarted(aerr)
		}

	case xpcID[evtAdvertisingStopped]:
		r.mu.Lock()
		r.advertising = false
		r.mu.Unlock()
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

// StartAdvertising implements beacon.Radio. blued confirms or rejects
// through HandleXpcEvent.
func (r *Radio) StartAdvertising(data []byte) {
	r.sendCmd(cmdAdvertiseStart, xpc.Dict{beaconDataKey: data})
}

// StopAdvertising implements beacon.Radio. Fire-and-forget, matching
// the daemon's stop semantics.
func (r *Radio) StopAdvertising() {
	r.sendCmd(cmdAdvertiseStop, nil)

	r.mu.Lock()
	r.advertising = false
	r.mu.Unlock()
}
