//go:build linux
// +build linux

// Package bluez is a beacon.Radio backed by the BlueZ advertising manager
// over D-Bus. The advertisement is exported as an org.bluez.LEAdvertisement1
// object carrying the beacon payload in its manufacturer data.
package bluez

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"github.com/pkg/errors"

	"github.com/nearfield/beacon"
	"github.com/nearfield/beacon/adv"
)

const defaultAdapter = "hci0"

const (
	bluezService           = "org.bluez"
	adapterInterface       = "org.bluez.Adapter1"
	advertisementInterface = "org.bluez.LEAdvertisement1"
	advManagerInterface    = "org.bluez.LEAdvertisingManager1"

	adapterPowered = "Powered"
)

var advertisementID uint64

// matches PropertiesChanged for the adapter, which carries Powered flips
var matchAdapterProps = []dbus.MatchOption{
	dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
	dbus.WithMatchMember("PropertiesChanged"),
	dbus.WithMatchArg(0, adapterInterface),
}

// Radio drives one BlueZ adapter.
type Radio struct {
	mu          sync.Mutex
	bus         *dbus.Conn
	adapter     dbus.BusObject
	handler     beacon.RadioHandler
	state       beacon.RadioState
	advertising bool
	advPath     dbus.ObjectPath

	// regMu serializes register/unregister sequences so a start issued
	// while another is still in flight supersedes it instead of racing it
	regMu      sync.Mutex
	register   func(path dbus.ObjectPath, record []byte) error
	unregister func(path dbus.ObjectPath)

	sigCh chan *dbus.Signal
	done  chan struct{}
	log   beacon.Logger
}

// advertisement is the exported LEAdvertisement1 object. BlueZ calls
// Release when it drops the advertisement on its own.
type advertisement struct {
	r    *Radio
	path dbus.ObjectPath
}

func (a *advertisement) Release() *dbus.Error {
	a.r.mu.Lock()
	if a.r.advPath == a.path {
		a.r.advPath = ""
		a.r.advertising = false
	}
	a.r.mu.Unlock()
	a.r.log.Debug("advertisement released by bluez")
	return nil
}

// NewRadio connects to the system bus and binds the given adapter
// ("hci0" style; empty selects the default). The returned radio watches
// the adapter's Powered property and forwards flips to the handler.
func NewRadio(adapterID string) (*Radio, error) {
	if adapterID == "" {
		adapterID = defaultAdapter
	}

	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "system bus")
	}

	r := &Radio{
		bus:     bus,
		adapter: bus.Object(bluezService, dbus.ObjectPath("/org/bluez/"+adapterID)),
		state:   beacon.RadioUnknown,
		done:    make(chan struct{}),
		log:     beacon.GetLogger().ChildLogger(map[string]interface{}{"component": "bluez", "adapter": adapterID}),
	}
	r.register = r.dbusRegister
	r.unregister = r.dbusUnregister

	v, err := r.adapter.GetProperty(adapterInterface + "." + adapterPowered)
	if err != nil {
		if derr, ok := err.(dbus.Error); ok && derr.Name == "org.freedesktop.DBus.Error.UnknownObject" {
			r.state = beacon.RadioUnsupported
		} else {
			return nil, errors.Wrapf(err, "adapter %s", adapterID)
		}
	} else if powered, ok := v.Value().(bool); ok {
		r.state = powerState(powered)
	}

	if err := bus.AddMatchSignal(matchAdapterProps...); err != nil {
		return nil, errors.Wrap(err, "match adapter properties")
	}
	r.sigCh = make(chan *dbus.Signal, 16)
	bus.Signal(r.sigCh)
	go r.signalLoop()

	return r, nil
}

func powerState(powered bool) beacon.RadioState {
	if powered {
		return beacon.RadioPoweredOn
	}
	return beacon.RadioPoweredOff
}

func (r *Radio) signalLoop() {
	for {
		select {
		case <-r.done:
			return
		case sig, ok := <-r.sigCh:
			if !ok {
				return
			}
			if sig.Name != "org.freedesktop.DBus.Properties.PropertiesChanged" || len(sig.Body) < 2 {
				continue
			}
			changes, ok := sig.Body[1].(map[string]dbus.Variant)
			if !ok {
				continue
			}
			powered, ok := changes[adapterPowered].Value().(bool)
			if !ok {
				continue
			}

			r.mu.Lock()
			r.state = powerState(powered)
			h := r.handler
			r.mu.Unlock()

			r.log.Debugf("adapter powered: %v", powered)
			if h != nil {
				h.RadioStateChanged(powerState(powered))
			}
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

// StartAdvertising implements beacon.Radio. Registration happens on a
// separate goroutine; the outcome lands in the handler. A start issued
// while an earlier registration is still in flight waits for it and
// then replaces whatever it put on the air, so at most one
// advertisement is registered at any time.
func (r *Radio) StartAdvertising(data []byte) {
	record := adv.BeaconRecord(data)
	go func() {
		id := atomic.AddUint64(&advertisementID, 1)
		path := dbus.ObjectPath(fmt.Sprintf("/com/nearfield/beacon/advertisement%d", id))

		r.regMu.Lock()
		r.dropCurrent()
		err := r.register(path, record)

		r.mu.Lock()
		if err == nil {
			r.advPath = path
		}
		r.advertising = err == nil
		h := r.handler
		r.mu.Unlock()
		r.regMu.Unlock()

		if h != nil {
			h.AdvertisingStarted(err)
		}
	}()
}

// dropCurrent unregisters whatever advertisement is on the air, if any.
// Callers hold regMu.
func (r *Radio) dropCurrent() {
	r.mu.Lock()
	path := r.advPath
	r.advPath = ""
	r.mu.Unlock()

	if path == "" {
		return
	}
	r.unregister(path)
}

func (r *Radio) dbusRegister(path dbus.ObjectPath, record []byte) error {
	propsSpec := map[string]map[string]*prop.Prop{
		advertisementInterface: {
			"Type": {Value: "broadcast"},
			"ManufacturerData": {Value: map[uint16]interface{}{
				adv.AppleCompanyID: record,
			}},
			"Timeout": {Value: uint16(0)},
		},
	}

	if _, err := prop.Export(r.bus, path, propsSpec); err != nil {
		return errors.Wrap(err, "export advertisement properties")
	}
	if err := r.bus.Export(&advertisement{r: r, path: path}, path, advertisementInterface); err != nil {
		return errors.Wrap(err, "export advertisement")
	}

	call := r.adapter.Call(advManagerInterface+".RegisterAdvertisement", 0, path, map[string]interface{}{})
	if call.Err != nil {
		r.unexport(path)
		return errors.Wrap(call.Err, "register advertisement")
	}

	r.log.Debugf("registered advertisement %s", path)
	return nil
}

func (r *Radio) dbusUnregister(path dbus.ObjectPath) {
	call := r.adapter.Call(advManagerInterface+".UnregisterAdvertisement", 0, path)
	if call.Err != nil {
		r.log.Warnf("unregister advertisement: %v", call.Err)
	}
	r.unexport(path)
}

// StopAdvertising implements beacon.Radio. Errors from an adapter that
// already dropped the advertisement are logged, not reported.
func (r *Radio) StopAdvertising() {
	r.regMu.Lock()
	r.dropCurrent()
	r.mu.Lock()
	r.advertising = false
	r.mu.Unlock()
	r.regMu.Unlock()
}

func (r *Radio) unexport(path dbus.ObjectPath) {
	r.bus.Export(nil, path, advertisementInterface)
}

// Close stops the signal loop and releases the bus connection.
func (r *Radio) Close() error {
	r.StopAdvertising()
	close(r.done)
	r.bus.RemoveMatchSignal(matchAdapterProps...)
	r.bus.RemoveSignal(r.sigCh)
	return r.bus.Close()
}
