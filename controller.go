package beacon

import (
	"crypto/rand"
	"sync"

	"github.com/pkg/errors"
)

// Controller owns one active beacon descriptor and drives the radio
// advertising service. It translates the radio stack's asynchronous
// callbacks into Listener events and keeps the device awake while an
// advertisement is active.
//
// Public calls and radio callbacks may arrive on different goroutines;
// a mutex serializes all state access. No call blocks: Start and Stop
// return after issuing the request, and the outcome arrives through the
// Listener.
type Controller struct {
	mu       sync.Mutex
	radio    Radio
	idle     IdlePreventer
	codec    Codec
	listener Listener
	desc     *Descriptor
	regionID string
	log      Logger
}

// A ControllerOption configures the controller.
type ControllerOption func(*Controller)

// OptIdlePreventer wires the host's keep-awake facility. Without it the
// controller uses a no-op preventer.
func OptIdlePreventer(p IdlePreventer) ControllerOption {
	return func(c *Controller) {
		c.idle = p
	}
}

// OptCodec overrides the payload codec. The default is BinaryCodec.
func OptCodec(cc Codec) ControllerOption {
	return func(c *Controller) {
		c.codec = cc
	}
}

// OptLogger overrides the controller's logger.
func OptLogger(l Logger) ControllerOption {
	return func(c *Controller) {
		c.log = l
	}
}

// NewController builds a controller bound to the given radio and
// registers itself as the radio's callback handler. The region
// identifier is generated here and is stable for the controller's
// lifetime.
func NewController(radio Radio, opts ...ControllerOption) *Controller {
	c := &Controller{
		radio:    radio,
		idle:     nopIdlePreventer{},
		codec:    BinaryCodec{},
		regionID: newRegionID(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = GetLogger().ChildLogger(map[string]interface{}{"component": "beacon"})
	}
	radio.SetHandler(c)
	return c
}

// SetListener registers the lifecycle event sink. A nil listener
// unregisters; events raised while no listener is set are dropped.
func (c *Controller) SetListener(l Listener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

// RegionID returns the stable region identifier generated at
// construction. It carries no meaning beyond uniqueness.
func (c *Controller) RegionID() string {
	return c.regionID
}

// Advertising reports whether the radio is currently broadcasting. The
// radio stack is the single source of truth here; the controller keeps
// no advertising flag of its own.
func (c *Controller) Advertising() bool {
	return c.radio.Advertising()
}

// CurrentDescriptor returns a copy of the descriptor currently (or most
// recently) submitted for broadcast, or nil when idle.
func (c *Controller) CurrentDescriptor() *Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc == nil {
		return nil
	}
	d := *c.desc
	return &d
}

// Start submits d for broadcast. If the radio is not powered on the
// request is rejected up front with DidFailToStartAdvertisingRadioDisabled
// and nothing is sent to the radio; the caller must Start again after a
// RadioPoweredOn event. An advertisement already on the air is superseded
// without a stop event. Idle prevention engages as soon as the radio
// accepts the request, before the start is confirmed.
func (c *Controller) Start(d Descriptor) {
	c.mu.Lock()
	if c.radio.State() != RadioPoweredOn {
		c.log.Debugf("start rejected, radio is %v", c.radio.State())
		l := c.listener
		c.mu.Unlock()
		if l != nil {
			l.DidFailToStartAdvertisingRadioDisabled()
		}
		return
	}
	if c.radio.Advertising() {
		// superseded, not stopped: no DidStopAdvertising for the old one
		c.radio.StopAdvertising()
	}
	c.desc = &d
	data := c.codec.Encode(d)
	c.idle.SetPrevented(true)
	c.radio.StartAdvertising(data)
	c.log.Infof("advertising %v, region %s", d, c.regionID)
	c.mu.Unlock()
}

// Stop takes the advertisement off the air. It is idempotent: idle
// prevention is released unconditionally, and DidStopAdvertising fires
// only when something was actually broadcasting.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.idle.SetPrevented(false)
	c.desc = nil
	notify := false
	if c.radio.Advertising() {
		c.radio.StopAdvertising()
		notify = true
	}
	l := c.listener
	c.mu.Unlock()
	if notify && l != nil {
		l.DidStopAdvertising()
	}
}

// Close stops any active advertisement and releases idle prevention.
// Mandatory before discarding the controller.
func (c *Controller) Close() error {
	c.Stop()
	return nil
}

// RadioStateChanged implements RadioHandler. Losing the radio underneath
// an active advertisement forces a stop; a radio coming back up only
// raises RadioPoweredOn and never resumes on its own.
func (c *Controller) RadioStateChanged(s RadioState) {
	c.log.Debugf("radio state %v", s)
	if s == RadioPoweredOn {
		c.mu.Lock()
		l := c.listener
		c.mu.Unlock()
		if l != nil {
			l.RadioPoweredOn()
		}
		return
	}
	c.mu.Lock()
	notify := false
	if c.radio.Advertising() {
		c.idle.SetPrevented(false)
		c.desc = nil
		c.radio.StopAdvertising()
		notify = true
	}
	l := c.listener
	c.mu.Unlock()
	if notify && l != nil {
		l.DidStopAdvertising()
	}
}

// AdvertisingStarted implements RadioHandler.
func (c *Controller) AdvertisingStarted(err error) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	if err != nil {
		c.log.Errorf("failed to start advertising: %v", err)
		// idle prevention stays engaged on this path; callers release
		// it with an explicit Stop
		if l != nil {
			l.DidFailToStartAdvertising(err)
		}
		return
	}
	if l != nil {
		l.DidStartAdvertising()
	}
}

// newRegionID returns a random UUID-formatted string. The system
// entropy source failing leaves nothing sensible to identify a region
// with, so it panics rather than hand out a guessable identifier.
func newRegionID() string {
	b := make(UUID, 16)
	if _, err := rand.Read(b); err != nil {
		panic(errors.Wrap(err, "generate region identifier"))
	}
	return b.String()
}
