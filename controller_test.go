package beacon

import (
	"bytes"
	"reflect"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

type fakeRadio struct {
	mu          sync.Mutex
	state       RadioState
	advertising bool
	handler     RadioHandler
	starts      [][]byte
	stops       int
}

func (r *fakeRadio) State() RadioState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeRadio) Advertising() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.advertising
}

func (r *fakeRadio) StartAdvertising(data []byte) {
	b := make([]byte, len(data))
	copy(b, data)
	r.mu.Lock()
	r.starts = append(r.starts, b)
	r.advertising = true
	r.mu.Unlock()
}

func (r *fakeRadio) StopAdvertising() {
	r.mu.Lock()
	r.stops++
	r.advertising = false
	r.mu.Unlock()
}

func (r *fakeRadio) SetHandler(h RadioHandler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

type fakeIdle struct {
	prevented bool
	toggles   []bool
}

func (f *fakeIdle) SetPrevented(v bool) {
	f.prevented = v
	f.toggles = append(f.toggles, v)
}

type recordingListener struct {
	mu            sync.Mutex
	poweredOn     int
	started       int
	failed        []error
	radioDisabled int
	stopped       int
}

func (l *recordingListener) RadioPoweredOn() {
	l.mu.Lock()
	l.poweredOn++
	l.mu.Unlock()
}

func (l *recordingListener) DidStartAdvertising() {
	l.mu.Lock()
	l.started++
	l.mu.Unlock()
}

func (l *recordingListener) DidFailToStartAdvertising(err error) {
	l.mu.Lock()
	l.failed = append(l.failed, err)
	l.mu.Unlock()
}

func (l *recordingListener) DidFailToStartAdvertisingRadioDisabled() {
	l.mu.Lock()
	l.radioDisabled++
	l.mu.Unlock()
}

func (l *recordingListener) DidStopAdvertising() {
	l.mu.Lock()
	l.stopped++
	l.mu.Unlock()
}

func (l *recordingListener) stoppedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

func testDescriptor(major, minor uint16) Descriptor {
	return NewDescriptor(MustParse("E2C56DB5-DFFB-48D2-B060-D0F5A71096E0"), major, minor)
}

func newTestController(state RadioState) (*Controller, *fakeRadio, *fakeIdle, *recordingListener) {
	r := &fakeRadio{state: state}
	idle := &fakeIdle{}
	l := &recordingListener{}
	c := NewController(r, OptIdlePreventer(idle))
	c.SetListener(l)
	return c, r, idle, l
}

func TestStartRadioDisabled(t *testing.T) {
	for _, s := range []RadioState{RadioUnknown, RadioResetting, RadioUnsupported, RadioUnauthorized, RadioPoweredOff} {
		c, r, idle, l := newTestController(s)
		c.Start(testDescriptor(1, 2))

		if len(r.starts) != 0 {
			t.Fatalf("state %v: radio start issued while disabled", s)
		}
		if l.radioDisabled != 1 {
			t.Fatalf("state %v: expected 1 radio-disabled event, got %d", s, l.radioDisabled)
		}
		if l.started != 0 || l.stopped != 0 || len(l.failed) != 0 {
			t.Fatalf("state %v: unexpected events %+v", s, l)
		}
		if len(idle.toggles) != 0 {
			t.Fatalf("state %v: idle prevention touched on rejected start", s)
		}
	}
}

func TestStartAndConfirm(t *testing.T) {
	c, r, idle, l := newTestController(RadioPoweredOn)

	d := testDescriptor(1, 100)
	c.Start(d)

	if len(r.starts) != 1 {
		t.Fatalf("expected 1 radio start, got %d", len(r.starts))
	}
	var codec BinaryCodec
	if !bytes.Equal(r.starts[0], codec.Encode(d)) {
		t.Fatalf("radio got wrong payload: % x", r.starts[0])
	}
	if !idle.prevented {
		t.Fatalf("idle prevention not engaged on start")
	}
	if l.started != 0 {
		t.Fatalf("start confirmed before the radio called back")
	}

	r.handler.AdvertisingStarted(nil)
	if l.started != 1 {
		t.Fatalf("expected 1 started event, got %d", l.started)
	}
	if !c.Advertising() {
		t.Fatalf("controller does not report advertising")
	}
}

func TestStartFailureKeepsIdlePrevention(t *testing.T) {
	c, r, idle, l := newTestController(RadioPoweredOn)

	c.Start(testDescriptor(1, 2))
	cause := errors.New("controller busy")
	r.handler.AdvertisingStarted(cause)

	if len(l.failed) != 1 || l.failed[0] != cause {
		t.Fatalf("expected the radio's error verbatim, got %v", l.failed)
	}
	// the failure path leaves the flag engaged until an explicit Stop
	if !idle.prevented {
		t.Fatalf("idle prevention released on start failure")
	}

	c.Stop()
	if idle.prevented {
		t.Fatalf("idle prevention still engaged after Stop")
	}
}

func TestStopIdempotent(t *testing.T) {
	c, r, idle, l := newTestController(RadioPoweredOn)

	c.Start(testDescriptor(1, 2))
	r.handler.AdvertisingStarted(nil)

	c.Stop()
	c.Stop()

	if l.stopped != 1 {
		t.Fatalf("expected exactly 1 stopped event, got %d", l.stopped)
	}
	if r.stops != 1 {
		t.Fatalf("expected 1 radio stop, got %d", r.stops)
	}
	if idle.prevented {
		t.Fatalf("idle prevention engaged after Stop")
	}
	if c.CurrentDescriptor() != nil {
		t.Fatalf("descriptor retained after Stop")
	}
}

func TestStopWhileIdleIsSilent(t *testing.T) {
	c, _, idle, l := newTestController(RadioPoweredOn)

	c.Stop()

	if l.stopped != 0 {
		t.Fatalf("stop on an idle controller emitted an event")
	}
	if idle.prevented {
		t.Fatalf("idle prevention engaged by a no-op stop")
	}
}

func TestForcedStopOnRadioLoss(t *testing.T) {
	c, r, idle, l := newTestController(RadioPoweredOn)

	c.Start(testDescriptor(1, 2))
	r.handler.AdvertisingStarted(nil)

	r.state = RadioPoweredOff
	r.handler.RadioStateChanged(RadioPoweredOff)

	if l.stopped != 1 {
		t.Fatalf("expected exactly 1 stopped event, got %d", l.stopped)
	}
	if r.stops != 1 {
		t.Fatalf("expected 1 radio stop, got %d", r.stops)
	}
	if idle.prevented {
		t.Fatalf("idle prevention still engaged after radio loss")
	}
	if c.Advertising() {
		t.Fatalf("controller still reports advertising")
	}
}

func TestRadioLossWhileIdle(t *testing.T) {
	c, r, idle, l := newTestController(RadioPoweredOn)
	_ = c

	r.state = RadioPoweredOff
	r.handler.RadioStateChanged(RadioPoweredOff)

	if l.stopped != 0 || r.stops != 0 {
		t.Fatalf("radio loss while idle produced a stop")
	}
	if len(idle.toggles) != 0 {
		t.Fatalf("radio loss while idle touched idle prevention")
	}
}

func TestPoweredOnDoesNotResume(t *testing.T) {
	c, r, _, l := newTestController(RadioPoweredOn)

	c.Start(testDescriptor(1, 2))
	r.handler.AdvertisingStarted(nil)

	r.state = RadioPoweredOff
	r.handler.RadioStateChanged(RadioPoweredOff)

	r.state = RadioPoweredOn
	r.handler.RadioStateChanged(RadioPoweredOn)

	if l.poweredOn != 1 {
		t.Fatalf("expected 1 powered-on event, got %d", l.poweredOn)
	}
	if len(r.starts) != 1 {
		t.Fatalf("controller resumed advertising on its own")
	}
}

func TestRestartSupersedes(t *testing.T) {
	c, r, _, l := newTestController(RadioPoweredOn)

	d1 := testDescriptor(1, 1)
	d2 := testDescriptor(2, 2)

	c.Start(d1)
	c.Start(d2)

	if r.stops != 1 || len(r.starts) != 2 {
		t.Fatalf("expected stop-then-start at the radio, got %d stops, %d starts", r.stops, len(r.starts))
	}
	var codec BinaryCodec
	if !bytes.Equal(r.starts[1], codec.Encode(d2)) {
		t.Fatalf("second start carries wrong payload: % x", r.starts[1])
	}
	if l.stopped != 0 {
		t.Fatalf("superseding start emitted a stopped event")
	}

	r.handler.AdvertisingStarted(nil)
	if l.started != 1 {
		t.Fatalf("expected 1 started event, got %d", l.started)
	}
	if got := c.CurrentDescriptor(); got == nil || !reflect.DeepEqual(*got, d2) {
		t.Fatalf("current descriptor is %v, want %v", got, d2)
	}
}

// Public calls and radio callbacks arrive on different goroutines; the
// controller's mutex must keep the descriptor whole and stop
// notifications single. Meant to run under the race detector.
func TestConcurrentCallsAndCallbacks(t *testing.T) {
	c, r, _, l := newTestController(RadioPoweredOn)

	d1 := testDescriptor(1, 1)
	d2 := testDescriptor(2, 2)
	h := r.handler

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			c.Start(d1)
			c.Start(d2)
			c.Stop()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			h.AdvertisingStarted(nil)
			h.RadioStateChanged(RadioPoweredOn)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			d := c.CurrentDescriptor()
			if d == nil {
				continue
			}
			if !reflect.DeepEqual(*d, d1) && !reflect.DeepEqual(*d, d2) {
				t.Errorf("observed a torn descriptor: %+v", *d)
				return
			}
		}
	}()

	wg.Wait()

	// a trailing stop pair emits at most one event, regardless of where
	// the races left the state machine
	before := l.stoppedCount()
	c.Stop()
	c.Stop()
	if got := l.stoppedCount() - before; got > 1 {
		t.Fatalf("duplicate stopped events: %d", got)
	}
}

func TestNilListener(t *testing.T) {
	r := &fakeRadio{state: RadioPoweredOff}
	c := NewController(r)

	// no listener registered: events are dropped, not delivered to nil
	c.Start(testDescriptor(1, 2))
	c.Stop()
	r.handler.RadioStateChanged(RadioPoweredOn)
	r.handler.AdvertisingStarted(nil)
	c.SetListener(nil)
}

func TestRegionID(t *testing.T) {
	r1 := &fakeRadio{state: RadioPoweredOn}
	r2 := &fakeRadio{state: RadioPoweredOn}
	c1 := NewController(r1)
	c2 := NewController(r2)

	if c1.RegionID() == "" {
		t.Fatalf("empty region identifier")
	}
	if _, err := Parse(c1.RegionID()); err != nil {
		t.Fatalf("region identifier is not a uuid: %s", err)
	}
	if c1.RegionID() != c1.RegionID() {
		t.Fatalf("region identifier not stable")
	}
	if c1.RegionID() == c2.RegionID() {
		t.Fatalf("region identifiers collide across controllers")
	}
}

func TestClose(t *testing.T) {
	c, r, idle, l := newTestController(RadioPoweredOn)

	c.Start(testDescriptor(1, 2))
	r.handler.AdvertisingStarted(nil)

	if err := c.Close(); err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
	if idle.prevented {
		t.Fatalf("idle prevention still engaged after Close")
	}
	if l.stopped != 1 {
		t.Fatalf("expected 1 stopped event on Close, got %d", l.stopped)
	}
}
