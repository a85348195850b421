package beacon

// RadioState mirrors the readiness of the underlying radio stack. The
// controller only observes these values; transitions belong to the stack.
type RadioState int

const (
	RadioUnknown RadioState = iota
	RadioResetting
	RadioUnsupported
	RadioUnauthorized
	RadioPoweredOff
	RadioPoweredOn
)

func (s RadioState) String() string {
	switch s {
	case RadioResetting:
		return "resetting"
	case RadioUnsupported:
		return "unsupported"
	case RadioUnauthorized:
		return "unauthorized"
	case RadioPoweredOff:
		return "poweredOff"
	case RadioPoweredOn:
		return "poweredOn"
	default:
		return "unknown"
	}
}

// Radio is the advertising service of the host radio stack. Start and
// stop requests return immediately; the outcome of a start request is
// delivered through the registered RadioHandler. Stop is accepted
// synchronously and never confirmed.
type Radio interface {
	// State reports the current readiness of the radio.
	State() RadioState

	// Advertising reports whether the radio is currently broadcasting.
	// This is the stack's own status, not a cached value.
	Advertising() bool

	// StartAdvertising submits the 21-byte beacon payload for broadcast.
	StartAdvertising(data []byte)

	// StopAdvertising stops the active broadcast, if any.
	StopAdvertising()

	// SetHandler registers the sink for asynchronous radio callbacks.
	SetHandler(h RadioHandler)
}

// RadioHandler receives the radio stack's asynchronous callbacks. The
// stack may invoke these from its own goroutine, concurrently with calls
// into the Radio.
type RadioHandler interface {
	// RadioStateChanged is invoked whenever the stack's readiness changes.
	RadioStateChanged(s RadioState)

	// AdvertisingStarted reports the outcome of the last StartAdvertising
	// request; err is nil on success.
	AdvertisingStarted(err error)
}

// IdlePreventer keeps the device awake while an advertisement is active.
// It is a toggle with no failure mode.
type IdlePreventer interface {
	SetPrevented(bool)
}

type nopIdlePreventer struct{}

func (nopIdlePreventer) SetPrevented(bool) {}
