package beacon

// Listener receives beacon lifecycle events from a Controller. The
// controller does not own the listener; SetListener(nil) unregisters it
// and further events are simply not delivered.
type Listener interface {
	// RadioPoweredOn is delivered when the radio becomes ready. The
	// controller never resumes a prior advertisement on its own; callers
	// react to this event by calling Start again if they want one.
	RadioPoweredOn()

	// DidStartAdvertising confirms that the broadcast is on the air.
	DidStartAdvertising()

	// DidFailToStartAdvertising reports the radio stack's error for a
	// start request, verbatim.
	DidFailToStartAdvertising(err error)

	// DidFailToStartAdvertisingRadioDisabled reports a start request that
	// was rejected up front because the radio is not powered on.
	DidFailToStartAdvertisingRadioDisabled()

	// DidStopAdvertising is delivered once per transition off the air,
	// whether requested or forced by radio loss.
	DidStopAdvertising()
}
