package sensorfw

import "errors"

// Error taxonomy per spec.md §7. Tiers never return these synchronously
// from a blocking call — they only ever surface through the Valid/Active
// observables and the logging façade (internal/obslog).
var (
	// ErrNameHasNoOwner means the daemon's well-known bus name currently
	// has no owner. This is "Transport unavailable": no retry timer is
	// scheduled for it, since the name-owner watch itself will fire
	// again when the daemon reappears.
	ErrNameHasNoOwner = errors.New("sensorfw: daemon bus name has no owner")

	// ErrCallRejected means a D-Bus call returned an error or an absent
	// reply body. The owning tier enters Failed and retries after the
	// configured retry delay.
	ErrCallRejected = errors.New("sensorfw: call rejected")

	// ErrProtocolViolation means the sample socket's handshake or frame
	// stream didn't conform to §6.3: a bad handshake byte, a short read,
	// an out-of-range sample count, or an unexpected I/O watch fire. The
	// owning Sensor enters Failed and closes the socket.
	ErrProtocolViolation = errors.New("sensorfw: protocol violation")

	// ErrSessionRejected means requestSensor returned the daemon's
	// failure sentinel (-1) instead of a session id.
	ErrSessionRejected = errors.New("sensorfw: daemon rejected session request")
)
