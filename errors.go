package knxip

import "errors"

// Domain errors for the knxip package.
var (
	// ErrBadAddress is returned when a group address string cannot be parsed.
	ErrBadAddress = errors.New("knxip: invalid group address")

	// ErrOutOfRange is returned when a conversion input falls outside the
	// domain the KNX datapoint type can represent.
	ErrOutOfRange = errors.New("knxip: value out of range")

	// ErrMalformedFrame is returned when decoding a KNXnet/IP frame or an
	// embedded cEMI telegram fails (bad header, length mismatch, truncation).
	ErrMalformedFrame = errors.New("knxip: malformed frame")

	// ErrNotConnected is returned when an operation requires an active
	// tunnel but none is established.
	ErrNotConnected = errors.New("knxip: not connected")

	// ErrProtocol is returned when the gateway answers with a non-zero
	// status on connect, when no TUNNELING_ACK or GroupRead response
	// arrives in time, and when the gateway address cannot be resolved.
	ErrProtocol = errors.New("knxip: protocol error")

	// ErrBadOperation is returned for operations that are structurally
	// invalid given the current data, e.g. toggling a non-1-byte value.
	ErrBadOperation = errors.New("knxip: invalid operation")

	// ErrDiscoveryTimeout is returned by Search when no gateway answers
	// the search within the configured timeout.
	ErrDiscoveryTimeout = errors.New("knxip: gateway discovery timed out")
)
