package knxip

import "fmt"

// ServiceType identifies the KNXnet/IP service carried in a frame's header.
// It is a sum type: every valid wire value decodes to a named constant, and
// unknown values decode to ServiceUnknown rather than panicking or being
// silently accepted.
type ServiceType uint16

// Service type identifiers this client speaks (spec §3). Values outside
// this set decode to ServiceUnknown and are logged and dropped by the
// tunnel dispatcher rather than rejected outright — a future gateway
// extension should not make an otherwise-healthy session unusable.
const (
	ServiceUnknown            ServiceType = 0x0000
	ServiceSearchRequest      ServiceType = 0x0201
	ServiceSearchResponse     ServiceType = 0x0202
	ServiceConnectRequest     ServiceType = 0x0205
	ServiceConnectResponse    ServiceType = 0x0206
	ServiceConnStateRequest   ServiceType = 0x0207
	ServiceConnStateResponse  ServiceType = 0x0208
	ServiceDisconnectRequest  ServiceType = 0x0209
	ServiceDisconnectResponse ServiceType = 0x020a
	ServiceTunnelingRequest   ServiceType = 0x0420
	ServiceTunnelingAck       ServiceType = 0x0421
)

// String implements fmt.Stringer with the names used in the KNX
// specification, for log messages.
func (s ServiceType) String() string {
	switch s {
	case ServiceSearchRequest:
		return "SEARCH_REQUEST"
	case ServiceSearchResponse:
		return "SEARCH_RESPONSE"
	case ServiceConnectRequest:
		return "CONNECT_REQUEST"
	case ServiceConnectResponse:
		return "CONNECT_RESPONSE"
	case ServiceConnStateRequest:
		return "CONNECTIONSTATE_REQUEST"
	case ServiceConnStateResponse:
		return "CONNECTIONSTATE_RESPONSE"
	case ServiceDisconnectRequest:
		return "DISCONNECT_REQUEST"
	case ServiceDisconnectResponse:
		return "DISCONNECT_RESPONSE"
	case ServiceTunnelingRequest:
		return "TUNNELING_REQUEST"
	case ServiceTunnelingAck:
		return "TUNNELING_ACK"
	default:
		return fmt.Sprintf("UNKNOWN(0x%04x)", uint16(s))
	}
}

// parseServiceType decodes a 16-bit wire value into a ServiceType, reporting
// whether it is one this client recognises.
func parseServiceType(v uint16) (ServiceType, bool) {
	switch ServiceType(v) {
	case ServiceSearchRequest, ServiceSearchResponse,
		ServiceConnectRequest, ServiceConnectResponse,
		ServiceConnStateRequest, ServiceConnStateResponse,
		ServiceDisconnectRequest, ServiceDisconnectResponse,
		ServiceTunnelingRequest, ServiceTunnelingAck:
		return ServiceType(v), true
	default:
		return ServiceUnknown, false
	}
}

// Gateway status codes (spec §6).
const (
	StatusNoError             byte = 0x00
	StatusHostProtocolType    byte = 0x01
	StatusVersionNotSupported byte = 0x02
	StatusSequenceNumber      byte = 0x04
	StatusConnectionID        byte = 0x21
	StatusConnectionType      byte = 0x22
	StatusConnectionOption    byte = 0x23
	StatusNoMoreConnections   byte = 0x24
	StatusDataConnection      byte = 0x26
	StatusKNXConnection       byte = 0x27
	StatusTunnelingLayer      byte = 0x28
)

// statusMessage returns a human-readable description for a gateway status
// byte, for error and log messages.
func statusMessage(status byte) string {
	switch status {
	case StatusNoError:
		return "no error"
	case StatusHostProtocolType:
		return "host protocol type error"
	case StatusVersionNotSupported:
		return "version not supported"
	case StatusSequenceNumber:
		return "invalid sequence number"
	case StatusConnectionID:
		return "invalid connection id"
	case StatusConnectionType:
		return "invalid connection type"
	case StatusConnectionOption:
		return "invalid connection option"
	case StatusNoMoreConnections:
		return "no more connections possible"
	case StatusDataConnection:
		return "data connection error"
	case StatusKNXConnection:
		return "KNX connection error"
	case StatusTunnelingLayer:
		return "tunnelling layer error"
	default:
		return fmt.Sprintf("unknown error code 0x%02x", status)
	}
}
