package knxip

import (
	"fmt"
	"net"
)

// hostProtocolIPv4UDP is the only host protocol code this client speaks.
const hostProtocolIPv4UDP = 0x01

// hpaiLength is the fixed wire length of an HPAI structure.
const hpaiLength = 8

// HPAI (Host Protocol Address Information) is an 8-byte endpoint
// descriptor used throughout KNXnet/IP: in SEARCH_REQUEST, CONNECT_REQUEST,
// CONNECT_RESPONSE, CONNECTIONSTATE_REQUEST, and DISCONNECT_REQUEST bodies.
type HPAI struct {
	IP   net.IP
	Port uint16
}

// Encode returns the 8-byte wire form: [0x08, 0x01, ip[4], port_be[2]].
func (h HPAI) Encode() ([]byte, error) {
	ipBytes, err := ipToArray(h.IP.String())
	if err != nil {
		return nil, err
	}

	buf := make([]byte, hpaiLength)
	buf[0] = hpaiLength
	buf[1] = hostProtocolIPv4UDP
	copy(buf[2:6], ipBytes[:])
	copy(buf[6:8], intToArray(uint32(h.Port), 2))
	return buf, nil
}

// DecodeHPAI decodes an 8-byte HPAI structure from the start of data.
func DecodeHPAI(data []byte) (HPAI, error) {
	if len(data) < hpaiLength {
		return HPAI{}, fmt.Errorf("%w: HPAI requires %d bytes, got %d", ErrMalformedFrame, hpaiLength, len(data))
	}
	if data[0] != hpaiLength {
		return HPAI{}, fmt.Errorf("%w: HPAI length field is 0x%02x, want 0x%02x", ErrMalformedFrame, data[0], hpaiLength)
	}

	ip := net.IPv4(data[2], data[3], data[4], data[5])
	port := uint16(data[6])<<8 | uint16(data[7])
	return HPAI{IP: ip, Port: port}, nil
}
