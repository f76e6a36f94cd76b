package knxip

import (
	"encoding/binary"
	"fmt"
)

// headerLength is the fixed length of a KNXnet/IP frame header.
const headerLength = 0x06

// protocolVersion is the KNXnet/IP protocol version this client speaks.
const protocolVersion = 0x10

// Frame is a complete KNXnet/IP frame: a fixed 6-byte header followed by a
// service-specific body. Encode/Decode mirror the teacher's Telegram
// wire-format pair, but the header carried here is the KNXnet/IP header
// rather than a knxd bus-monitor header.
type Frame struct {
	Service ServiceType
	Body    []byte
}

// Encode renders the frame to its wire form: header length, protocol
// version, service type, total length, followed by the body verbatim.
func (f Frame) Encode() ([]byte, error) {
	total := headerLength + len(f.Body)
	if total > 0xffff {
		return nil, fmt.Errorf("%w: frame body too large: %d bytes", ErrOutOfRange, len(f.Body))
	}

	buf := make([]byte, headerLength+len(f.Body))
	buf[0] = headerLength
	buf[1] = protocolVersion
	binary.BigEndian.PutUint16(buf[2:4], uint16(f.Service))
	binary.BigEndian.PutUint16(buf[4:6], uint16(total))
	copy(buf[6:], f.Body)
	return buf, nil
}

// DecodeFrame parses a complete KNXnet/IP frame, validating the header
// length, protocol version, and total length fields against the supplied
// bytes. Unrecognised service types decode successfully with Service set to
// ServiceUnknown, so a caller can log and drop rather than abort a session
// over a single unexpected frame.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < headerLength {
		return Frame{}, fmt.Errorf("%w: frame requires %d header bytes, got %d", ErrMalformedFrame, headerLength, len(data))
	}
	if data[0] != headerLength {
		return Frame{}, fmt.Errorf("%w: header length field is 0x%02x, want 0x%02x", ErrMalformedFrame, data[0], headerLength)
	}
	if data[1] != protocolVersion {
		return Frame{}, fmt.Errorf("%w: protocol version 0x%02x, want 0x%02x", ErrMalformedFrame, data[1], protocolVersion)
	}

	rawService := binary.BigEndian.Uint16(data[2:4])
	total := binary.BigEndian.Uint16(data[4:6])
	if int(total) != len(data) {
		return Frame{}, fmt.Errorf("%w: total length field says %d, frame is %d bytes", ErrMalformedFrame, total, len(data))
	}

	service, _ := parseServiceType(rawService)
	return Frame{Service: service, Body: data[headerLength:]}, nil
}

// connectRequestBody assembles a CONNECT_REQUEST body: control endpoint
// HPAI, data endpoint HPAI, and a fixed connection request information (CRI)
// block selecting tunnelling / link layer.
func connectRequestBody(control, data HPAI) ([]byte, error) {
	controlBytes, err := control.Encode()
	if err != nil {
		return nil, err
	}
	dataBytes, err := data.Encode()
	if err != nil {
		return nil, err
	}

	cri := []byte{0x04, 0x04, 0x02, 0x00}
	body := make([]byte, 0, len(controlBytes)+len(dataBytes)+len(cri))
	body = append(body, controlBytes...)
	body = append(body, dataBytes...)
	body = append(body, cri...)
	return body, nil
}

// connectResponse is the decoded body of a CONNECT_RESPONSE frame.
type connectResponse struct {
	ChannelID byte
	Status    byte
	DataHPAI  HPAI
}

func decodeConnectResponse(body []byte) (connectResponse, error) {
	if len(body) < 2 {
		return connectResponse{}, fmt.Errorf("%w: CONNECT_RESPONSE too short", ErrMalformedFrame)
	}
	resp := connectResponse{ChannelID: body[0], Status: body[1]}
	if resp.Status != StatusNoError {
		return resp, fmt.Errorf("%w: CONNECT_RESPONSE status %s", ErrProtocol, statusMessage(resp.Status))
	}
	if len(body) >= 2+hpaiLength {
		hpai, err := DecodeHPAI(body[2:])
		if err != nil {
			return resp, err
		}
		resp.DataHPAI = hpai
	}
	return resp, nil
}

// connectionStateRequestBody assembles a CONNECTIONSTATE_REQUEST body:
// channel id, reserved byte, control endpoint HPAI.
func connectionStateRequestBody(channelID byte, control HPAI) ([]byte, error) {
	controlBytes, err := control.Encode()
	if err != nil {
		return nil, err
	}
	body := make([]byte, 0, 2+len(controlBytes))
	body = append(body, channelID, 0x00)
	body = append(body, controlBytes...)
	return body, nil
}

// decodeConnectionStateResponse decodes a CONNECTIONSTATE_RESPONSE body:
// channel id and status byte.
func decodeConnectionStateResponse(body []byte) (channelID, status byte, err error) {
	if len(body) < 2 {
		return 0, 0, fmt.Errorf("%w: CONNECTIONSTATE_RESPONSE too short", ErrMalformedFrame)
	}
	return body[0], body[1], nil
}

// disconnectRequestBody assembles a DISCONNECT_REQUEST body: channel id,
// reserved byte, control endpoint HPAI.
func disconnectRequestBody(channelID byte, control HPAI) ([]byte, error) {
	controlBytes, err := control.Encode()
	if err != nil {
		return nil, err
	}
	body := make([]byte, 0, 2+len(controlBytes))
	body = append(body, channelID, 0x00)
	body = append(body, controlBytes...)
	return body, nil
}

// tunnelingHeaderLength is the length of the connection header prefixed to
// a TUNNELING_REQUEST or TUNNELING_ACK body, ahead of the cEMI payload.
const tunnelingHeaderLength = 0x04

// tunnelingRequestBody assembles a TUNNELING_REQUEST body: a 4-byte
// connection header (structure length, channel id, sequence counter,
// reserved byte) followed by the raw cEMI frame.
func tunnelingRequestBody(channelID, seq byte, cemi []byte) []byte {
	body := make([]byte, 0, tunnelingHeaderLength+len(cemi))
	body = append(body, tunnelingHeaderLength, channelID, seq, 0x00)
	body = append(body, cemi...)
	return body
}

// tunnelingAckBody assembles a TUNNELING_ACK body acknowledging a received
// sequence counter with the no-error status.
func tunnelingAckBody(channelID, seq byte) []byte {
	return []byte{tunnelingHeaderLength, channelID, seq, StatusNoError}
}

// decodedTunnelingRequest is the parsed form of a TUNNELING_REQUEST or
// TUNNELING_ACK connection header.
type decodedTunnelingRequest struct {
	ChannelID byte
	Sequence  byte
	Status    byte
	CEMI      []byte
}

// decodeTunnelingBody parses the shared connection-header layout used by
// both TUNNELING_REQUEST and TUNNELING_ACK bodies.
func decodeTunnelingBody(body []byte) (decodedTunnelingRequest, error) {
	if len(body) < tunnelingHeaderLength {
		return decodedTunnelingRequest{}, fmt.Errorf("%w: tunnelling body too short", ErrMalformedFrame)
	}
	if body[0] != tunnelingHeaderLength {
		return decodedTunnelingRequest{}, fmt.Errorf("%w: connection header length 0x%02x, want 0x%02x", ErrMalformedFrame, body[0], tunnelingHeaderLength)
	}
	return decodedTunnelingRequest{
		ChannelID: body[1],
		Sequence:  body[2],
		Status:    body[3],
		CEMI:      body[tunnelingHeaderLength:],
	}, nil
}
