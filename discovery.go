package knxip

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// MulticastAddr is the KNXnet/IP discovery multicast group and port, fixed
// by the KNX specification.
const MulticastAddr = "224.0.23.12:3671"

// Gateway describes a KNXnet/IP gateway that answered a search request.
type Gateway struct {
	// ControlEndpoint is the HPAI the gateway wants CONNECT_REQUEST frames
	// sent to.
	ControlEndpoint HPAI
	// From is the network address the SEARCH_RESPONSE was actually
	// received from, which may differ from ControlEndpoint on
	// multi-homed gateways.
	From *net.UDPAddr
}

// localHPAIForDiscovery opens a throwaway UDP dial to dest purely to
// discover which local interface address the kernel would route responses
// to, the same trick used by multicast senders that need to know their own
// outbound address ahead of time.
func localHPAIForDiscovery(dest string) (HPAI, error) {
	conn, err := net.Dial("udp4", dest)
	if err != nil {
		return HPAI{}, fmt.Errorf("determining local address: %w", err)
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return HPAI{}, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return HPAI{IP: local.IP.To4(), Port: 0}, nil
}

// Search sends a single SEARCH_REQUEST and returns the first gateway that
// answers within timeout, or ErrDiscoveryTimeout if none does.
func Search(ctx context.Context, timeout time.Duration) (Gateway, error) {
	gateways, err := search(ctx, timeout, 1, MulticastAddr)
	if err != nil {
		return Gateway{}, err
	}
	if len(gateways) == 0 {
		return Gateway{}, ErrDiscoveryTimeout
	}
	return gateways[0], nil
}

// SearchAll sends a single SEARCH_REQUEST and collects every
// SEARCH_RESPONSE received within timeout, stopping early once limit
// responses have arrived. Responses are not de-duplicated, so a gateway
// that answers twice is counted twice. A limit of 0 means collect until timeout
// with no early stop, useful for enumerating every gateway on a segment
// rather than just finding one.
func SearchAll(ctx context.Context, timeout time.Duration, limit int) ([]Gateway, error) {
	return search(ctx, timeout, limit, MulticastAddr)
}

// search implements the SEARCH_REQUEST/SEARCH_RESPONSE exchange against
// dest. It is parametrized by destination address, rather than hardcoded to
// MulticastAddr, so tests can point it at a loopback fake gateway instead
// of depending on real multicast support in the test environment.
func search(ctx context.Context, timeout time.Duration, limit int, dest string) ([]Gateway, error) {
	local, err := localHPAIForDiscovery(dest)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("opening discovery socket: %w", err)
	}
	defer conn.Close()

	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		return nil, fmt.Errorf("unexpected connection type %T", conn)
	}
	local.Port = uint16(udpConn.LocalAddr().(*net.UDPAddr).Port)

	pconn := ipv4.NewPacketConn(udpConn)
	if err := pconn.SetMulticastTTL(4); err != nil {
		// Loopback destinations used in tests are not multicast-capable;
		// only real multicast sends need the TTL raised.
		_ = err
	}

	body, err := local.Encode()
	if err != nil {
		return nil, err
	}
	frame, err := (Frame{Service: ServiceSearchRequest, Body: body}).Encode()
	if err != nil {
		return nil, err
	}

	destAddr, err := net.ResolveUDPAddr("udp4", dest)
	if err != nil {
		return nil, fmt.Errorf("resolving destination address: %w", err)
	}
	if _, err := udpConn.WriteTo(frame, destAddr); err != nil {
		return nil, fmt.Errorf("sending SEARCH_REQUEST: %w", err)
	}

	deadline := time.Now().Add(timeout)
	var gateways []Gateway
	buf := make([]byte, 1024)

	for {
		select {
		case <-ctx.Done():
			return gateways, nil
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return gateways, nil
		}
		if err := udpConn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return gateways, err
		}

		n, addr, err := udpConn.ReadFromUDP(buf)
		if err != nil {
			return gateways, nil
		}

		f, err := DecodeFrame(buf[:n])
		if err != nil || f.Service != ServiceSearchResponse {
			continue
		}
		hpai, err := DecodeHPAI(f.Body)
		if err != nil {
			continue
		}

		gateways = append(gateways, Gateway{ControlEndpoint: hpai, From: addr})
		if limit > 0 && len(gateways) >= limit {
			return gateways, nil
		}
	}
}
