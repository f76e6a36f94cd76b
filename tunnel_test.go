package knxip

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

// fakeGateway is a minimal KNXnet/IP gateway used to exercise Tunnel
// end to end over a real loopback UDP socket: it answers
// CONNECT_REQUEST, acknowledges every TUNNELING_REQUEST it receives, and
// answers CONNECTIONSTATE_REQUEST. Tests that need an inbound telegram
// push one through the returned channel.
type fakeGateway struct {
	conn      *net.UDPConn
	channelID byte
	inbound   chan []byte // raw cEMI frames to push to the client as L_Data.ind
	stop      chan struct{}

	// heartbeatStatus is the status byte returned in CONNECTIONSTATE_RESPONSE.
	// Defaults to StatusNoError; tests exercising heartbeat failure set it to
	// an error status (or stop the gateway outright) to simulate a gateway
	// that has gone unhealthy.
	heartbeatStatus atomic.Uint32
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ResolveUDPAddr: %v", err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}

	g := &fakeGateway{conn: conn, channelID: 7, inbound: make(chan []byte, 4), stop: make(chan struct{})}
	g.heartbeatStatus.Store(uint32(StatusNoError))
	go g.run(t)
	return g
}

func (g *fakeGateway) addr() string {
	return g.conn.LocalAddr().String()
}

func (g *fakeGateway) close() {
	close(g.stop)
	g.conn.Close()
}

func (g *fakeGateway) run(t *testing.T) {
	buf := make([]byte, readBufSize)
	var clientAddr *net.UDPAddr
	var pushSeq byte

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-g.stop:
				return
			case cemi := <-g.inbound:
				if clientAddr == nil {
					continue
				}
				body := tunnelingRequestBody(g.channelID, pushSeq, cemi)
				frame, err := Frame{Service: ServiceTunnelingRequest, Body: body}.Encode()
				if err != nil {
					continue
				}
				pushSeq++
				_, _ = g.conn.WriteToUDP(frame, clientAddr)
			}
		}
	}()

	for {
		select {
		case <-g.stop:
			return
		default:
		}

		_ = g.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, from, err := g.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		clientAddr = from

		frame, err := DecodeFrame(buf[:n])
		if err != nil {
			continue
		}

		switch frame.Service {
		case ServiceConnectRequest:
			local := g.conn.LocalAddr().(*net.UDPAddr)
			hpai := HPAI{IP: local.IP.To4(), Port: uint16(local.Port)}
			hpaiBytes, _ := hpai.Encode()
			body := append([]byte{g.channelID, StatusNoError}, hpaiBytes...)
			resp, _ := Frame{Service: ServiceConnectResponse, Body: body}.Encode()
			_, _ = g.conn.WriteToUDP(resp, from)

		case ServiceTunnelingRequest:
			tr, err := decodeTunnelingBody(frame.Body)
			if err != nil {
				continue
			}
			ack := tunnelingAckBody(g.channelID, tr.Sequence)
			resp, _ := Frame{Service: ServiceTunnelingAck, Body: ack}.Encode()
			_, _ = g.conn.WriteToUDP(resp, from)

		case ServiceConnStateRequest:
			status := byte(g.heartbeatStatus.Load())
			resp, _ := Frame{Service: ServiceConnStateResponse, Body: []byte{g.channelID, status}}.Encode()
			_, _ = g.conn.WriteToUDP(resp, from)

		case ServiceDisconnectRequest:
			resp, _ := Frame{Service: ServiceDisconnectResponse, Body: []byte{g.channelID, StatusNoError}}.Encode()
			_, _ = g.conn.WriteToUDP(resp, from)
		}
	}
}

func TestTunnelConnectAndDisconnect(t *testing.T) {
	gw := newFakeGateway(t)
	defer gw.close()

	tun := NewTunnel(TunnelConfig{Gateway: gw.addr()})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tun.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if tun.State() != StateConnected {
		t.Fatalf("State() = %v, want StateConnected", tun.State())
	}

	if err := tun.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if tun.State() != StateDisconnected {
		t.Fatalf("State() = %v, want StateDisconnected", tun.State())
	}
}

func TestTunnelGroupWriteUpdatesCache(t *testing.T) {
	gw := newFakeGateway(t)
	defer gw.close()

	tun := NewTunnel(TunnelConfig{Gateway: gw.addr()})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tun.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tun.Disconnect()

	addr := GroupAddress(1)
	if err := tun.GroupWrite(ctx, addr, []byte{0x01}); err != nil {
		t.Fatalf("GroupWrite: %v", err)
	}

	got, ok := tun.cache.Get(addr)
	if !ok || len(got) != 1 || got[0] != 0x01 {
		t.Errorf("cache after GroupWrite = %v, ok=%v", got, ok)
	}

	stats := tun.Stats()
	if stats.FramesSent == 0 || stats.FramesAcked == 0 {
		t.Errorf("Stats() = %+v, want non-zero sent/acked", stats)
	}
}

func TestTunnelGroupReadDeliversResponse(t *testing.T) {
	gw := newFakeGateway(t)
	defer gw.close()

	tun := NewTunnel(TunnelConfig{Gateway: gw.addr()})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tun.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tun.Disconnect()

	addr := GroupAddress(257) // "1/1"

	go func() {
		time.Sleep(50 * time.Millisecond)
		cemi, err := EncodeCEMI(0, addr, CommandGroupResponse, []byte{0x2a})
		if err != nil {
			return
		}
		// Flip the message code to L_Data.ind as a real gateway would for
		// an inbound notification.
		cemi[0] = cemiLDataInd
		gw.inbound <- cemi
	}()

	data, err := tun.GroupRead(ctx, addr, false)
	if err != nil {
		t.Fatalf("GroupRead: %v", err)
	}
	if len(data) != 1 || data[0] != 0x2a {
		t.Errorf("GroupRead = %v, want [0x2a]", data)
	}
}

func TestTunnelHeartbeatFailureDisconnects(t *testing.T) {
	gw := newFakeGateway(t)
	defer gw.close()

	tun := NewTunnel(TunnelConfig{
		Gateway:           gw.addr(),
		HeartbeatInterval: 30 * time.Millisecond,
		HeartbeatTimeout:  30 * time.Millisecond,
		HeartbeatRetries:  3,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tun.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tun.Disconnect()

	// Force every subsequent CONNECTIONSTATE_RESPONSE to report the
	// gateway's connection as invalid, simulating a gateway that has lost
	// track of this session.
	gw.heartbeatStatus.Store(uint32(StatusConnectionID))

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if tun.State() == StateDisconnected {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("State() = %v after repeated heartbeat failures, want StateDisconnected", tun.State())
}

func TestTunnelGroupToggle(t *testing.T) {
	gw := newFakeGateway(t)
	defer gw.close()

	tun := NewTunnel(TunnelConfig{Gateway: gw.addr()})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tun.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tun.Disconnect()

	addr := GroupAddress(1)
	tun.cache.Set(addr, []byte{0x00})

	if err := tun.GroupToggle(ctx, addr, true); err != nil {
		t.Fatalf("GroupToggle: %v", err)
	}
	got, ok := tun.cache.Get(addr)
	if !ok || len(got) != 1 || got[0] != 0x01 {
		t.Errorf("cache after GroupToggle = %v, ok=%v, want [1]", got, ok)
	}

	if err := tun.GroupToggle(ctx, addr, true); err != nil {
		t.Fatalf("GroupToggle: %v", err)
	}
	got, ok = tun.cache.Get(addr)
	if !ok || len(got) != 1 || got[0] != 0x00 {
		t.Errorf("cache after second GroupToggle = %v, ok=%v, want [0]", got, ok)
	}
}

func TestTunnelGroupToggleRejectsNonBooleanValue(t *testing.T) {
	gw := newFakeGateway(t)
	defer gw.close()

	tun := NewTunnel(TunnelConfig{Gateway: gw.addr()})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tun.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tun.Disconnect()

	addr := GroupAddress(1)
	tun.cache.Set(addr, []byte{0x05})

	if err := tun.GroupToggle(ctx, addr, true); !errors.Is(err, ErrBadOperation) {
		t.Fatalf("GroupToggle error = %v, want ErrBadOperation", err)
	}
}

func TestTunnelGroupReadUsesCache(t *testing.T) {
	gw := newFakeGateway(t)
	defer gw.close()

	tun := NewTunnel(TunnelConfig{Gateway: gw.addr()})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tun.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tun.Disconnect()

	addr := GroupAddress(1)
	tun.cache.Set(addr, []byte{0x09})

	data, err := tun.GroupRead(ctx, addr, true)
	if err != nil {
		t.Fatalf("GroupRead: %v", err)
	}
	if len(data) != 1 || data[0] != 0x09 {
		t.Errorf("GroupRead (cached) = %v, want [0x09]", data)
	}
}
