package commands

import (
	"net"
	"testing"
	"time"

	"github.com/vrouted/vrouted/internal/router"
)

// fakeVrouted is a minimal stand-in for vrouted's control listener: it reads
// one CONTROL packet, decodes its header, and replies with a fixed result
// byte so sendControl's ack path can be exercised without a real Manager.
func fakeVrouted(t *testing.T, result int8) (addr string, done <-chan router.Header) {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	recvCh := make(chan router.Header, 1)

	go func() {
		defer conn.Close()
		buf := make([]byte, router.MaxPacketSize)
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			return
		}
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		h, err := router.DecodeHeader(buf[:n])
		if err != nil {
			return
		}
		recvCh <- h
		_, _ = conn.WriteToUDP([]byte{byte(result)}, src)
	}()

	return conn.LocalAddr().String(), recvCh
}

func TestSendControlRoundTrip(t *testing.T) {
	t.Parallel()

	addr, recvCh := fakeVrouted(t, -1)

	result, err := sendControl(addr, 42, verbReleaseNAT, "10.0.0.5")
	if err != nil {
		t.Fatalf("sendControl: %v", err)
	}
	if result != router.Drop {
		t.Errorf("result = %d, want %d", result, router.Drop)
	}

	select {
	case h := <-recvCh:
		if h.Src != 42 {
			t.Errorf("header Src = %d, want 42", h.Src)
		}
		if h.Type != router.TypeControl {
			t.Errorf("header Type = %v, want %v", h.Type, router.TypeControl)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fake vrouted never received a packet")
	}
}

func TestSendControlNoAck(t *testing.T) {
	t.Parallel()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := conn.LocalAddr().String()
	conn.Close() // nothing is listening; the send succeeds but no ack ever arrives

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := sendControl(addr, 1, verbTriggerDV, "")
		if err == nil {
			t.Error("sendControl: expected error, got nil")
		}
	}()

	select {
	case <-done:
	case <-time.After(ackTimeout + 2*time.Second):
		t.Fatal("sendControl did not return after ack timeout")
	}
}

func TestDescribeResult(t *testing.T) {
	t.Parallel()

	cases := []struct {
		result int
		want   string
	}{
		{router.Drop, "ok (no broadcast)"},
		{0, "ok (dv broadcast triggered)"},
	}

	for _, tc := range cases {
		if got := describeResult(tc.result); got != tc.want {
			t.Errorf("describeResult(%d) = %q, want %q", tc.result, got, tc.want)
		}
	}
}
