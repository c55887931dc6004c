// Package commands implements vrouterctl's cobra subcommands. vrouterctl
// speaks the engine's own native CONTROL packet wire format directly over
// UDP rather than through an RPC client: there is no control-plane RPC
// service here, only the packet format internal/router already understands.
package commands

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/vrouted/vrouted/internal/router"
)

// ackTimeout bounds how long a command waits for vrouted's single-byte
// result acknowledgement before giving up.
const ackTimeout = 3 * time.Second

// ErrNoAck indicates vrouted did not acknowledge the command in time.
var ErrNoAck = errors.New("no acknowledgement from vrouted")

// sendControl builds a CONTROL packet addressed to nodeID with the given
// verb and argument, sends it to addr, and returns the single-byte result
// code vrouted's control listener echoes back (see cmd/vrouted/control.go).
func sendControl(addr string, nodeID uint32, verb byte, arg string) (int, error) {
	payload := string(verb) + " " + arg
	buf := make([]byte, router.HeaderSize+len(payload)+1) // +1 for the engine's own NUL terminator
	h := router.Header{Src: nodeID, Type: router.TypeControl, Length: uint16(len(payload))}
	if err := router.EncodeHeader(buf, h); err != nil {
		return 0, fmt.Errorf("encode control header: %w", err)
	}
	copy(buf[router.HeaderSize:], payload)

	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return 0, fmt.Errorf("resolve %q: %w", addr, err)
	}

	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return 0, fmt.Errorf("dial %q: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(buf); err != nil {
		return 0, fmt.Errorf("send control packet: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(ackTimeout)); err != nil {
		return 0, fmt.Errorf("set ack read deadline: %w", err)
	}

	ack := make([]byte, 1)
	n, err := conn.Read(ack)
	if err != nil || n != 1 {
		return 0, fmt.Errorf("%w: %v", ErrNoAck, err)
	}

	// The ack byte is the wire form of a signed result in {-1,0,1,>=2}; an
	// int8 round-trip recovers Drop (-1) from the wrapped byte 255.
	return int(int8(ack[0])), nil
}

// describeResult renders a control result code the way a human reading
// vrouterctl's output would expect. Control verbs only ever return -1 (no
// broadcast) or 0 (a DV broadcast was triggered); the full result range
// only appears when a data packet is handled, which never happens here.
func describeResult(result int) string {
	switch {
	case result == router.Drop:
		return "ok (no broadcast)"
	case result == 0:
		return "ok (dv broadcast triggered)"
	default:
		return fmt.Sprintf("unexpected result %d", result)
	}
}
