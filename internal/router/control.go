package router

import (
	"strconv"
	"strings"
)

// Control verbs (§4.3).
const (
	verbTriggerDV     = '0'
	verbReleaseNAT    = '1'
	verbSetPortWeight = '2'
	verbAddHost       = '3'
	verbBlock         = '5'
	verbUnblock       = '6'
)

// applyControl parses and applies one control verb from a CONTROL packet's
// payload (verb byte, space, NUL-terminated argument) and returns the result
// per the table in §4.3.
func (r *Router) applyControl(buf []byte, h Header) int {
	payload := buf[HeaderSize:]
	end := int(h.Length)
	if end < 0 || end >= len(payload) || end < 2 {
		return Drop
	}

	// The engine writes the terminating NUL itself before parsing the
	// argument.
	payload[end] = 0

	verb := payload[0]
	arg := string(payload[2:end])

	switch verb {
	case verbTriggerDV:
		r.emitDV(buf)
		return 0

	case verbReleaseNAT:
		r.releaseNAT(arg)
		return Drop

	case verbSetPortWeight:
		if !r.setPortWeight(arg) {
			return Drop
		}
		// Preserve the original's explicit fallthrough into the trigger-DV
		// behavior: update, then broadcast.
		r.emitDV(buf)
		return 0

	case verbAddHost:
		r.addHost(arg)
		return Drop

	case verbBlock:
		r.block(arg)
		return Drop

	case verbUnblock:
		r.unblock(arg)
		return Drop

	default:
		return Drop
	}
}

func (r *Router) releaseNAT(arg string) {
	ip, err := ParseIP(arg)
	if err != nil {
		return
	}
	ext, ok := r.forward[ip]
	if !ok {
		return
	}
	delete(r.forward, ip)
	delete(r.reverse, ext)
	r.pool = append(r.pool, ext)
}

// setPortWeight applies the three-way port-weight update semantics of
// §4.3 and reports whether the argument parsed.
func (r *Router) setPortWeight(arg string) bool {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return false
	}

	port, err := strconv.Atoi(fields[0])
	if err != nil || port < 0 || port >= len(r.portWeight) {
		return false
	}

	value, err := strconv.Atoi(fields[1])
	if err != nil {
		return false
	}
	newWeight := int32(value)
	oldWeight := r.portWeight[port]

	switch {
	case newWeight == -1:
		r.portWeight[port] = -1
		for ip, e := range r.table {
			if int(e.Port) == port {
				e.Distance = -1
				r.table[ip] = e
			}
		}

	case oldWeight == -1:
		r.portWeight[port] = newWeight

	default:
		delta := newWeight - oldWeight
		r.portWeight[port] = newWeight
		for ip, e := range r.table {
			if int(e.Port) == port && e.Distance != -1 {
				e.Distance += delta
				r.table[ip] = e
			}
		}
	}

	return true
}

func (r *Router) addHost(arg string) {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return
	}

	port, err := strconv.Atoi(fields[0])
	if err != nil || port < 0 || port >= len(r.portWeight) {
		return
	}

	ip, err := ParseIP(fields[1])
	if err != nil {
		return
	}

	r.table[ip] = RouteEntry{Distance: 0, Port: uint16(port), NextHopID: 0}
	r.portWeight[port] = 0
}

func (r *Router) block(arg string) {
	ip, err := ParseIP(arg)
	if err != nil {
		return
	}
	r.blocked[ip] = struct{}{}
}

func (r *Router) unblock(arg string) {
	ip, err := ParseIP(arg)
	if err != nil {
		return
	}
	delete(r.blocked, ip)
}
