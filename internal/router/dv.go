package router

// absorbDV folds a received distance-vector packet into the routing table
// per §4.2's absorb_dv algorithm, then, if the table changed, overwrites buf
// with a freshly emitted DV packet and returns 0. Otherwise returns Drop.
func (r *Router) absorbDV(inPort int, buf []byte, h Header) int {
	var w int32 = -1
	if inPort >= 0 && inPort < len(r.portWeight) {
		w = r.portWeight[inPort]
	}

	advertiser := h.Src
	count := int(h.Dst)
	changed := false

	for i := 0; i < count; i++ {
		off := HeaderSize + i*dvEntrySize
		if off+dvEntrySize > len(buf) {
			break
		}
		e := decodeDVEntry(buf[off : off+dvEntrySize])

		// Split horizon: never adopt a route whose origin is ourselves.
		if e.NextHopID == r.id {
			continue
		}

		if e.Distance == -1 {
			if local, ok := r.table[e.IP]; ok && int(local.Port) == inPort {
				local.Distance = -1
				r.table[e.IP] = local
				changed = true
			}
			continue
		}

		newDist := e.Distance + w
		local, ok := r.table[e.IP]

		switch {
		case !ok:
			r.table[e.IP] = RouteEntry{Distance: newDist, Port: uint16(inPort), NextHopID: advertiser}
			changed = true
		case newDist < local.Distance || local.Distance == -1:
			r.table[e.IP] = RouteEntry{Distance: newDist, Port: uint16(inPort), NextHopID: advertiser}
			changed = true
		}
	}

	if !changed {
		return Drop
	}

	r.emitDV(buf)
	return 0
}

// emitDV serializes the full routing table into buf as an outgoing DV
// packet. No split-horizon suppression happens here; receivers suppress
// using each entry's NextHopID field.
func (r *Router) emitDV(buf []byte) {
	h := Header{
		Src:    r.id,
		Dst:    uint32(len(r.table)),
		Type:   TypeDV,
		Length: uint16(len(r.table) * dvEntrySize),
	}
	_ = EncodeHeader(buf, h)

	i := 0
	for ip, e := range r.table {
		off := HeaderSize + i*dvEntrySize
		encodeDVEntry(buf[off:off+dvEntrySize], dvEntry{IP: ip, Distance: e.Distance, NextHopID: e.NextHopID})
		i++
	}
}
