package router_test

import (
	"testing"

	"github.com/vrouted/vrouted/internal/router"
)

func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []router.Header{
		{Src: 0x0A000001, Dst: 0x0A000005, Type: router.TypeData, Length: 0},
		{Src: 1, Dst: 3, Type: router.TypeDV, Length: 36},
		{Src: 0xFFFFFFFF, Dst: 0, Type: router.TypeControl, Length: 1234},
	}

	for _, h := range cases {
		buf := make([]byte, router.HeaderSize)
		if err := router.EncodeHeader(buf, h); err != nil {
			t.Fatalf("EncodeHeader(%+v): %v", h, err)
		}
		got, err := router.DecodeHeader(buf)
		if err != nil {
			t.Fatalf("DecodeHeader: %v", err)
		}
		if got != h {
			t.Errorf("round trip = %+v, want %+v", got, h)
		}
	}
}

func TestHeaderLengthNotByteSwapped(t *testing.T) {
	t.Parallel()

	buf := make([]byte, router.HeaderSize)
	h := router.Header{Src: 1, Dst: 2, Type: router.TypeDV, Length: 0x0102}
	if err := router.EncodeHeader(buf, h); err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}

	// Length is host-order, not byte-swapped like Src/Dst: the raw wire
	// bytes at offset 9 must equal the host-endian encoding of 0x0102.
	wantLo, wantHi := byte(0x02), byte(0x01)
	if buf[9] != wantLo || buf[10] != wantHi {
		t.Errorf("length wire bytes = %02x %02x, want %02x %02x", buf[9], buf[10], wantLo, wantHi)
	}
}

func TestDecodeHeaderTooShort(t *testing.T) {
	t.Parallel()

	if _, err := router.DecodeHeader(make([]byte, router.HeaderSize-1)); err == nil {
		t.Error("DecodeHeader on truncated buffer: want error, got nil")
	}
}
