package router_test

import (
	"testing"

	"github.com/vrouted/vrouted/internal/router"
)

func TestParseIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{in: "10.0.0.1", want: 0x0A000001},
		{in: "8.8.8.2", want: 0x08080802},
		{in: "255.255.255.255", want: 0xFFFFFFFF},
		{in: "0.0.0.0", want: 0},
		{in: "10.0.0", wantErr: true},
		{in: "10.0.0.256", wantErr: true},
		{in: "not-an-ip", wantErr: true},
	}

	for _, tc := range tests {
		got, err := router.ParseIP(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseIP(%q): want error, got nil", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseIP(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseIP(%q) = %#x, want %#x", tc.in, got, tc.want)
		}
	}
}

func TestParseCIDR(t *testing.T) {
	t.Parallel()

	first, last, err := router.ParseCIDR("8.8.8.0/30")
	if err != nil {
		t.Fatalf("ParseCIDR: %v", err)
	}
	wantFirst, _ := router.ParseIP("8.8.8.0")
	wantLast, _ := router.ParseIP("8.8.8.3")
	if first != wantFirst || last != wantLast {
		t.Errorf("ParseCIDR(8.8.8.0/30) = (%#x, %#x), want (%#x, %#x)", first, last, wantFirst, wantLast)
	}

	if _, _, err := router.ParseCIDR("10.0.0.0/8"); err != nil {
		t.Errorf("ParseCIDR(10.0.0.0/8): unexpected error: %v", err)
	}

	if _, _, err := router.ParseCIDR("bogus"); err == nil {
		t.Error("ParseCIDR(bogus): want error, got nil")
	}

	if _, _, err := router.ParseCIDR("10.0.0.0/33"); err == nil {
		t.Error("ParseCIDR with prefix 33: want error, got nil")
	}
}

func TestIsInternal(t *testing.T) {
	t.Parallel()

	internal, _ := router.ParseIP("10.1.2.3")
	external, _ := router.ParseIP("8.8.8.8")

	if !router.IsInternal(internal) {
		t.Error("10.1.2.3 should be internal")
	}
	if router.IsInternal(external) {
		t.Error("8.8.8.8 should not be internal")
	}
}
