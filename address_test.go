package netcore

import (
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	texts := []string{
		"127.0.0.1:80",
		"10.0.0.1:65535",
		"192.168.1.254:1",
		"[::1]:8080",
		"[fe80::1]:443",
		"[2001:db8::42]:9999",
	}
	for _, text := range texts {
		addr, err := ParseAddress(text)
		if err != nil {
			t.Fatalf("ParseAddress(%q) error: %+v", text, err)
		}
		back, err := ParseAddress(addr.String())
		if err != nil {
			t.Fatalf("re-parse of %q error: %+v", addr.String(), err)
		}
		if !addr.Equal(back) {
			t.Errorf("round trip of %q lost information: %s != %s", text, addr, back)
		}
	}
}

func TestParseAddressSchemePort(t *testing.T) {
	addr, err := ParseAddress("127.0.0.1:http")
	if err != nil {
		t.Fatalf("ParseAddress error: %+v", err)
	}
	if addr.Port() != 80 {
		t.Errorf("http scheme port = %d, want 80", addr.Port())
	}
	addr, err = ParseAddress("[::1]:https")
	if err != nil {
		t.Fatalf("ParseAddress error: %+v", err)
	}
	if addr.Port() != 443 {
		t.Errorf("https scheme port = %d, want 443", addr.Port())
	}
	_, err = ParseAddress("127.0.0.1:nosuchscheme")
	if err == nil {
		t.Error("expected error for unknown scheme port")
	}
}

func TestParseAddressBadText(t *testing.T) {
	for _, text := range []string{"", "no-port", "300.300.300.300:80"} {
		_, err := ParseAddress(text)
		if err == nil {
			t.Errorf("ParseAddress(%q) expected error", text)
		}
	}
}

func TestResolveUnknownHostIsEmpty(t *testing.T) {
	list := ResolveAddress("definitely-not-a-real-host.invalid", 80, FamilyAny)
	if len(list) != 0 {
		t.Errorf("expected empty list for unresolvable name, got %d entries", len(list))
	}
}

func TestAddressFamilies(t *testing.T) {
	v4, err := NewAddress("127.0.0.1", 80, FamilyAny)
	if err != nil {
		t.Fatalf("NewAddress v4 error: %+v", err)
	}
	if v4.IsIPv6() {
		t.Error("127.0.0.1 classified as IPv6")
	}
	if len(v4.RawBytes()) != 4 {
		t.Errorf("v4 raw bytes length = %d", len(v4.RawBytes()))
	}
	v6, err := NewAddress("::1", 80, FamilyAny)
	if err != nil {
		t.Fatalf("NewAddress v6 error: %+v", err)
	}
	if !v6.IsIPv6() {
		t.Error("::1 not classified as IPv6")
	}
	if len(v6.RawBytes()) != 16 {
		t.Errorf("v6 raw bytes length = %d", len(v6.RawBytes()))
	}
	// A v4 literal with a v6-only preference is a mismatch.
	_, err = NewAddress("127.0.0.1", 80, FamilyIPv6)
	if err == nil {
		t.Error("expected family mismatch error")
	}
}

func TestAddressCloneAndPool(t *testing.T) {
	addr, err := ParseAddress("127.0.0.1:80")
	if err != nil {
		t.Fatalf("ParseAddress error: %+v", err)
	}
	clone := addr.Clone()
	if !addr.Equal(clone) {
		t.Error("clone differs from original")
	}
	clone.port = 81
	if addr.Equal(clone) {
		t.Error("mutating the clone changed the original")
	}
	pool := addr.CreateAddressPool(8)
	if len(pool) != 8 {
		t.Fatalf("pool size = %d", len(pool))
	}
	for i, p := range pool {
		if !p.Equal(addr) {
			t.Errorf("pool slot %d differs from template", i)
		}
	}
}

func TestGetSchemePort(t *testing.T) {
	if GetSchemePort("ssh") != 22 {
		t.Error("ssh port lookup failed")
	}
	if GetSchemePort("HTTP") != 80 {
		t.Error("scheme lookup should be case-insensitive")
	}
	if GetSchemePort("gopher") != 0 {
		t.Error("unknown scheme should yield 0")
	}
}
