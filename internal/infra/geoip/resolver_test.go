package geoip

import (
	"errors"
	"net/netip"
	"testing"
)

func TestNewResolverEmptyPath(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil resolver")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close on nil resolver: %v", err)
	}
}

func TestNewResolverMissingFile(t *testing.T) {
	if _, err := NewResolver(t.TempDir() + "/missing.mmdb"); err == nil {
		t.Fatalf("expected error for missing database")
	}
}

func TestCountryCodeWithoutDatabase(t *testing.T) {
	var r *Resolver
	code, err := r.CountryCode("127.0.0.1")
	if err != nil || code != "" {
		t.Fatalf("loopback: code=%q err=%v", code, err)
	}
	if _, err := r.CountryCode("8.8.8.8"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := r.CountryCode("not-an-ip"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRoutable(t *testing.T) {
	cases := map[string]bool{
		"8.8.8.8":          true,
		"2001:4860::8888":  true,
		"10.1.2.3":         false,
		"192.168.0.1":      false,
		"::1":              false,
		"::ffff:127.0.0.1": false,
		"169.254.1.1":      false,
	}
	for raw, want := range cases {
		if got := Routable(netip.MustParseAddr(raw)); got != want {
			t.Fatalf("Routable(%s) = %v, want %v", raw, got, want)
		}
	}
}
