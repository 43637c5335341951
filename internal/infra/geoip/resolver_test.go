package geoip

import (
	"errors"
	"testing"
)

type staticResolver map[string]string

func (s staticResolver) CountryCode(ip string) (string, error) {
	code, ok := s[ip]
	if !ok {
		return "", errors.New("unknown")
	}
	return code, nil
}

func TestNewResolverEmptyPath(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil resolver for empty path")
	}
	if _, err := r.CountryCode("8.8.8.8"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("CountryCode on nil resolver = %v, want ErrUnavailable", err)
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

func TestLookupFunc(t *testing.T) {
	if LookupFunc(nil) != nil {
		t.Fatalf("nil resolver should give nil lookup")
	}
	var typedNil *Resolver
	if LookupFunc(typedNil) != nil {
		t.Fatalf("typed nil resolver should give nil lookup")
	}
	fn := LookupFunc(staticResolver{"1.2.3.4": "ID"})
	got, err := fn("1.2.3.4")
	if err != nil || got != "ID" {
		t.Fatalf("lookup = %q, %v", got, err)
	}
}

func TestParseRoutable(t *testing.T) {
	tests := []struct {
		ip      string
		wantNil bool
		wantErr bool
	}{
		{ip: "127.0.0.1", wantNil: true},
		{ip: "10.1.2.3", wantNil: true},
		{ip: "192.168.0.9", wantNil: true},
		{ip: "::1", wantNil: true},
		{ip: "fe80::1", wantNil: true},
		{ip: "8.8.8.8"},
		{ip: "not-an-ip", wantNil: true, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseRoutable(tt.ip)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseRoutable(%q) err = %v", tt.ip, err)
		}
		if (got == nil) != tt.wantNil {
			t.Fatalf("parseRoutable(%q) = %v", tt.ip, got)
		}
	}
}
