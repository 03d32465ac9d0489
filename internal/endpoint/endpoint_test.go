package endpoint

import "testing"

func TestNewRejections(t *testing.T) {
	tests := []struct {
		name string
		host string
		port uint16
	}{
		{"zero port", "example.com", 0},
		{"empty host", "", 80},
		{"unbracketed ipv6", "::1", 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.host, tt.port); err == nil {
				t.Fatalf("New(%q, %d) = nil error, want invalidEndpoint", tt.host, tt.port)
			}
		})
	}
}

func TestNewAccepts(t *testing.T) {
	tests := []struct {
		name string
		host string
		port uint16
	}{
		{"bracketed ipv6", "[::1]", 80},
		{"dns name", "example.com", 443},
		{"ipv4 literal", "127.0.0.1", 8080},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.host, tt.port)
			if err != nil {
				t.Fatalf("New(%q, %d) unexpected error: %v", tt.host, tt.port, err)
			}
			if e.Host() != tt.host || e.Port() != tt.port {
				t.Fatalf("got (%q, %d), want (%q, %d)", e.Host(), e.Port(), tt.host, tt.port)
			}
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	tests := []struct {
		host string
		port uint16
	}{
		{"example.com", 443},
		{"[2001:db8:85a3::8a2e:370:7334]", 443},
		{"127.0.0.1", 80},
	}
	for _, tt := range tests {
		e, err := New(tt.host, tt.port)
		if err != nil {
			t.Fatalf("New(%q, %d): %v", tt.host, tt.port, err)
		}
		gotHost, gotPort, err := Parse(e.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", e.String(), err)
		}
		if gotHost != tt.host || gotPort != tt.port {
			t.Fatalf("round trip = (%q, %d), want (%q, %d)", gotHost, gotPort, tt.host, tt.port)
		}
	}
}

func TestEqual(t *testing.T) {
	a, _ := New("example.com", 443)
	b, _ := New("example.com", 443)
	c, _ := New("example.com", 80)
	if !a.Equal(b) {
		t.Fatal("expected equal endpoints to be Equal")
	}
	if a.Equal(c) {
		t.Fatal("expected different ports to not be Equal")
	}
}
