// Package endpoint implements the validated (host, port) value used for
// every hop in a proxy chain, plus the target of the final request.
package endpoint

import (
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/tunnelstack/httpss/internal/xerrors"
)

// Endpoint is an immutable (host, port) pair. Host is stored exactly as
// parsed: a DNS label, a dotted-quad IPv4 literal, or a bracketed IPv6
// literal (brackets kept).
type Endpoint struct {
	host string
	port uint16
}

// New validates host and port and returns an Endpoint, or
// *xerrors.Error{Code: "invalidEndpoint"} on any violation.
func New(host string, port uint16) (Endpoint, error) {
	if host == "" {
		return Endpoint{}, xerrors.NewInvalidEndpoint("host is empty")
	}
	if port == 0 {
		return Endpoint{}, xerrors.NewInvalidEndpoint("port is zero")
	}

	if strings.Contains(host, ":") && !isBracketedIPv6(host) {
		// A bare "::1"-style literal is rejected; only "[::1]" is accepted.
		return Endpoint{}, xerrors.NewInvalidEndpoint("IPv6 literal must be bracketed: " + host)
	}

	if isBracketedIPv6(host) {
		// The text between the brackets must itself be an IPv6 literal.
		inner := host[1 : len(host)-1]
		if !strings.Contains(inner, ":") || net.ParseIP(inner) == nil {
			return Endpoint{}, xerrors.NewInvalidEndpoint("invalid IPv6 literal: " + host)
		}
	} else if _, err := idna.Lookup.ToASCII(host); err != nil {
		return Endpoint{}, xerrors.NewInvalidEndpoint("host is not a valid DNS name or IPv4 literal: " + host)
	}

	return Endpoint{host: host, port: port}, nil
}

func isBracketedIPv6(host string) bool {
	return strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]")
}

// Host returns the endpoint's host exactly as stored.
func (e Endpoint) Host() string { return e.host }

// Port returns the endpoint's port.
func (e Endpoint) Port() uint16 { return e.port }

// Network is always "tcp"; kept as a method (rather than a bare constant)
// so callers can pass an Endpoint directly wherever a dial network string
// is expected.
func (e Endpoint) Network() string { return "tcp" }

// String formats the endpoint as "host:port", keeping IPv6 hosts bracketed.
func (e Endpoint) String() string {
	return e.host + ":" + strconv.Itoa(int(e.port))
}

// Equal reports structural equality.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.host == other.host && e.port == other.port
}

// Parse splits a "host:port" or bracketed-IPv6 "[host]:port" string back
// into host and port, the inverse of String for the Endpoint's own format.
func Parse(s string) (host string, port uint16, err error) {
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return "", 0, xerrors.NewInvalidEndpoint("unterminated IPv6 literal: " + s)
		}
		host = s[:end+1]
		rest := s[end+1:]
		if !strings.HasPrefix(rest, ":") {
			return "", 0, xerrors.NewInvalidEndpoint("missing port after IPv6 literal: " + s)
		}
		p, perr := strconv.ParseUint(rest[1:], 10, 16)
		if perr != nil {
			return "", 0, xerrors.NewInvalidEndpoint("invalid port: " + rest[1:])
		}
		return host, uint16(p), nil
	}

	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", 0, xerrors.NewInvalidEndpoint("missing port: " + s)
	}
	host = s[:idx]
	p, perr := strconv.ParseUint(s[idx+1:], 10, 16)
	if perr != nil {
		return "", 0, xerrors.NewInvalidEndpoint("invalid port: " + s[idx+1:])
	}
	return host, uint16(p), nil
}
