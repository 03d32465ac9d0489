// Package tlsprofile carries the TLS version/cipher defaults every layer
// of the tunnel uses unless a caller overrides them: the platform's
// strongest current default policy, equivalent to App Transport
// Security's v1 profile.
package tlsprofile

import "crypto/tls"

// ATSv1 is the default profile: TLS 1.2 minimum, with the ECDHE/AEAD
// cipher suites ATS v1 requires for TLS 1.2 connections (TLS 1.3 suites
// are chosen by the runtime and need no explicit list).
var ATSv1 = struct {
	MinVersion   uint16
	CipherSuites []uint16
}{
	MinVersion: tls.VersionTLS12,
	CipherSuites: []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	},
}

// Base returns a fresh *tls.Config configured to the ATSv1 profile with
// the given SNI server name. Callers layer VerifyConnection (for pinning),
// RootCAs, and InsecureSkipVerify (for tests) on top.
func Base(serverName string) *tls.Config {
	return &tls.Config{
		MinVersion:   ATSv1.MinVersion,
		CipherSuites: ATSv1.CipherSuites,
		ServerName:   serverName,
	}
}

// VersionName returns a human-readable name, used only for log fields.
func VersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "unknown"
	}
}
