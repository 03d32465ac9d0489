// Package pinning implements the certificate-pinning predicate injected
// into TLS trust evaluation.
package pinning

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"

	"github.com/tunnelstack/httpss/internal/xerrors"
)

// Table is an immutable, read-only-shareable map of expected host to the
// DER-encoded leaf certificate pinned for it. Construction is the caller's
// responsibility (loading from a bundle, OS keystore, etc.); Table only
// ever consumes the bytes.
type Table map[string][]byte

// Pinner is the per-host predicate. A nil *Pinner means "no pin configured
// for this host, fall back to platform trust defaults".
type Pinner struct {
	host   string
	pinned []byte
}

// For returns the pinner for host, or nil if host has no pinned leaf.
func (t Table) For(host string) *Pinner {
	leaf, ok := t[host]
	if !ok {
		return nil
	}
	return &Pinner{host: host, pinned: leaf}
}

// VerifyConnection is installed as tls.Config.VerifyConnection. The
// runtime only invokes it once the platform's normal chain verification
// has already succeeded — or skips it entirely if InsecureSkipVerify is
// set, in which case pinning alone gates trust — and then it requires the
// leaf to match byte-for-byte.
func (p *Pinner) VerifyConnection(cs tls.ConnectionState) error {
	if p == nil {
		return nil
	}
	if len(cs.PeerCertificates) == 0 {
		return xerrors.NewPinningFailed(p.host)
	}
	leaf := cs.PeerCertificates[0]
	if !bytes.Equal(leaf.Raw, p.pinned) {
		return xerrors.NewPinningFailed(p.host)
	}
	return nil
}

// VerifyLeaf is a lower-level helper for callers that already hold a
// parsed certificate, for use only on the server-trust path.
func (p *Pinner) VerifyLeaf(leaf *x509.Certificate) error {
	if p == nil {
		return nil
	}
	if !bytes.Equal(leaf.Raw, p.pinned) {
		return xerrors.NewPinningFailed(p.host)
	}
	return nil
}
