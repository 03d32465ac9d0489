// Package config bundles the tunable knobs an Orchestrator needs: one
// struct, sane zero values, a WithDefaults constructor rather than a long
// positional argument list.
package config

import (
	"crypto/x509"
	"time"

	"github.com/tunnelstack/httpss/internal/pinning"
	"go.uber.org/zap"
)

// Options configures one Orchestrator. The zero value is usable: it dials
// with no pins, no deadline, and a nop logger.
type Options struct {
	// DialTimeout bounds the initial raw TCP connection to the first
	// proxy. Zero means no timeout beyond the caller's context.
	DialTimeout time.Duration

	// HandshakeTimeout bounds each layer's TLS handshake individually.
	// Zero means no per-handshake timeout beyond the caller's context.
	HandshakeTimeout time.Duration

	// Pins is consulted per-host; a host absent from the table gets
	// platform default trust evaluation.
	Pins pinning.Table

	// RootCAs overrides the platform trust store for every layer's chain
	// verification when non-nil. Nil means "use the platform defaults",
	// the common case; set for private-CA proxy deployments and tests.
	RootCAs *x509.CertPool

	// Logger receives structured Debug-level events as each TLS layer is
	// wrapped and established, and Info/Error-level events when a request
	// completes or a dial, handshake, write or stream error ends it. Nil
	// falls back to a no-op logger.
	Logger *zap.Logger
}

// WithDefaults returns a copy of o with a non-nil Logger.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Pins == nil {
		o.Pins = pinning.Table{}
	}
	return o
}
