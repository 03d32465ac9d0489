// Package xlog provides the zap logger used across the tunnel packages.
//
// The orchestrator is a background state machine reacting to stream
// events across N layered TLS sessions, and a caller debugging a stuck
// chain needs to see which layer and which state it died in, so each
// layer's setup (with its depth and resulting state) gets a structured log
// line rather than relying on error messages alone.
package xlog

import "go.uber.org/zap"

// Nop is a no-op logger used whenever the caller does not supply one.
var Nop = zap.NewNop()

// Named returns a child logger scoped to component, falling back to Nop
// when base is nil so callers never need a nil check.
func Named(base *zap.Logger, component string) *zap.Logger {
	if base == nil {
		return Nop
	}
	return base.Named(component)
}
