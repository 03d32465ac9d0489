package tunnel

import (
	"fmt"
	"time"
)

// Metrics captures how long each phase of one Issue call took. Unlike a
// single-hop HTTP client, TLSHandshake here is the sum across every layer
// the chain required, not a single handshake.
type Metrics struct {
	DialConnect  time.Duration
	TLSHandshake time.Duration
	TTFB         time.Duration
	TotalTime    time.Duration
}

// String renders m for structured log fields and debugging.
func (m Metrics) String() string {
	return fmt.Sprintf("dial=%v tlsHandshake=%v ttfb=%v total=%v",
		m.DialConnect, m.TLSHandshake, m.TTFB, m.TotalTime)
}

// timer accumulates the phase durations of one in-flight Issue call.
type timer struct {
	start time.Time

	dialStart time.Time
	dial      time.Duration

	tlsStart time.Time
	tlsAccum time.Duration

	requestSent time.Time
	firstResp   time.Time
}

func newTimer() *timer {
	return &timer{start: time.Now()}
}

func (t *timer) startDial() { t.dialStart = time.Now() }
func (t *timer) endDial()   { t.dial = time.Since(t.dialStart) }

// startTLS/endTLS bracket one layer's handshake; called once per layer, so
// tlsAccum is the sum across the whole chain.
func (t *timer) startTLS() { t.tlsStart = time.Now() }
func (t *timer) endTLS()   { t.tlsAccum += time.Since(t.tlsStart) }

func (t *timer) startTTFB() { t.requestSent = time.Now() }
func (t *timer) endTTFB()   { t.firstResp = time.Now() }

func (t *timer) metrics() Metrics {
	var ttfb time.Duration
	if !t.requestSent.IsZero() && !t.firstResp.IsZero() {
		ttfb = t.firstResp.Sub(t.requestSent)
	}
	return Metrics{
		DialConnect:  t.dial,
		TLSHandshake: t.tlsAccum,
		TTFB:         ttfb,
		TotalTime:    time.Since(t.start),
	}
}
