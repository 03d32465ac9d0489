package tunnel

import (
	"testing"
	"time"
)

func TestTimerAccumulatesAcrossLayers(t *testing.T) {
	tm := newTimer()

	tm.startDial()
	time.Sleep(2 * time.Millisecond)
	tm.endDial()

	tm.startTLS()
	time.Sleep(2 * time.Millisecond)
	tm.endTLS()

	tm.startTLS()
	time.Sleep(2 * time.Millisecond)
	tm.endTLS()

	tm.startTTFB()
	time.Sleep(2 * time.Millisecond)
	tm.endTTFB()

	m := tm.metrics()
	if m.DialConnect <= 0 {
		t.Errorf("DialConnect = %v, want > 0", m.DialConnect)
	}
	if m.TLSHandshake < 4*time.Millisecond {
		t.Errorf("TLSHandshake = %v, want >= 4ms (sum of two layers)", m.TLSHandshake)
	}
	if m.TTFB <= 0 {
		t.Errorf("TTFB = %v, want > 0", m.TTFB)
	}
	if m.TotalTime < m.DialConnect+m.TLSHandshake+m.TTFB {
		t.Errorf("TotalTime = %v, want >= sum of phases", m.TotalTime)
	}
}

func TestMetricsStringIsNonEmpty(t *testing.T) {
	m := Metrics{DialConnect: time.Millisecond, TLSHandshake: 2 * time.Millisecond}
	if s := m.String(); s == "" {
		t.Error("String() returned empty")
	}
}
