package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	Init()
	Init() // second call must not panic on duplicate registration

	before := testutil.ToFloat64(fallbacks.WithLabelValues("geometry"))
	IncFallback("geometry")
	if got := testutil.ToFloat64(fallbacks.WithLabelValues("geometry")); got != before+1 {
		t.Errorf("fallback counter = %v, want %v", got, before+1)
	}

	ObserveConversion("PDF", "success", 10*time.Millisecond)
	if got := testutil.ToFloat64(conversions.WithLabelValues("PDF", "success")); got < 1 {
		t.Errorf("conversions counter = %v, want >= 1", got)
	}

	AddBytes(100, 40)
	if got := testutil.ToFloat64(bytesTotal.WithLabelValues("out")); got < 40 {
		t.Errorf("bytes out = %v, want >= 40", got)
	}
}
