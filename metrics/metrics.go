package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	conversions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiffconv",
			Name:      "conversions_total",
			Help:      "Conversions by output format and result",
		},
		[]string{"format", "result"},
	)

	conversionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tiffconv",
			Name:      "conversion_duration_seconds",
			Help:      "Duration of conversions by output format",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	pagesConverted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiffconv",
			Name:      "pages_converted_total",
			Help:      "Pages written to output containers by format",
		},
		[]string{"format"},
	)

	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiffconv",
			Name:      "bytes_total",
			Help:      "Bytes read and written by direction (in, out)",
		},
		[]string{"direction"},
	)

	fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiffconv",
			Name:      "decoder_fallbacks_total",
			Help:      "Documents handed to the secondary decoder by reason",
		},
		[]string{"reason"},
	)

	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiffconv",
			Name:      "failures_total",
			Help:      "Failed conversions by error kind",
		},
		[]string{"kind"},
	)

	registerOnce sync.Once
)

// Init registers the collectors with the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(conversions, conversionLatency, pagesConverted, bytesTotal, fallbacks, failures)
	})
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveConversion(format, result string, dur time.Duration) {
	conversions.WithLabelValues(format, result).Inc()
	conversionLatency.WithLabelValues(format).Observe(dur.Seconds())
}

func AddPages(format string, n int) { pagesConverted.WithLabelValues(format).Add(float64(n)) }

func AddBytes(in, out int) {
	bytesTotal.WithLabelValues("in").Add(float64(in))
	bytesTotal.WithLabelValues("out").Add(float64(out))
}

func IncFallback(reason string) { fallbacks.WithLabelValues(reason).Inc() }

func IncFailure(kind string) { failures.WithLabelValues(kind).Inc() }
