package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Parse metrics
	Parses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrparse_parses_total",
			Help: "Total number of document parses",
		},
		[]string{"outcome"}, // outcome: text, skipped, encrypted, empty, failed
	)

	ParseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocrparse_parse_duration_seconds",
			Help:    "Document parse duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		},
		[]string{"kind"}, // kind: pdf, image
	)

	TextLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocrparse_text_length",
			Help:    "Length of extracted text",
			Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
	)

	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrparse_fallback_total",
			Help: "Total number of safe-fallback recognition passes",
		},
		[]string{"reason"}, // reason: no_text, input_file
	)

	// Remote OCR API metrics
	APICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrparse_api_calls_total",
			Help: "Total number of remote OCR API calls by outcome",
		},
		[]string{"endpoint", "result"}, // result: ok, rejected, exhausted
	)

	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrparse_api_retries_total",
			Help: "Total number of retried remote OCR API attempts",
		},
		[]string{"endpoint"},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrparse_token_refresh_total",
			Help: "Total number of token refreshes and logins",
		},
		[]string{"result"}, // result: refreshed, relogin, failed
	)

	// Queue metrics
	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocrparse_tasks_in_flight",
			Help: "Number of parse tasks currently being processed",
		},
	)
)

// ObserveParse records the outcome, duration and text length of one parse.
func ObserveParse(kind, outcome string, started time.Time, textLen int) {
	ObserveOutcome(kind, outcome, started)
	TextLength.Observe(float64(textLen))
}

// ObserveOutcome records the outcome and duration of a parse that produced
// no text: failed parses and field-only parses.
func ObserveOutcome(kind, outcome string, started time.Time) {
	Parses.WithLabelValues(outcome).Inc()
	ParseDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
