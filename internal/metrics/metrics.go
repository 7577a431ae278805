package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid_input"
)

// Metrics holds the collectors for token operations
type Metrics struct {
	encodeTotal    *prometheus.CounterVec
	decodeTotal    *prometheus.CounterVec
	decodeDuration *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
}

// New registers the token collectors with reg. A nil reg uses the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		encodeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replyaddr_encode_total",
				Help: "Total number of reply and bounce tokens encoded",
			},
			[]string{"kind", "outcome"},
		),
		decodeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replyaddr_decode_total",
				Help: "Total number of reply and bounce tokens decoded, by verified format",
			},
			[]string{"kind", "format", "outcome"},
		),
		decodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "replyaddr_decode_duration_seconds",
				Help:    "Time spent decoding tokens",
				Buckets: []float64{.000005, .00001, .000025, .00005, .0001, .00025, .0005, .001},
			},
			[]string{"kind"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replyaddr_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"route", "code"},
		),
	}
}

// RecordEncode counts an encode attempt
func (m *Metrics) RecordEncode(kind, outcome string) {
	if m == nil {
		return
	}
	m.encodeTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordDecode counts a decode attempt. format is empty for rejections.
func (m *Metrics) RecordDecode(kind, format string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeRejected
		format = "none"
	}
	m.decodeTotal.WithLabelValues(kind, format, outcome).Inc()
	m.decodeDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordHTTPRequest counts an API request
func (m *Metrics) RecordHTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}
