package relay

import "github.com/prometheus/client_golang/prometheus"

// Store label values.
const (
	StoreData = "data"
	StoreText = "text"
)

// Transport label values.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	RecordsPushed   *prometheus.CounterVec
	RecordsRejected prometheus.Counter
	RetainedRecords *prometheus.GaugeVec
	SessionsActive  *prometheus.GaugeVec
	SessionsOpened  *prometheus.CounterVec
	SessionsEvicted *prometheus.CounterVec
	BytesEmitted    *prometheus.CounterVec
	EmitBatch       *prometheus.HistogramVec
	RedactionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all relay metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsPushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splot_records_pushed_total",
			Help: "Total records pushed by the producer",
		}, []string{"store"}),
		RecordsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splot_records_rejected_total",
			Help: "Total tuples rejected for wrong arity",
		}),
		RetainedRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "splot_retained_records",
			Help: "Records currently retrievable (top - bottom)",
		}, []string{"store"}),
		SessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "splot_sessions_active",
			Help: "Currently connected tailing sessions",
		}, []string{"store", "transport"}),
		SessionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splot_sessions_opened_total",
			Help: "Total tailing sessions opened",
		}, []string{"store", "transport"}),
		SessionsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splot_sessions_evicted_total",
			Help: "Total sessions closed for falling behind the retention window",
		}, []string{"store"}),
		BytesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splot_bytes_emitted_total",
			Help: "Total encoded record bytes sent to sessions",
		}, []string{"store"}),
		EmitBatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "splot_emit_batch_records",
			Help:    "Records per emitted chunk",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"store"}),
		RedactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splot_redactions_total",
			Help: "Total redactions applied to text records by pattern",
		}, []string{"pattern"}),
	}
	reg.MustRegister(
		m.RecordsPushed,
		m.RecordsRejected,
		m.RetainedRecords,
		m.SessionsActive,
		m.SessionsOpened,
		m.SessionsEvicted,
		m.BytesEmitted,
		m.EmitBatch,
		m.RedactionsTotal,
	)
	return m
}
