package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ledger's instrumentation. A nil *Metrics is valid and
// records nothing, so callers never have to guard before observing.
type Metrics struct {
	committed      *prometheus.CounterVec
	rejected       *prometheus.CounterVec
	migrations     *prometheus.CounterVec
	logSize        prometheus.Gauge
	archivedTxs    prometheus.Gauge
	totalSupply    prometheus.Gauge
	archiveSeconds prometheus.Histogram
}

// New builds the ledger collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbongo_transactions_committed_total",
			Help: "Committed transactions by kind.",
		}, []string{"kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbongo_transactions_rejected_total",
			Help: "Rejected transfer requests by reason.",
		}, []string{"reason"}),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbongo_migrations_total",
			Help: "Archive migration attempts by outcome.",
		}, []string{"outcome"}),
		logSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mbongo_log_size",
			Help: "Transactions currently held in the live log.",
		}),
		archivedTxs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mbongo_archived_transactions",
			Help: "Transactions the archive has confirmed as stored.",
		}),
		totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mbongo_total_supply",
			Help: "Circulating supply: minted minus burned.",
		}),
		archiveSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mbongo_archive_call_seconds",
			Help:    "Latency of archive append calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.committed,
		m.rejected,
		m.migrations,
		m.logSize,
		m.archivedTxs,
		m.totalSupply,
		m.archiveSeconds,
	)
	return m
}

// TxCommitted counts a committed transaction of the given kind.
func (m *Metrics) TxCommitted(kind string) {
	if m == nil {
		return
	}
	m.committed.WithLabelValues(kind).Inc()
}

// TxRejected counts a rejected request by rejection reason.
func (m *Metrics) TxRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// Migration counts a migration attempt outcome ("committed" or "failed").
func (m *Metrics) Migration(outcome string) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues(outcome).Inc()
}

// SetLogSize records the current live log size.
func (m *Metrics) SetLogSize(n uint64) {
	if m == nil {
		return
	}
	m.logSize.Set(float64(n))
}

// SetArchivedTxs records the archive's confirmed stored count.
func (m *Metrics) SetArchivedTxs(n uint64) {
	if m == nil {
		return
	}
	m.archivedTxs.Set(float64(n))
}

// SetTotalSupply records the circulating supply.
func (m *Metrics) SetTotalSupply(n uint64) {
	if m == nil {
		return
	}
	m.totalSupply.Set(float64(n))
}

// ObserveArchiveCall records the latency of one archive append.
func (m *Metrics) ObserveArchiveCall(d time.Duration) {
	if m == nil {
		return
	}
	m.archiveSeconds.Observe(d.Seconds())
}
