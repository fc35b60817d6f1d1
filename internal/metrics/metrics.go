// Package metrics holds the Prometheus counters shared by dailymail stages.
// All methods are safe on a nil *Metrics so components can run without them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dailymail"

// Feed fetch outcomes.
const (
	OutcomeFetched     = "fetched"
	OutcomeNotModified = "not_modified"
	OutcomeFailed      = "failed"
)

// Metrics groups every counter exported by the pipeline.
type Metrics struct {
	FeedFetches      *prometheus.CounterVec
	EntriesEnqueued  *prometheus.CounterVec
	EntriesDuplicate *prometheus.CounterVec
	LedgerSwept      prometheus.Counter
	BatchMessages    *prometheus.CounterVec
	DeadLettered     *prometheus.CounterVec
	LinksSubmitted   prometheus.Counter
	DigestsSent      prometheus.Counter
	DigestRecords    prometheus.Counter
}

// New registers all counters on reg, or on the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		FeedFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "fetches_total",
			Help: "Feed fetches by outcome.",
		}, []string{"outcome"}),
		EntriesEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "entries_enqueued_total",
			Help: "Normalized feed entries sent to the scraper queue.",
		}, []string{"source"}),
		EntriesDuplicate: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "entries_duplicate_total",
			Help: "Feed entries skipped because the ledger already had them.",
		}, []string{"source"}),
		LedgerSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "swept_total",
			Help: "Ledger rows removed by the retention sweep.",
		}),
		BatchMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "batch_messages_total",
			Help: "Batch-processed queue messages by stream and result.",
		}, []string{"stream", "result"}),
		DeadLettered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "dead_lettered_total",
			Help: "Messages moved to a dead-letter stream.",
		}, []string{"stream"}),
		LinksSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "link_reader", Name: "submitted_total",
			Help: "Links accepted by the link reader.",
		}),
		DigestsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "digest", Name: "sent_total",
			Help: "Digest emails sent.",
		}),
		DigestRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "digest", Name: "records_total",
			Help: "Records included in sent digests.",
		}),
	}
}

func (m *Metrics) FeedFetched(outcome string) {
	if m == nil {
		return
	}
	m.FeedFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EntryEnqueued(source string) {
	if m == nil {
		return
	}
	m.EntriesEnqueued.WithLabelValues(source).Inc()
}

func (m *Metrics) EntryDuplicate(source string) {
	if m == nil {
		return
	}
	m.EntriesDuplicate.WithLabelValues(source).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil {
		return
	}
	m.LedgerSwept.Add(float64(n))
}

func (m *Metrics) BatchResult(stream string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.BatchMessages.WithLabelValues(stream, "succeeded").Add(float64(succeeded))
	m.BatchMessages.WithLabelValues(stream, "failed").Add(float64(failed))
}

func (m *Metrics) DeadLetter(stream string) {
	if m == nil {
		return
	}
	m.DeadLettered.WithLabelValues(stream).Inc()
}

func (m *Metrics) LinkSubmitted() {
	if m == nil {
		return
	}
	m.LinksSubmitted.Inc()
}

func (m *Metrics) DigestSent(records int) {
	if m == nil {
		return
	}
	m.DigestsSent.Inc()
	m.DigestRecords.Add(float64(records))
}
