package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// MemoRenderTotal counts memo generation outcomes (ok, rejected, render_error, delivery_error).
	MemoRenderTotal *prometheus.CounterVec
	// MemoRenderDuration records PDF rendering latency in milliseconds.
	MemoRenderDuration prometheus.Histogram
	// MemoDocumentBytes records the size of rendered memo documents.
	MemoDocumentBytes prometheus.Histogram
	// MemoDeliveryTotal counts delivery attempts per sink and outcome.
	MemoDeliveryTotal *prometheus.CounterVec
	// MemoDeliveryDuration records delivery latency per sink in milliseconds.
	MemoDeliveryDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		MemoRenderTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memo_render_total",
			Help:      "Count of memo generation requests by outcome.",
		}, []string{"result"})
		MemoRenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memo_render_duration_ms",
			Help:      "Latency for rendering memo PDFs in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		})
		MemoDocumentBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memo_document_bytes",
			Help:      "Size of rendered memo PDFs in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10),
		})
		MemoDeliveryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memo_delivery_total",
			Help:      "Count of memo deliveries by sink and outcome.",
		}, []string{"sink", "result"})
		MemoDeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memo_delivery_duration_ms",
			Help:      "Latency for handing memos to the delivery sink in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"sink"})

		mustRegisterCollector(reg, MemoRenderTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				MemoRenderTotal = v
			}
		})
		mustRegisterCollector(reg, MemoRenderDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				MemoRenderDuration = v
			}
		})
		mustRegisterCollector(reg, MemoDocumentBytes, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				MemoDocumentBytes = v
			}
		})
		mustRegisterCollector(reg, MemoDeliveryTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				MemoDeliveryTotal = v
			}
		})
		mustRegisterCollector(reg, MemoDeliveryDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				MemoDeliveryDuration = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
