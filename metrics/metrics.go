// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "briefly",
		Name:      "group_requests_created_total",
		Help:      "Group requests created by clients.",
	})

	RequestsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "briefly",
		Name:      "group_requests_completed_total",
		Help:      "Group requests that reached a terminal status.",
	}, []string{"status"})

	RequestsExpiredBySweep = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "briefly",
		Name:      "group_requests_swept_total",
		Help:      "Pending requests transitioned to expired by a sweep.",
	})

	DocumentDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "briefly",
		Name:      "document_downloads_total",
		Help:      "Document download attempts by result.",
	}, []string{"result"})

	DocumentsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "briefly",
		Name:      "documents_unlocked_total",
		Help:      "Documents flipped to unlocked, by the path that observed the payment.",
	}, []string{"source"})

	ChainCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "briefly",
		Name:      "chain_calls_total",
		Help:      "Contract calls by method and result.",
	}, []string{"method", "result"})

	ChatConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "briefly",
		Name:      "chat_connections",
		Help:      "Open group chat WebSocket connections.",
	})
)

// ObserveChainCall records the outcome of a contract call.
func ObserveChainCall(method string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ChainCalls.WithLabelValues(method, result).Inc()
}
