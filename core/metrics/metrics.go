// Package metrics holds the process-wide Prometheus collectors. They are
// registered once on the default registry and served at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttachmentFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incidentreg_attachment_fetch_total",
		Help: "Attachment fetches by kind and result (hit, miss)",
	}, []string{"kind", "result"})

	AttachmentWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incidentreg_attachment_writes_total",
		Help: "Attachment create, replace and delete operations by kind",
	}, []string{"kind", "op"})

	LegacyOwnershipScans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "incidentreg_legacy_ownership_scans_total",
		Help: "Exhaustive incident scans performed to resolve generic attachment ownership",
	})

	LegacyOwnershipScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "incidentreg_legacy_ownership_scan_duration_seconds",
		Help:    "Duration of exhaustive ownership scans",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	OrphanAttachments = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "incidentreg_orphan_attachments",
		Help: "Attachments without a controlling region, per kind, as of the last sweep",
	}, []string{"kind"})

	AuthorizationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incidentreg_authorization_decisions_total",
		Help: "Region management authorization decisions",
	}, []string{"decision"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incidentreg_http_requests_total",
		Help: "HTTP requests by route pattern, method and status",
	}, []string{"route", "method", "status"})
)

// ObserveLegacyScan records one exhaustive scan started at start.
func ObserveLegacyScan(start time.Time) {
	LegacyOwnershipScans.Inc()
	LegacyOwnershipScanDuration.Observe(time.Since(start).Seconds())
}
