// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anishelf_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anishelf_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	PersistsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anishelf_persists_total",
			Help: "List data persist attempts by result",
		},
		[]string{"result"}, // written, blocked, failed
	)

	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anishelf_reconcile_runs_total",
			Help: "Tracked-media update checks by result",
		},
		[]string{"result"}, // completed, skipped, failed
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anishelf_notifications_created_total",
			Help: "Notifications materialised by kind",
		},
		[]string{"kind"},
	)

	SharedSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anishelf_shared_syncs_total",
			Help: "Shared-data syncs by outcome",
		},
		[]string{"outcome"},
	)

	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anishelf_catalog_requests_total",
			Help: "Catalog requests by status",
		},
		[]string{"status"},
	)
)
