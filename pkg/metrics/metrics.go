// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-identity.
//
// go-identity is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for keychain item
// operations, authentication outcomes and the HTTP surface.
package metrics

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all identity metrics
	Namespace = "identity"

	LabelOperation  = "operation"
	LabelStore      = "store"
	LabelStatus     = "status"
	LabelCode       = "code"
	LabelPolicy     = "policy"
	LabelOutcome    = "outcome"
	LabelComponent  = "component"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	StatusSuccess = "success"
	StatusError   = "error"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeReused  = "reused"
	OutcomeBusy    = "busy"

	ComponentItem    = "item"
	ComponentSession = "session"
)

var (
	// ItemOperationsTotal counts keychain item operations by event, store and status.
	ItemOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "item_operations_total",
			Help:      "Total number of keychain item operations by operation, store, and status",
		},
		[]string{LabelOperation, LabelStore, LabelStatus},
	)

	// ItemOperationDuration tracks store round-trip latency per operation.
	ItemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "item_operation_duration_seconds",
			Help:      "Duration of keychain item operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelOperation, LabelStore},
	)

	// ItemErrorsTotal counts failed item operations by result code.
	ItemErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "item_errors_total",
			Help:      "Total number of failed keychain item operations by result code",
		},
		[]string{LabelOperation, LabelStore, LabelCode},
	)

	// AuthenticationsTotal counts authenticate calls by policy and outcome.
	AuthenticationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "authentications_total",
			Help:      "Total number of authentication attempts by policy and outcome",
		},
		[]string{LabelPolicy, LabelOutcome},
	)

	// BusyRejectionsTotal counts operations refused because another was in flight.
	BusyRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "busy_rejections_total",
			Help:      "Total number of operations rejected with Busy",
		},
		[]string{LabelComponent},
	)

	// HTTPRequestsTotal counts API requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// HTTPInFlight is the number of requests being served.
	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// StoreHealthy is 1 when the last health probe of a store succeeded.
	StoreHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "store_healthy",
			Help:      "Indicates whether a secure store is healthy (1) or unhealthy (0)",
		},
		[]string{LabelStore},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordItemOperation records one item operation. duration is in seconds.
//
// Example:
//
//	start := time.Now()
//	err := adapter.Put(ctx, scope, id, value, opts)
//	metrics.RecordItemOperation(types.EventSave, "file", err != nil, time.Since(start).Seconds(), types.CodeOf(err))
func RecordItemOperation(operation, store string, failed bool, duration float64, code int) {
	if !enabled.Load() {
		return
	}
	status := StatusSuccess
	if failed {
		status = StatusError
		ItemErrorsTotal.WithLabelValues(operation, store, strconv.Itoa(code)).Inc()
	}
	ItemOperationsTotal.WithLabelValues(operation, store, status).Inc()
	ItemOperationDuration.WithLabelValues(operation, store).Observe(duration)
}

// RecordAuthentication records an authenticate outcome (Outcome* constants).
func RecordAuthentication(policy, outcome string) {
	if !enabled.Load() {
		return
	}
	AuthenticationsTotal.WithLabelValues(policy, outcome).Inc()
}

// RecordBusy records a Busy rejection for a component.
func RecordBusy(component string) {
	if !enabled.Load() {
		return
	}
	BusyRejectionsTotal.WithLabelValues(component).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// SetStoreHealth sets the health gauge of a store.
func SetStoreHealth(store string, healthy bool) {
	if !enabled.Load() {
		return
	}
	value := 0.0
	if healthy {
		value = 1.0
	}
	StoreHealthy.WithLabelValues(store).Set(value)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
