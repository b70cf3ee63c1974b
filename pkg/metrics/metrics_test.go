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

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordItemOperation(t *testing.T) {
	ItemOperationsTotal.Reset()
	ItemErrorsTotal.Reset()
	ItemOperationDuration.Reset()

	RecordItemOperation("save", "memory", false, 0.001, 0)
	RecordItemOperation("read", "memory", true, 0.002, -25300)

	assert.Equal(t, 1.0, testutil.ToFloat64(ItemOperationsTotal.WithLabelValues("save", "memory", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ItemOperationsTotal.WithLabelValues("read", "memory", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ItemErrorsTotal.WithLabelValues("read", "memory", "-25300")))
	assert.Equal(t, 2, testutil.CollectAndCount(ItemOperationDuration))
}

func TestRecordAuthenticationAndBusy(t *testing.T) {
	AuthenticationsTotal.Reset()
	BusyRejectionsTotal.Reset()

	RecordAuthentication("biometrics", OutcomeSuccess)
	RecordAuthentication("biometrics", OutcomeReused)
	RecordBusy(ComponentSession)

	assert.Equal(t, 2, testutil.CollectAndCount(AuthenticationsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(BusyRejectionsTotal.WithLabelValues(ComponentSession)))
}

func TestSetStoreHealth(t *testing.T) {
	StoreHealthy.Reset()
	SetStoreHealth("file", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(StoreHealthy.WithLabelValues("file")))
	SetStoreHealth("file", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(StoreHealthy.WithLabelValues("file")))
}

func TestEnableDisable(t *testing.T) {
	t.Cleanup(Enable)
	BusyRejectionsTotal.Reset()

	Disable()
	assert.False(t, IsEnabled())
	RecordBusy(ComponentItem)
	assert.Equal(t, 0, testutil.CollectAndCount(BusyRejectionsTotal))

	Enable()
	assert.True(t, IsEnabled())
	RecordBusy(ComponentItem)
	assert.Equal(t, 1, testutil.CollectAndCount(BusyRejectionsTotal))
}

func TestHTTPMiddleware(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, 1.0, testutil.ToFloat64(HTTPInFlight))
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/items/x", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(HTTPInFlight))
}

func TestHTTPMiddleware_ImplicitOK(t *testing.T) {
	HTTPRequestsTotal.Reset()

	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodPut, "200")))
}
