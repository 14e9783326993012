package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestObserversAreSafeBeforeInit(t *testing.T) {
	// Collector package vars may be nil when Init has not run; every
	// observer must tolerate that.
	ObserveFetchAttempt("web-fast", "ok")
	ObserveChannelFetch("success")
	AddEntriesDiscovered(3)
	ObserveDownload("completed")
	DownloadStarted()
	DownloadFinished()
	ObserveHTTPRequest(http.MethodGet, "/api/videos", http.StatusOK, time.Millisecond)
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	ObserveFetchAttempt("web-fast", "ok")
	AddEntriesDiscovered(2)
	ObserveDownload("error")
	DownloadStarted()
	DownloadFinished()
}

func TestMetricsHandlerServes(t *testing.T) {
	Init()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.String())
}

func TestMiddlewareRecordsRoutedRequests(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/videos", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
