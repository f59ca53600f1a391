package http

import (
	"net/http"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/mail"
	"github.com/campuskeep/campuskeep/internal/onboard/store"
	"github.com/campuskeep/campuskeep/pkg/httpx"
	"github.com/campuskeep/campuskeep/pkg/onboardsdk"
)

// LivezHandler always reports ok while the process is serving.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, onboardsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler verifies the store connection before reporting ready.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, onboardsdk.HealthResponse{
				Status:  "unavailable",
				Uptime:  time.Since(startTime).String(),
				Version: version,
			})
			return
		}

		httpx.WriteJSON(w, http.StatusOK, onboardsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// QueueStatusHandler exposes the delivery queue snapshot for monitoring.
func QueueStatusHandler(q *mail.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := q.Status()
		httpx.WriteJSON(w, http.StatusOK, onboardsdk.QueueStatusResponse{
			Pending: st.Pending,
			Sending: st.Sending,
			Total:   st.Total,
		})
	}
}
