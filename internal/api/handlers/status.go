// Package handlers holds the status API request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wonny/autoinvest/pkg/logger"
)

// Store is the slice of the persistence layer the handlers need.
type Store interface {
	Enabled(ctx context.Context) (bool, error)
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	NextExecution(ctx context.Context) (*time.Time, error)
	ScheduledOrderCount(ctx context.Context) (int, error)
}

// Pinger reports database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusHandler answers the operator endpoints.
type StatusHandler struct {
	store Store
	db    Pinger
	log   *logger.Logger
}

// NewStatusHandler creates the handler set.
func NewStatusHandler(store Store, db Pinger, log *logger.Logger) *StatusHandler {
	return &StatusHandler{store: store, db: db, log: log}
}

// Health reports process and database health.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.log.WithError(err).Error("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Enabled         bool       `json:"enabled"`
	ScheduledOrders int        `json:"scheduledOrders"`
	NextExecution   *time.Time `json:"nextExecution,omitempty"`
}

// GetStatus returns the enabled flag and timetable summary.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	enabled, err := h.store.Enabled(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}
	count, err := h.store.ScheduledOrderCount(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}
	next, err := h.store.NextExecution(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Enabled:         enabled,
		ScheduledOrders: count,
		NextExecution:   next,
	})
}

// Enable turns order placement on.
func (h *StatusHandler) Enable(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Enable(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

// Disable turns order placement off; the next cycle clears the
// timetable.
func (h *StatusHandler) Disable(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Disable(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
}

func (h *StatusHandler) fail(w http.ResponseWriter, err error) {
	h.log.WithError(err).Error("Status API request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal error",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
