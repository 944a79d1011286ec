// Package api exposes inventory, dashboard and scan sessions over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"stockscan/internal/capture"
	"stockscan/internal/dashboard"
	"stockscan/internal/data"
	"stockscan/internal/inventory"
	"stockscan/internal/logger"
	"stockscan/internal/middleware"
	"stockscan/internal/notify"
	"stockscan/internal/scan"
)

// HistoryStore is satisfied by *data.History.
type HistoryStore interface {
	Ping(ctx context.Context) error
	RecentEvents(ctx context.Context, limit int) ([]data.ScanEvent, error)
}

// Server holds the services the handlers work on.
type Server struct {
	Inventory *inventory.Service
	Scans     *scan.Manager
	Dashboard *dashboard.Builder
	Recent    *notify.Recent
	Notifier  notify.Notifier
	History   HistoryStore // nil when history is disabled
	// DetectionMode is reported by /healthz ("remote" or "simulated").
	DetectionMode string
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	if s.Notifier == nil {
		s.Notifier = notify.Discard
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)

	mux.HandleFunc("GET /api/inventory", s.listItems)
	mux.HandleFunc("POST /api/inventory", s.createItem)
	mux.HandleFunc("GET /api/inventory/{id}", s.getItem)
	mux.HandleFunc("PUT /api/inventory/{id}", s.updateItem)
	mux.HandleFunc("DELETE /api/inventory/{id}", s.deleteItem)

	mux.HandleFunc("GET /api/dashboard", s.dashboard)

	mux.HandleFunc("POST /api/scans", s.createScan)
	mux.HandleFunc("GET /api/scans/history", s.scanHistory)
	mux.HandleFunc("GET /api/scans/{id}", s.getScan)
	mux.HandleFunc("DELETE /api/scans/{id}", s.closeScan)
	mux.HandleFunc("POST /api/scans/{id}/camera", s.startCamera)
	mux.HandleFunc("POST /api/scans/{id}/camera/cancel", s.cancelCamera)
	mux.HandleFunc("POST /api/scans/{id}/capture", s.captureFrame)
	mux.HandleFunc("POST /api/scans/{id}/upload", s.upload)
	mux.HandleFunc("POST /api/scans/{id}/reset", s.resetScan)
	mux.HandleFunc("POST /api/scans/{id}/confirm", s.confirmScan)

	mux.HandleFunc("GET /api/notifications", s.notifications)

	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	history := "disabled"
	if s.History != nil {
		if err := s.History.Ping(r.Context()); err != nil {
			logger.LogError("Health check failed: %v", err)
			middleware.WriteAPIError(w, r, http.StatusServiceUnavailable, "unhealthy", "Scan history is unavailable", err.Error())
			return
		}
		history = "ok"
	}

	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"status":    "ok",
		"detection": s.DetectionMode,
		"history":   history,
		"sessions":  s.Scans.Count(),
		"inventory": s.Inventory.Stats(),
	})
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Dashboard.Build(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, summary)
}

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	list := []notify.Notification{}
	if s.Recent != nil {
		list = s.Recent.List(r.URL.Query().Get("session"))
	}
	middleware.WriteAPISuccess(w, r, list)
}

// writeError maps domain errors onto status codes and the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := http.StatusInternalServerError, "internal_error", "An internal error occurred"

	var perm *capture.PermissionError
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", "Item not found"
	case errors.Is(err, scan.ErrSessionNotFound):
		status, code, message = http.StatusNotFound, "not_found", "Scan session not found"
	case errors.Is(err, inventory.ErrInvalidItem):
		status, code, message = http.StatusBadRequest, "invalid_item", "Name is required and quantity must not be negative"
	case errors.Is(err, scan.ErrBusy):
		status, code, message = http.StatusConflict, "busy", "A detection is already in progress"
	case errors.Is(err, scan.ErrInvalidState):
		status, code, message = http.StatusConflict, "invalid_state", "Not allowed in the current scan state"
	case errors.Is(err, scan.ErrNothingToConfirm):
		status, code, message = http.StatusConflict, "nothing_to_confirm", "There is no detection result to confirm"
	case errors.Is(err, scan.ErrClosed):
		status, code, message = http.StatusConflict, "session_closed", "Scan session is closed"
	case errors.Is(err, capture.ErrCameraInUse):
		status, code, message = http.StatusConflict, "camera_busy", "Camera is in use by another scan"
	case errors.As(err, &perm):
		status, code, message = http.StatusServiceUnavailable, "camera_unavailable", "Could not access camera. Please check permissions."
	case errors.Is(err, capture.ErrTooLarge):
		status, code, message = http.StatusRequestEntityTooLarge, "image_too_large", "Image is too large"
	case errors.Is(err, capture.ErrNotImage), errors.Is(err, capture.ErrBadDataURL), errors.Is(err, capture.ErrEmptyImage):
		status, code, message = http.StatusBadRequest, "invalid_image", "Please select an image file"
	}

	if status >= http.StatusInternalServerError {
		logger.LogHTTPError(r, status, err)
	}
	middleware.WriteAPIError(w, r, status, code, message, err.Error())
}

func badRequest(w http.ResponseWriter, r *http.Request, details string) {
	middleware.WriteAPIError(w, r, http.StatusBadRequest, "bad_request", "Invalid request", details)
}
