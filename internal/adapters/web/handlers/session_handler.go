package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
	"github.com/gorilla/mux"
)

const commandTimeout = 5 * time.Second

// SessionHandler exposes the scan session state and commands
type SessionHandler struct {
	Session ports.ScanSession
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(session ports.ScanSession) *SessionHandler {
	return &SessionHandler{
		Session: session,
	}
}

// HandleGetSession returns the current view model
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Session.View())
}

// HandleGetDevices returns the enumerated cameras and the active one
func (h *SessionHandler) HandleGetDevices(w http.ResponseWriter, r *http.Request) {
	devices, active := h.Session.Devices()
	if devices == nil {
		devices = []domain.CameraDevice{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"devices": devices,
		"active":  active,
	})
}

// HandleCommand runs rearm, switch or reload
func (h *SessionHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	var run func(context.Context) error
	switch action {
	case "rearm":
		run = h.Session.Rearm
	case "switch":
		run = h.Session.SwitchCamera
	case "reload":
		run = h.Session.Reload
	default:
		http.Error(w, "Unknown action", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := run(ctx); err != nil {
		status := commandStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("Session command failed", "action", action, "error", err)
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Session.View())
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNoSwitchTarget):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
