package server

import (
	"encoding/json"
	"net/http"

	"github.com/byteom/scanstation/internal/adapters/web/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", s.SessionHandler.HandleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/devices", s.SessionHandler.HandleGetDevices).Methods(http.MethodGet)
	api.HandleFunc("/scans", s.HistoryHandler.HandleRecent).Methods(http.MethodGet)
	api.HandleFunc("/scans/summary", s.HistoryHandler.HandleSummary).Methods(http.MethodGet)

	// Commands (rate limited per client)
	commands := api.PathPrefix("/session").Subrouter()
	commands.Use(middleware.RateLimitMiddleware(s.CommandLimiter))
	commands.HandleFunc("/{action:rearm|switch|reload}", s.SessionHandler.HandleCommand).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.WSManager.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	vm := s.Session.View()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "ok",
		"session":    vm.Status,
		"ws_clients": s.WSManager.ClientCount(),
	})
}
