package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/byteom/scanstation/internal/core/ports"
)

// HistoryHandler serves recorded scans
type HistoryHandler struct {
	Service ports.HistoryService
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(service ports.HistoryService) *HistoryHandler {
	return &HistoryHandler{
		Service: service,
	}
}

// HandleRecent returns the newest scan records
func (h *HistoryHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.Service.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("Failed to fetch scan history: %v", err)
		http.Error(w, "Failed to fetch scans", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"scans": records,
	})
}

// HandleSummary returns counts per outcome
func (h *HistoryHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.Summary(r.Context())
	if err != nil {
		log.Printf("Failed to summarize scan history: %v", err)
		http.Error(w, "Failed to summarize scans", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
