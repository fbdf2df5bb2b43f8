package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"

	"spider/internal/domain"
	"spider/internal/pattern"
	"spider/internal/service"
)

// Handler serves the Spider HTTP API
type Handler struct {
	svc     *service.Service
	library *pattern.Library
}

// New creates the API handler
func New(svc *service.Service, library *pattern.Library) *Handler {
	return &Handler{svc: svc, library: library}
}

// Routes registers all API routes on the mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/hosts", h.ListHosts)
	mux.HandleFunc("GET /api/graph/{host}", h.GetGraph)
	mux.HandleFunc("GET /api/graph/{host}/deltas", h.GetDeltas)
	mux.HandleFunc("GET /api/compare", h.CompareHosts)
	mux.HandleFunc("GET /api/diagnose", h.GetDiagnosis)
	mux.HandleFunc("POST /api/scan", h.TriggerScan)
	mux.HandleFunc("GET /api/summary", h.GetSummary)
	mux.HandleFunc("GET /api/patterns", h.ListPatterns)
	mux.HandleFunc("POST /api/patterns/reload", h.ReloadPatterns)
	mux.HandleFunc("POST /api/patterns/{id}/solutions/{sid}/outcome", h.RecordOutcome)
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HostInfo describes one host's published state
type HostInfo struct {
	HostID     string `json:"host_id"`
	Generation uint64 `json:"generation"`
	Entities   int    `json:"entities"`
	Edges      int    `json:"edges"`
	Stale      bool   `json:"stale"`
}

// ListHosts returns every host's live generation and stale flag
func (h *Handler) ListHosts(w http.ResponseWriter, r *http.Request) {
	graphs, stale := h.svc.Ingestor.PublishedAll()

	infos := make([]HostInfo, 0, len(graphs))
	for hostID, g := range graphs {
		infos = append(infos, HostInfo{
			HostID:     hostID,
			Generation: g.Generation,
			Entities:   len(g.Entities),
			Edges:      len(g.Edges),
			Stale:      stale[hostID],
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].HostID < infos[j].HostID })

	h.writeJSON(w, infos, http.StatusOK)
}

// GetGraph returns a host's live graph, or a specific persisted
// generation when ?generation= is given
func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	hostID := r.PathValue("host")

	if gen := r.URL.Query().Get("generation"); gen != "" {
		generation, err := strconv.ParseUint(gen, 10, 64)
		if err != nil {
			h.writeError(w, "Invalid generation", gen, http.StatusBadRequest)
			return
		}
		g, err := h.svc.Ingestor.GraphAt(r.Context(), hostID, generation)
		if err != nil {
			log.Printf("Failed to load graph %s/%d: %v", hostID, generation, err)
			h.writeError(w, "Failed to load graph", err.Error(), http.StatusInternalServerError)
			return
		}
		if g == nil {
			h.writeError(w, "Generation not found", gen, http.StatusNotFound)
			return
		}
		h.writeJSON(w, g, http.StatusOK)
		return
	}

	g := h.svc.Ingestor.Published(hostID)
	if g == nil {
		h.writeError(w, "Host not found", "no published generation for "+hostID, http.StatusNotFound)
		return
	}
	h.writeJSON(w, g, http.StatusOK)
}

// CompareHosts diffs the shared entities of two hosts' live graphs
func (h *Handler) CompareHosts(w http.ResponseWriter, r *http.Request) {
	hostA := r.URL.Query().Get("a")
	hostB := r.URL.Query().Get("b")
	if hostA == "" || hostB == "" {
		h.writeError(w, "Missing host", "both a and b query params are required", http.StatusBadRequest)
		return
	}

	delta, err := h.svc.Ingestor.CompareHosts(hostA, hostB)
	if err != nil {
		h.writeError(w, "Host not found", err.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, delta, http.StatusOK)
}

// GetDeltas returns a host's recent transitions, newest first. With
// ?from= and ?to= it instead computes the transition between those two
// persisted generations.
func (h *Handler) GetDeltas(w http.ResponseWriter, r *http.Request) {
	hostID := r.PathValue("host")
	if h.svc.Ingestor.Published(hostID) == nil {
		h.writeError(w, "Host not found", "no published generation for "+hostID, http.StatusNotFound)
		return
	}

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from != "" || to != "" {
		fromGen, err := strconv.ParseUint(from, 10, 64)
		if err != nil {
			h.writeError(w, "Invalid from generation", from, http.StatusBadRequest)
			return
		}
		toGen, err := strconv.ParseUint(to, 10, 64)
		if err != nil {
			h.writeError(w, "Invalid to generation", to, http.StatusBadRequest)
			return
		}
		delta, err := h.svc.Ingestor.DeltaBetween(r.Context(), hostID, fromGen, toGen)
		if err != nil {
			h.writeError(w, "Failed to compute delta", err.Error(), http.StatusNotFound)
			return
		}
		h.writeJSON(w, delta, http.StatusOK)
		return
	}

	deltas, err := h.svc.Diagnoser.RecentDeltas(r.Context(), hostID)
	if err != nil {
		log.Printf("Failed to load deltas for %s: %v", hostID, err)
		h.writeError(w, "Failed to load deltas", err.Error(), http.StatusInternalServerError)
		return
	}
	if deltas == nil {
		deltas = []*domain.GraphDelta{}
	}
	h.writeJSON(w, deltas, http.StatusOK)
}

// GetDiagnosis returns the latest ranked diagnosis results
func (h *Handler) GetDiagnosis(w http.ResponseWriter, r *http.Request) {
	_, results := h.svc.Latest()
	if results == nil {
		results = []domain.DiagnosisResult{}
	}
	h.writeJSON(w, results, http.StatusOK)
}

// TriggerScan starts a scan-and-diagnose cycle in the background
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	go func() {
		h.svc.RunOnce(context.Background())
	}()
	h.writeJSON(w, map[string]string{"status": "scan_triggered"}, http.StatusAccepted)
}

// GetSummary returns the most recent cycle summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, _ := h.svc.Latest()
	h.writeJSON(w, summary, http.StatusOK)
}

// PatternsResponse lists the loaded pattern library
type PatternsResponse struct {
	Patterns []domain.DiagnosticPattern `json:"patterns"`
	Rejected int                        `json:"rejected"`
}

// ListPatterns returns the loaded patterns and how many the last load
// rejected
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, PatternsResponse{
		Patterns: h.library.Patterns(),
		Rejected: h.library.Rejected(),
	}, http.StatusOK)
}

// ReloadPatterns re-reads the pattern library from disk
func (h *Handler) ReloadPatterns(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Diagnoser.ReloadPatterns(); err != nil {
		log.Printf("Pattern reload failed: %v", err)
		h.writeError(w, "Failed to reload patterns", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, map[string]any{
		"patterns": len(h.library.Patterns()),
		"rejected": h.library.Rejected(),
	}, http.StatusOK)
}

// OutcomeRequest marks a suggested solution as having worked or not
type OutcomeRequest struct {
	Success bool `json:"success"`
}

// RecordOutcome stores operator feedback for a solution
func (h *Handler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	patternID := r.PathValue("id")
	solutionID := r.PathValue("sid")

	var req OutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.Diagnoser.RecordOutcome(r.Context(), patternID, solutionID, req.Success); err != nil {
		h.writeError(w, "Failed to record outcome", err.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, map[string]string{"status": "recorded"}, http.StatusOK)
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
