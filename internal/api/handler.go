package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/terrava/agrocore/internal/conversation"
	"github.com/terrava/agrocore/internal/dispatcher"
	"github.com/terrava/agrocore/internal/route"
	"go.uber.org/zap"
)

// Snapshotter reads the accumulated metric counters.
type Snapshotter interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	dispatcher *dispatcher.Dispatcher
	memory     *conversation.Store
	stats      Snapshotter
	logger     *zap.Logger
}

// NewHandler creates a new API handler. The conversation store may be nil
// when Redis is unavailable; the history endpoint then reports 503.
func NewHandler(d *dispatcher.Dispatcher, memory *conversation.Store, logger *zap.Logger) *Handler {
	return &Handler{dispatcher: d, memory: memory, logger: logger}
}

// WithStats attaches a metrics snapshot source for the stats endpoint.
func (h *Handler) WithStats(s Snapshotter) *Handler {
	h.stats = s
	return h
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/stats", h.getStats)
		r.Get("/routes", h.listRoutes)
		r.Post("/query", h.handleQuery)
		r.Post("/consensus", h.handleConsensus)
		r.Get("/conversations/{id}", h.getConversation)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "agrocore"})
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "metrics not initialized"})
		return
	}
	counters, err := h.stats.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("metrics snapshot failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "metrics snapshot failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"counters": counters})
}

// RouteInfo describes one routable destination for the registry listing.
type RouteInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Workflow bool   `json:"workflow"`
}

func (h *Handler) listRoutes(w http.ResponseWriter, r *http.Request) {
	infos := make([]RouteInfo, 0, len(route.All))
	for _, dest := range route.All {
		kind := "agent"
		if dest.IsWorkflow() {
			kind = "workflow"
		}
		infos = append(infos, RouteInfo{
			Name:     string(dest),
			Kind:     kind,
			Workflow: dest.IsWorkflow(),
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

type queryRequest struct {
	Query   string            `json:"query"`
	Context map[string]string `json:"context,omitempty"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	result := h.dispatcher.RouteAndExecute(r.Context(), req.Query, req.Context)
	writeJSON(w, http.StatusOK, result)
}

type consensusRequest struct {
	Query   string            `json:"query"`
	Context map[string]string `json:"context,omitempty"`
	Pattern string            `json:"pattern,omitempty"`
}

func (h *Handler) handleConsensus(w http.ResponseWriter, r *http.Request) {
	var req consensusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	result := h.dispatcher.RunConsensus(r.Context(), req.Query, req.Context, req.Pattern)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request) {
	if h.memory == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "conversation store not initialized"})
		return
	}
	id := chi.URLParam(r, "id")
	records, err := h.memory.Recent(r.Context(), id, 20)
	if err != nil {
		h.logger.Error("conversation read failed", zap.String("conversation_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "conversation read failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": id,
		"records":         records,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
