// Package api exposes the historical intelligence engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/hindsight/internal/event"
	"github.com/nidhogg/hindsight/internal/fault"
	"github.com/nidhogg/hindsight/internal/history"
	"github.com/nidhogg/hindsight/internal/pattern"
	"github.com/nidhogg/hindsight/internal/report"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	events     *event.Store
	reports    *report.Index
	recognizer *pattern.Recognizer
	aggregator *history.Aggregator
	logger     *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	events *event.Store,
	reports *report.Index,
	recognizer *pattern.Recognizer,
	aggregator *history.Aggregator,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		events:     events,
		reports:    reports,
		recognizer: recognizer,
		aggregator: aggregator,
		logger:     logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Event log routes
		r.Post("/events", h.logEvent)
		r.Post("/events/similar", h.querySimilarEvents)
		r.Get("/events/history", h.eventHistory)

		// Report index routes
		r.Post("/reports", h.storeReport)
		r.Get("/reports/{id}", h.getReport)
		r.Post("/reports/search", h.searchReports)
		r.Get("/reports/semantic", h.semanticSearch)
		r.Post("/reports/{id}/archive", h.archiveReport)
		r.Get("/entities/{type}/{id}/reports", h.entityReports)

		// Pattern routes
		r.Get("/patterns", h.systemPatterns)
		r.Get("/patterns/entity/{id}", h.entityPatterns)

		// Aggregated context
		r.Post("/context", h.historicalContext)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "hindsight"})
}

type logEventRequest struct {
	EventType  string              `json:"event_type"`
	Payload    map[string]any      `json:"payload"`
	EntityRefs map[string][]string `json:"entity_refs"`
	UserID     string              `json:"user_id"`
}

func (h *Handler) logEvent(w http.ResponseWriter, r *http.Request) {
	var req logEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id, err := h.events.LogEvent(r.Context(), req.EventType, req.Payload, req.EntityRefs, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type similarEventsRequest struct {
	EventType    string         `json:"event_type"`
	Reference    map[string]any `json:"reference"`
	LookbackDays int            `json:"lookback_days"`
}

func (h *Handler) querySimilarEvents(w http.ResponseWriter, r *http.Request) {
	var req similarEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.LookbackDays == 0 {
		req.LookbackDays = 365
	}

	events, err := h.events.QuerySimilar(r.Context(), req.EventType, req.Reference, req.LookbackDays)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []*event.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (h *Handler) eventHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := intQuery(q.Get("days"), 30)

	events, err := h.events.GetHistory(r.Context(), q.Get("entity_type"), q.Get("entity_id"), days)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []*event.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (h *Handler) storeReport(w http.ResponseWriter, r *http.Request) {
	var rep report.Report
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id, err := h.reports.StoreReport(r.Context(), &rep)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type searchReportsRequest struct {
	Query       string `json:"query"`
	EquipmentID string `json:"equipment_id"`
	DateFrom    string `json:"date_from"`
	DateTo      string `json:"date_to"`
	Limit       int    `json:"limit"`
}

func (h *Handler) searchReports(w http.ResponseWriter, r *http.Request) {
	var req searchReportsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sc := &report.SearchContext{EquipmentID: req.EquipmentID}
	if req.DateFrom != "" {
		t, err := time.Parse(time.RFC3339, req.DateFrom)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date_from must be RFC3339"})
			return
		}
		sc.DateFrom = t
	}
	if req.DateTo != "" {
		t, err := time.Parse(time.RFC3339, req.DateTo)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date_to must be RFC3339"})
			return
		}
		sc.DateTo = t
	}

	result, err := h.reports.RetrieveSimilar(r.Context(), req.Query, sc, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) semanticSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.reports.SemanticSearch(r.Context(), q.Get("q"), intQuery(q.Get("limit"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type archiveRequest struct {
	Reason     string `json:"reason"`
	ArchivedBy string `json:"archived_by"`
}

func (h *Handler) archiveReport(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.reports.Archive(r.Context(), chi.URLParam(r, "id"), req.Reason, req.ArchivedBy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (h *Handler) entityReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.HistoryForEntity(r.Context(),
		chi.URLParam(r, "type"), chi.URLParam(r, "id"),
		intQuery(r.URL.Query().Get("limit"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []*report.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports, "count": len(reports)})
}

func (h *Handler) systemPatterns(w http.ResponseWriter, r *http.Request) {
	p, err := h.recognizer.Analyze(r.Context(), intQuery(r.URL.Query().Get("days"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) entityPatterns(w http.ResponseWriter, r *http.Request) {
	p, err := h.recognizer.PatternsForEntity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type contextRequest struct {
	EventType    string         `json:"event_type"`
	Data         map[string]any `json:"data"`
	LookbackDays int            `json:"lookback_days"`
}

func (h *Handler) historicalContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	c, err := h.aggregator.GetHistoricalContext(r.Context(), req.EventType, req.Data, req.LookbackDays)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var ve *fault.ValidationError
	switch {
	case fault.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case fault.IsBackendUnavailable(err):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
