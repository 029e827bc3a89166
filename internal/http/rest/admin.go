// Package rest exposes the operational HTTP surface: record inspection,
// health, and scratch maintenance.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/media_analyzer/internal/logctx"
	"github.com/italolelis/media_analyzer/internal/scratch"
	"github.com/italolelis/media_analyzer/internal/storage"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// RecordView is a media record without its payload bytes.
type RecordView struct {
	ID         int64     `json:"id"`
	SourceKey  string    `json:"sourceKey"`
	Filename   string    `json:"filename"`
	MIMEType   string    `json:"mimeType"`
	Size       int64     `json:"size"`
	StoredAt   time.Time `json:"storedAt"`
	Prompt     string    `json:"prompt,omitempty"`
	ResultText string    `json:"resultText,omitempty"`
	Model      string    `json:"model,omitempty"`
}

type StatsResponse struct {
	Count      int64 `json:"count"`
	TotalBytes int64 `json:"totalBytes"`
}

// AdminHandler serves the read-only record endpoints plus scratch cleanup.
type AdminHandler struct {
	reads   storage.MediaReadRepository
	scratch *scratch.Manager
}

func NewAdminHandler(reads storage.MediaReadRepository, sm *scratch.Manager) *AdminHandler {
	return &AdminHandler{
		reads:   reads,
		scratch: sm,
	}
}

func (h *AdminHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", h.handleHealth)
	r.Get("/records/recent", h.handleRecent)
	r.Get("/records/stats", h.handleStats)
	r.Get("/records/search", h.handleSearch)
	r.Delete("/scratch", h.handleScratchSweep)

	return r
}

func (h *AdminHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]string{"status": "ok"})
}

func (h *AdminHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	limit := defaultRecentLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)

			return
		}

		limit = min(parsed, maxRecentLimit)
	}

	records, err := h.reads.RecentRecords(r.Context(), limit)
	if err != nil {
		logger.Error("failed to list recent records", "err", err)
		http.Error(w, "failed to list records", http.StatusInternalServerError)

		return
	}

	writeJSON(w, r, toViews(records))
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	stats, err := h.reads.Stats(r.Context())
	if err != nil {
		logger.Error("failed to compute record stats", "err", err)
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)

		return
	}

	writeJSON(w, r, StatsResponse{Count: stats.Count, TotalBytes: stats.TotalBytes})
}

func (h *AdminHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "query parameter q is required", http.StatusBadRequest)

		return
	}

	records, err := h.reads.SearchAnalysis(r.Context(), query, maxRecentLimit)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, r, []RecordView{})

			return
		}

		logger.Error("failed to search records", "q", query, "err", err)
		http.Error(w, "failed to search records", http.StatusInternalServerError)

		return
	}

	writeJSON(w, r, toViews(records))
}

func (h *AdminHandler) handleScratchSweep(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	if err := h.scratch.ReleaseAll(r.Context()); err != nil {
		logger.Error("scratch sweep failed", "err", err)
		http.Error(w, "scratch sweep failed", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toViews(records []storage.MediaRecord) []RecordView {
	views := make([]RecordView, len(records))

	for i, record := range records {
		views[i] = RecordView{
			ID:        record.ID,
			SourceKey: record.SourceKey,
			Filename:  record.Filename,
			MIMEType:  record.MIMEType,
			Size:      record.Size,
			StoredAt:  record.StoredAt,
		}

		if record.Analysis != nil {
			views[i].Prompt = record.Analysis.Prompt
			views[i].ResultText = record.Analysis.ResultText
			views[i].Model = record.Analysis.Model
		}
	}

	return views
}

func writeJSON(w http.ResponseWriter, r *http.Request, payload any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}
