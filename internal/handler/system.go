package handler

import (
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/promptlab/promptlab/internal/service"
	"github.com/promptlab/promptlab/internal/storage"
)

type SystemHandler struct {
	db                *sqlx.DB
	generationService *service.GenerationService
}

func NewSystemHandler(db *sqlx.DB, generationService *service.GenerationService) *SystemHandler {
	return &SystemHandler{
		db:                db,
		generationService: generationService,
	}
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	err := h.db.PingContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SystemHandler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": h.generationService.Models()})
}

// MemoryFiles serves objects held by in-memory storage in development.
func MemoryFiles(store *storage.MemoryStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, contentType, ok := store.Object(r.PathValue("path"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "private, max-age=3600")
		_, _ = w.Write(data)
	}
}
