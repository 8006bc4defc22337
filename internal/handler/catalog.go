package handler

import (
	"net/http"

	"github.com/promptlab/promptlab/internal/ctxkeys"
	"github.com/promptlab/promptlab/internal/service"
)

type CatalogHandler struct {
	catalogService *service.CatalogService
}

func NewCatalogHandler(catalogService *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
	}
}

func (h *CatalogHandler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := service.PromptFilter{
		Query:       query.Get("q"),
		Tag:         query.Get("tag"),
		PremiumOnly: query.Get("premium") == "true",
	}

	prompts, err := h.catalogService.Prompts(filter, ctxkeys.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
}

func (h *CatalogHandler) ShowPrompt(w http.ResponseWriter, r *http.Request) {
	prompt, err := h.catalogService.Prompt(r.PathValue("slug"), ctxkeys.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (h *CatalogHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.catalogService.Tags(ctxkeys.Locale(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// Copy returns the prompt text, charging for premium prompts on the first copy.
func (h *CatalogHandler) Copy(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	text, err := h.catalogService.Copy(ctxkeys.UserID(r.Context()), slug)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"slug": slug, "text": text})
}

func (h *CatalogHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	err := h.catalogService.AddFavorite(ctxkeys.UserID(r.Context()), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	err := h.catalogService.RemoveFavorite(ctxkeys.UserID(r.Context()), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.catalogService.Favorites(ctxkeys.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
}
