package handler

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/promptlab/promptlab/internal/ctxkeys"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/repository"
	"github.com/promptlab/promptlab/internal/service"
	"github.com/promptlab/promptlab/internal/validation"
)

// multipart and base64 overhead on top of the reference size limits
const (
	formOverhead int64 = 1 << 20
	maxBotBody         = (validation.BotReferenceMaxSize/3+1)*4 + formOverhead
	maxWebBody         = validation.WebReferenceMaxSize + formOverhead
)

type GenerationHandler struct {
	generationService *service.GenerationService
	userService       *service.UserService
}

func NewGenerationHandler(generationService *service.GenerationService, userService *service.UserService) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		userService:       userService,
	}
}

type generationResponse struct {
	ID               string     `json:"id"`
	Prompt           string     `json:"prompt"`
	Model            string     `json:"model"`
	AspectRatio      string     `json:"aspect_ratio"`
	Source           string     `json:"source"`
	Status           string     `json:"status"`
	Cost             int64      `json:"cost"`
	ImageURL         string     `json:"image_url,omitempty"`
	ReferenceURL     string     `json:"reference_url,omitempty"`
	GenerationTimeMs int64      `json:"generation_time_ms,omitempty"`
	IsFavorite       bool       `json:"is_favorite"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func newGenerationResponse(gen *model.Generation) generationResponse {
	return generationResponse{
		ID:               gen.ID,
		Prompt:           gen.Prompt,
		Model:            gen.Model,
		AspectRatio:      gen.AspectRatio,
		Source:           gen.Source,
		Status:           gen.Status,
		Cost:             gen.Cost,
		ImageURL:         gen.ImageURL,
		ReferenceURL:     gen.ReferenceURL,
		GenerationTimeMs: gen.GenerationTimeMs,
		IsFavorite:       gen.IsFavorite,
		CreatedAt:        gen.CreatedAt,
		CompletedAt:      gen.CompletedAt,
	}
}

type generateResponse struct {
	GenerationID string `json:"generation_id"`
	ImageURL     string `json:"image_url"`
	Cost         int64  `json:"cost"`
}

// Create is the web entry point. It takes a multipart form with prompt,
// model, aspect_ratio and an optional reference_image file.
func (h *GenerationHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxWebBody)
	err := r.ParseMultipartForm(formOverhead)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, invalidRequest("error.reference_too_large", err, validation.WebReferenceConstraints.MaxSizeMB()))
			return
		}
		writeError(w, r, invalidRequest("error.invalid_request", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	req := service.GenerationRequest{
		UserID:      user.ID,
		Prompt:      r.FormValue("prompt"),
		ModelID:     r.FormValue("model"),
		AspectRatio: r.FormValue("aspect_ratio"),
		Source:      model.GenerationSourceWeb,
	}

	file, header, err := r.FormFile("reference_image")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		writeError(w, r, invalidRequest("error.reference_invalid", err))
		return
	}
	if err == nil {
		defer func() { _ = file.Close() }()

		ref, err := readReference(file, header)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.Reference = ref
	}

	result, err := h.generationService.Generate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, generateResponse{
		GenerationID: result.GenerationID,
		ImageURL:     result.ImageURL,
		Cost:         result.Cost,
	})
}

func readReference(file multipart.File, header *multipart.FileHeader) (*service.ReferenceUpload, error) {
	constraints := validation.WebReferenceConstraints

	mimeType, err := validation.ValidateFile(header, constraints)
	if errors.Is(err, validation.ErrFileTooLarge) {
		return nil, invalidRequest("error.reference_too_large", err, constraints.MaxSizeMB())
	}
	if errors.Is(err, validation.ErrUnreadableUpload) || errors.Is(err, validation.ErrInvalidImage) || errors.Is(err, validation.ErrImageTooLarge) {
		return nil, invalidRequest("error.reference_invalid", err)
	}
	if err != nil {
		return nil, invalidRequest("error.reference_type", err)
	}

	data, err := io.ReadAll(io.LimitReader(file, constraints.MaxSize+1))
	if err != nil {
		return nil, invalidRequest("error.reference_invalid", err)
	}

	return &service.ReferenceUpload{Data: data, MimeType: mimeType}, nil
}

type botGenerateRequest struct {
	UserID               string `json:"user_id"`
	Prompt               string `json:"prompt"`
	Model                string `json:"model"`
	AspectRatio          string `json:"aspect_ratio,omitempty"`
	ReferenceImageBase64 string `json:"reference_image_base64,omitempty"`
}

// CreateBot is the chat bot entry point. The bot speaks for its users, so the
// user id comes from the body and is mapped to an account on first sight.
func (h *GenerationHandler) CreateBot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBotBody)

	var body botGenerateRequest
	err := decodeJSON(r, &body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = invalidRequest("error.reference_too_large", err, validation.BotReferenceConstraints.MaxSizeMB())
		}
		writeError(w, r, err)
		return
	}

	user, err := h.userService.EnsureExternal(body.UserID, "")
	if err != nil {
		writeError(w, r, err)
		return
	}

	req := service.GenerationRequest{
		UserID:      user.ID,
		Prompt:      body.Prompt,
		ModelID:     body.Model,
		AspectRatio: body.AspectRatio,
		Source:      model.GenerationSourceBot,
	}

	if body.ReferenceImageBase64 != "" {
		data, err := decodeBase64Image(body.ReferenceImageBase64)
		if err != nil {
			writeError(w, r, invalidRequest("error.reference_invalid", err))
			return
		}
		req.Reference = &service.ReferenceUpload{Data: data}
	}

	result, err := h.generationService.Generate(r.Context(), req)
	if err != nil {
		slog.Info("bot generation rejected", "error", err, "external_id", body.UserID)
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, generateResponse{
		GenerationID: result.GenerationID,
		ImageURL:     result.ImageURL,
		Cost:         result.Cost,
	})
}

// decodeBase64Image accepts raw base64 or a data URL.
func decodeBase64Image(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errors.New("malformed data URL")
		}
		s = payload
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func (h *GenerationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())
	query := r.URL.Query()

	filter := repository.GenerationFilter{
		Status:        query.Get("status"),
		FavoritesOnly: query.Get("favorites") == "true",
		Limit:         queryInt(query.Get("limit"), 50),
		Offset:        queryInt(query.Get("offset"), 0),
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	gens, err := h.generationService.History(userID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]generationResponse, 0, len(gens))
	for _, gen := range gens {
		items = append(items, newGenerationResponse(gen))
	}
	writeJSON(w, http.StatusOK, map[string]any{"generations": items})
}

func (h *GenerationHandler) Get(w http.ResponseWriter, r *http.Request) {
	gen, err := h.generationService.Get(r.PathValue("id"), ctxkeys.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGenerationResponse(gen))
}

func (h *GenerationHandler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Favorite bool `json:"favorite"`
	}
	err := decodeJSON(r, &body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	err = h.generationService.SetFavorite(id, ctxkeys.UserID(r.Context()), body.Favorite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_favorite": body.Favorite})
}

func (h *GenerationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.generationService.Delete(r.PathValue("id"), ctxkeys.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
