package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/promptlab/promptlab/internal/imagegen"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/repository"
	"github.com/promptlab/promptlab/internal/storage"
	"github.com/promptlab/promptlab/internal/validation"
)

// GenerationConfig holds the pipeline timings and URL policy.
type GenerationConfig struct {
	Cooldown          time.Duration
	StaleAfter        time.Duration
	ReferenceMaxWidth int
	SignedURLs        bool
	SignedURLTTL      time.Duration
}

// ReferenceUpload is a raw reference image as received from a client.
type ReferenceUpload struct {
	Data []byte
	// MimeType is the type detected during request parsing. Empty means the
	// bytes have not been validated yet.
	MimeType string
}

type GenerationRequest struct {
	UserID      string
	Prompt      string
	ModelID     string
	AspectRatio string
	Source      string
	Reference   *ReferenceUpload
}

type GenerationResult struct {
	GenerationID string
	ImageURL     string
	Cost         int64
}

// GenerationService runs the generation pipeline and owns generation records.
type GenerationService struct {
	generations repository.GenerationRepository
	errorLogs   repository.ErrorLogRepository
	ledger      *LedgerService
	storage     storage.Storage
	models      *imagegen.Registry
	cfg         GenerationConfig
	now         func() time.Time
}

func NewGenerationService(
	generations repository.GenerationRepository,
	errorLogs repository.ErrorLogRepository,
	ledger *LedgerService,
	storage storage.Storage,
	models *imagegen.Registry,
	cfg GenerationConfig,
) *GenerationService {
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = time.Hour
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}

	return &GenerationService{
		generations: generations,
		errorLogs:   errorLogs,
		ledger:      ledger,
		storage:     storage,
		models:      models,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Models lists the generation models clients can pick from.
func (s *GenerationService) Models() []imagegen.Model {
	return s.models.Models()
}

// generationRun tracks what a single pipeline run has done so far, which is
// exactly what compensation has to undo.
type generationRun struct {
	gen      *model.Generation
	reserved bool
	uploaded []string
}

// Generate takes a request through validate, cooldown, stale cleanup, record
// creation, reservation, provider call, upload and finalize. Once coins are
// reserved, any failure runs the full compensation before returning.
//
// The caller's cancellation is not propagated: a client that disconnects
// mid-generation still gets either a completed record or a full refund.
func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest) (result *GenerationResult, err error) {
	ctx = context.WithoutCancel(ctx)

	if req.UserID == "" {
		return nil, newError(KindUnauthorized, errors.New("missing user"))
	}

	m, provider, ref, err := s.validate(&req)
	if err != nil {
		return nil, err
	}

	now := s.now()

	err = s.checkCooldown(req.UserID, now)
	if err != nil {
		return nil, err
	}

	s.cleanupStale(req.UserID, now)

	gen := &model.Generation{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Prompt:      strings.TrimSpace(req.Prompt),
		Model:       m.ID,
		AspectRatio: req.AspectRatio,
		Source:      req.Source,
		Status:      model.GenerationStatusPending,
		Cost:        m.Cost,
		CreatedAt:   now,
	}

	err = s.generations.Create(gen)
	if errors.Is(err, repository.ErrDuplicatePending) {
		return nil, newError(KindAlreadyGenerating, err)
	}
	if err != nil {
		return nil, internal("failed to create generation: %w", err)
	}

	err = s.ledger.Reserve(gen.UserID, gen.Cost, model.LedgerKindGeneration, gen.ID)
	if err != nil {
		// Nothing was debited, so only the record needs closing.
		failErr := s.generations.Fail(gen.ID)
		if failErr != nil {
			slog.Error("failed to mark generation failed after reservation error",
				"error", failErr, "generation_id", gen.ID, "user_id", gen.UserID)
		}
		return nil, err
	}

	run := &generationRun{gen: gen, reserved: true}

	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("panic during generation: %v", r)
			s.compensate(run, panicErr, string(debug.Stack()))
			result = nil
			err = newError(KindInternal, panicErr)
		}
	}()

	result, err = s.execute(ctx, run, provider, ref)
	if err != nil {
		s.compensate(run, err, "")
		return nil, err
	}

	return result, nil
}

func (s *GenerationService) validate(req *GenerationRequest) (imagegen.Model, imagegen.Provider, *imagegen.Reference, error) {
	err := validation.ValidatePrompt(req.Prompt)
	if errors.Is(err, validation.ErrPromptTooLong) {
		return imagegen.Model{}, nil, nil, invalid("error.prompt_too_long", err)
	}
	if err != nil {
		return imagegen.Model{}, nil, nil, invalid("error.prompt_required", err)
	}

	m, provider, ok := s.models.Lookup(req.ModelID)
	if !ok {
		return imagegen.Model{}, nil, nil, invalid("error.unknown_model", fmt.Errorf("unknown model %q", req.ModelID))
	}

	if req.AspectRatio == "" {
		req.AspectRatio = imagegen.DefaultAspectRatio
	}
	if !imagegen.IsSupportedAspectRatio(req.AspectRatio) {
		return imagegen.Model{}, nil, nil, invalid("error.invalid_aspect", fmt.Errorf("unsupported aspect ratio %q", req.AspectRatio))
	}

	if req.Source == "" {
		req.Source = model.GenerationSourceWeb
	}

	var ref *imagegen.Reference
	if req.Reference != nil && len(req.Reference.Data) > 0 {
		constraints := validation.WebReferenceConstraints
		if req.Source == model.GenerationSourceBot {
			constraints = validation.BotReferenceConstraints
		}

		_, err := validation.ValidateBytes(req.Reference.Data, constraints)
		if errors.Is(err, validation.ErrFileTooLarge) {
			return imagegen.Model{}, nil, nil, invalid("error.reference_too_large", err, constraints.MaxSizeMB())
		}
		if errors.Is(err, validation.ErrInvalidImage) || errors.Is(err, validation.ErrImageTooLarge) {
			return imagegen.Model{}, nil, nil, invalid("error.reference_invalid", err)
		}
		if err != nil {
			return imagegen.Model{}, nil, nil, invalid("error.reference_type", err)
		}

		ref, err = imagegen.NormalizeReference(req.Reference.Data, s.cfg.ReferenceMaxWidth)
		if err != nil {
			return imagegen.Model{}, nil, nil, invalid("error.reference_invalid", err)
		}
	}

	return m, provider, ref, nil
}

// checkCooldown rejects a request that arrives less than Cooldown after the
// user's previous one. Exactly Cooldown is allowed.
func (s *GenerationService) checkCooldown(userID string, now time.Time) error {
	if s.cfg.Cooldown <= 0 {
		return nil
	}

	last, err := s.generations.LastCreatedAt(userID)
	if err != nil {
		return internal("failed to check cooldown: %w", err)
	}
	if last == nil {
		return nil
	}

	if now.Sub(*last) < s.cfg.Cooldown {
		return newError(KindTooFrequent, fmt.Errorf("last generation %s ago", now.Sub(*last)))
	}
	return nil
}

// cleanupStale fails pending records left behind by crashed runs so they no
// longer block the user. Coins for those runs are not refunded here.
func (s *GenerationService) cleanupStale(userID string, now time.Time) {
	n, err := s.generations.FailStale(userID, now.Add(-s.cfg.StaleAfter))
	if err != nil {
		slog.Warn("failed to clean up stale generations", "error", err, "user_id", userID)
		return
	}
	if n > 0 {
		slog.Info("stale generations marked failed", "user_id", userID, "count", n)
	}
}

func (s *GenerationService) execute(ctx context.Context, run *generationRun, provider imagegen.Provider, ref *imagegen.Reference) (*GenerationResult, error) {
	gen := run.gen
	start := time.Now()

	out, err := provider.Generate(ctx, imagegen.Request{
		Prompt:      gen.Prompt,
		AspectRatio: gen.AspectRatio,
		Reference:   ref,
	})
	if err != nil {
		return nil, providerError(err)
	}
	if out == nil || len(out.Data) == 0 {
		return nil, &Error{Kind: KindProviderError, Err: errors.New("provider returned no image")}
	}

	mimeType := out.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(out.Data)
	}

	imagePath, err := objectPath("generations", gen.UserID, mimeType, s.now())
	if err != nil {
		return nil, internal("failed to build object path: %w", err)
	}

	err = s.storage.Save(imagePath, bytes.NewReader(out.Data), mimeType)
	if err != nil {
		return nil, newError(KindStorageError, err)
	}
	run.uploaded = append(run.uploaded, imagePath)
	gen.StoragePath = imagePath
	gen.ImageURL = s.storage.URL(imagePath)

	if ref != nil {
		s.saveReference(run, ref)
	}

	completedAt := s.now()
	gen.CompletedAt = &completedAt
	gen.GenerationTimeMs = time.Since(start).Milliseconds()

	err = s.generations.Complete(gen)
	if err != nil {
		return nil, internal("failed to complete generation: %w", err)
	}
	gen.Status = model.GenerationStatusCompleted

	slog.Info("generation completed",
		"generation_id", gen.ID,
		"user_id", gen.UserID,
		"model", gen.Model,
		"provider", provider.Name(),
		"cost", gen.Cost,
		"generation_time_ms", gen.GenerationTimeMs,
	)

	return &GenerationResult{
		GenerationID: gen.ID,
		ImageURL:     s.ResolveURL(gen),
		Cost:         gen.Cost,
	}, nil
}

// saveReference keeps the normalized reference next to the result. Failure
// only costs the history thumbnail, so the run continues.
func (s *GenerationService) saveReference(run *generationRun, ref *imagegen.Reference) {
	gen := run.gen

	refPath, err := objectPath("references", gen.UserID, ref.MimeType, s.now())
	if err == nil {
		err = s.storage.Save(refPath, bytes.NewReader(ref.Data), ref.MimeType)
	}
	if err != nil {
		slog.Warn("failed to store reference image", "error", err, "generation_id", gen.ID, "user_id", gen.UserID)
		return
	}

	run.uploaded = append(run.uploaded, refPath)
	gen.ReferencePath = refPath
	gen.ReferenceURL = s.storage.URL(refPath)
}

type compensation struct {
	name string
	run  func() error
}

// compensate undoes a failed run in a fixed order: remove uploads, fail the
// record, refund the exact cost, persist an error record. Every step runs even
// if an earlier one fails or panics.
func (s *GenerationService) compensate(run *generationRun, cause error, stack string) {
	gen := run.gen

	steps := []compensation{
		{"remove_uploads", func() error {
			if len(run.uploaded) == 0 {
				return nil
			}
			return s.storage.Delete(run.uploaded...)
		}},
		{"mark_failed", func() error {
			err := s.generations.Fail(gen.ID)
			if errors.Is(err, repository.ErrNotPending) {
				return nil
			}
			return err
		}},
		{"refund", func() error {
			if !run.reserved {
				return nil
			}
			return s.ledger.Refund(gen.UserID, gen.Cost, gen.ID)
		}},
		{"log_error", func() error {
			return s.errorLogs.Create(&model.ErrorLog{
				ID:           uuid.New().String(),
				UserID:       gen.UserID,
				GenerationID: gen.ID,
				Message:      cause.Error(),
				Stack:        stack,
				CreatedAt:    s.now(),
			})
		}},
	}

	for _, step := range steps {
		s.runCompensation(gen, step)
	}

	slog.Error("generation failed",
		"error", cause,
		"generation_id", gen.ID,
		"user_id", gen.UserID,
		"model", gen.Model,
		"refunded", gen.Cost,
	)
}

func (s *GenerationService) runCompensation(gen *model.Generation, step compensation) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("compensation step panicked",
				"step", step.name, "panic", r, "generation_id", gen.ID, "user_id", gen.UserID)
		}
	}()

	err := step.run()
	if err != nil {
		slog.Error("compensation step failed",
			"step", step.name, "error", err, "generation_id", gen.ID, "user_id", gen.UserID)
	}
}

func providerError(err error) *Error {
	var pe *imagegen.Error
	if errors.As(err, &pe) {
		if pe.Kind == imagegen.KindTimeout {
			return newError(KindProviderTimeout, err)
		}
		return &Error{Kind: KindProviderError, Detail: pe.Message, Err: err}
	}
	return newError(KindProviderError, err)
}

// objectPath builds {prefix}/{user}/{unix millis}-{random}{ext}.
func objectPath(prefix, userID, mimeType string, now time.Time) (string, error) {
	suffix := make([]byte, 6)
	_, err := rand.Read(suffix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%d-%s%s", prefix, userID, now.UnixMilli(), hex.EncodeToString(suffix), extension(mimeType)), nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

// ResolveURL returns a viewable URL for a completed record, signed when the
// bucket is private.
func (s *GenerationService) ResolveURL(gen *model.Generation) string {
	if gen.StoragePath == "" {
		return gen.ImageURL
	}
	if !s.cfg.SignedURLs {
		return s.storage.URL(gen.StoragePath)
	}

	url, err := s.storage.SignedURL(gen.StoragePath, s.cfg.SignedURLTTL)
	if err != nil {
		slog.Warn("failed to sign generation URL", "error", err, "generation_id", gen.ID)
		return gen.ImageURL
	}
	return url
}

func (s *GenerationService) resolveReferenceURL(gen *model.Generation) string {
	if gen.ReferencePath == "" || !s.cfg.SignedURLs {
		return gen.ReferenceURL
	}
	url, err := s.storage.SignedURL(gen.ReferencePath, s.cfg.SignedURLTTL)
	if err != nil {
		return gen.ReferenceURL
	}
	return url
}

// Get returns one of the user's generations with viewable URLs.
func (s *GenerationService) Get(id, userID string) (*model.Generation, error) {
	gen, err := s.owned(id, userID)
	if err != nil {
		return nil, err
	}

	gen.ImageURL = s.ResolveURL(gen)
	gen.ReferenceURL = s.resolveReferenceURL(gen)
	return gen, nil
}

// History lists the user's generations newest first.
func (s *GenerationService) History(userID string, filter repository.GenerationFilter) ([]*model.Generation, error) {
	gens, err := s.generations.ByUserID(userID, filter)
	if err != nil {
		return nil, internal("failed to list generations: %w", err)
	}

	for _, gen := range gens {
		gen.ImageURL = s.ResolveURL(gen)
		gen.ReferenceURL = s.resolveReferenceURL(gen)
	}
	return gens, nil
}

func (s *GenerationService) SetFavorite(id, userID string, favorite bool) error {
	_, err := s.owned(id, userID)
	if err != nil {
		return err
	}

	err = s.generations.SetFavorite(id, favorite)
	if err != nil {
		return internal("failed to update favorite: %w", err)
	}
	return nil
}

// Delete removes the stored objects first and the record second, so a storage
// outage never leaves orphaned objects behind a deleted record.
func (s *GenerationService) Delete(id, userID string) error {
	gen, err := s.owned(id, userID)
	if err != nil {
		return err
	}

	if gen.IsPending() {
		return &Error{Kind: KindInvalidRequest, MessageKey: "error.generation_pending", Err: repository.ErrNotPending}
	}

	paths := gen.StoragePaths()
	if len(paths) > 0 {
		err = s.storage.Delete(paths...)
		if err != nil {
			return newError(KindStorageError, err)
		}
	}

	err = s.generations.Delete(id)
	if errors.Is(err, repository.ErrGenerationNotFound) {
		return nil
	}
	if err != nil {
		return internal("failed to delete generation: %w", err)
	}

	slog.Info("generation deleted", "generation_id", id, "user_id", userID, "objects", len(paths))
	return nil
}

// CleanupStale fails stale pending records across all users.
func (s *GenerationService) CleanupStale() (int64, error) {
	n, err := s.generations.FailAllStale(s.now().Add(-s.cfg.StaleAfter))
	if err != nil {
		return 0, internal("failed to clean up stale generations: %w", err)
	}
	return n, nil
}

func (s *GenerationService) owned(id, userID string) (*model.Generation, error) {
	gen, err := s.generations.ByID(id)
	if errors.Is(err, repository.ErrGenerationNotFound) {
		return nil, newError(KindNotFound, err)
	}
	if err != nil {
		return nil, internal("failed to load generation: %w", err)
	}
	if gen.UserID != userID {
		return nil, newError(KindForbidden, fmt.Errorf("generation %s not owned by %s", id, userID))
	}
	return gen, nil
}
