package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/db"
	"github.com/promptlab/promptlab/internal/imagegen"
	"github.com/promptlab/promptlab/internal/repository"
	"github.com/promptlab/promptlab/internal/service"
	"github.com/promptlab/promptlab/internal/service/payment"
	"github.com/promptlab/promptlab/internal/storage"
)

type App struct {
	Cfg               *config.Config
	DB                *sqlx.DB
	Storage           storage.Storage
	AuthService       *service.AuthService
	UserService       *service.UserService
	EmailService      *service.EmailService
	LedgerService     *service.LedgerService
	BillingService    *service.BillingService
	PaymentService    payment.Provider
	GenerationService *service.GenerationService
	CatalogService    *service.CatalogService
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	// Repositories
	userRepository := repository.NewUserRepository(database)
	ledgerRepository := repository.NewLedgerRepository(database)
	generationRepository := repository.NewGenerationRepository(database)
	errorLogRepository := repository.NewErrorLogRepository(database)
	unlockRepository := repository.NewUnlockRepository(database)
	favoriteRepository := repository.NewFavoriteRepository(database)

	// Storage
	assetStorage, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %v", err)
	}

	// Image providers
	registry, err := NewRegistry(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image providers: %v", err)
	}

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	ledgerService := service.NewLedgerService(ledgerRepository)
	userService := service.NewUserService(userRepository, cfg.Locale)
	authService := service.NewAuthService(cfg.JWTSecret, cfg.BotAPIToken, cfg.JWTExpiry, cfg.IsProduction())
	billingService := service.NewBillingService(ledgerService, userRepository, emailService)

	// Initialize payment provider based on config
	paymentProvider, err := payment.NewProvider(cfg, billingService)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payment provider: %v", err)
	}

	generationService := service.NewGenerationService(
		generationRepository,
		errorLogRepository,
		ledgerService,
		assetStorage,
		registry,
		service.GenerationConfig{
			Cooldown:          cfg.GenerationCooldown,
			StaleAfter:        cfg.GenerationStaleAfter,
			ReferenceMaxWidth: cfg.ReferenceMaxWidth,
			SignedURLs:        cfg.SignedURLs(),
			SignedURLTTL:      cfg.S3PresignExpiryPrivate,
		},
	)
	catalogService := service.NewCatalogService(cfg.ContentPath, ledgerService, unlockRepository, favoriteRepository)

	return &App{
		Cfg:               cfg,
		DB:                database,
		Storage:           assetStorage,
		AuthService:       authService,
		UserService:       userService,
		EmailService:      emailService,
		LedgerService:     ledgerService,
		BillingService:    billingService,
		PaymentService:    paymentProvider,
		GenerationService: generationService,
		CatalogService:    catalogService,
	}, nil
}

// NewRegistry attaches a provider to every model in the pricing table whose
// variant has credentials configured.
func NewRegistry(ctx context.Context, cfg *config.Config) (*imagegen.Registry, error) {
	registry := imagegen.NewRegistry()

	for _, m := range imagegen.DefaultModels {
		var provider imagegen.Provider

		switch m.Variant {
		case imagegen.VariantGemini:
			if cfg.GeminiAPIKey == "" {
				continue
			}
			gemini, err := imagegen.NewGeminiProvider(ctx, imagegen.GeminiConfig{
				APIKey:  cfg.GeminiAPIKey,
				Model:   m.ID,
				Timeout: cfg.ProviderTimeout,
				Retry:   imagegen.DefaultRetryPolicy,
			})
			if err != nil {
				return nil, err
			}
			provider = gemini
		case imagegen.VariantDalle:
			if cfg.OpenAIAPIKey == "" {
				continue
			}
			provider = imagegen.NewDalleProvider(imagegen.DalleConfig{
				APIKey:  cfg.OpenAIAPIKey,
				Model:   m.ID,
				Timeout: cfg.ProviderTimeout,
			})
		case imagegen.VariantImagen:
			if cfg.ImagenAPIKey == "" {
				continue
			}
			provider = imagegen.NewImagenProvider(imagegen.ImagenConfig{
				BaseURL: cfg.ImagenBaseURL,
				APIKey:  cfg.ImagenAPIKey,
				Model:   m.ID,
				Timeout: cfg.ProviderTimeout,
			})
		default:
			continue
		}

		registry.Register(m, provider)
	}

	models := registry.Models()
	if len(models) == 0 {
		slog.Warn("no image provider configured, generation is unavailable")
	}
	for _, m := range models {
		slog.Info("image model registered", "model", m.ID, "variant", m.Variant, "cost", m.Cost)
	}
	return registry, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
