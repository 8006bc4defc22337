package routes

import (
	"net/http"
	"time"

	"github.com/promptlab/promptlab/internal/app"
	"github.com/promptlab/promptlab/internal/handler"
	"github.com/promptlab/promptlab/internal/middleware"
	"github.com/promptlab/promptlab/internal/storage"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	system := handler.NewSystemHandler(app.DB, app.GenerationService)
	catalog := handler.NewCatalogHandler(app.CatalogService)
	generation := handler.NewGenerationHandler(app.GenerationService, app.UserService)
	account := handler.NewAccountHandler(app.LedgerService)
	billing := handler.NewBillingHandler(app.PaymentService)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /healthz", system.Health)
	mux.HandleFunc("GET /api/models", system.Models)

	// Objects held in memory are served by the app itself (development only)
	if memory, ok := app.Storage.(*storage.MemoryStorage); ok {
		mux.HandleFunc("GET /files/{path...}", handler.MemoryFiles(memory))
	}

	// Catalog (signed-in users see their unlocks)
	mux.HandleFunc("GET /api/prompts", catalog.ListPrompts)
	mux.HandleFunc("GET /api/prompts/tags", catalog.ListTags)
	mux.HandleFunc("GET /api/prompts/{slug}", catalog.ShowPrompt)

	// ============================================================================
	// PROTECTED ROUTES (/api/*)
	// ============================================================================

	rateLimiter := middleware.RateLimit(app.Cfg.GenerationRateLimit, app.Cfg.GenerationRateWindow)
	checkoutLimiter := middleware.RateLimit(10, 15*time.Minute)

	// Catalog
	mux.HandleFunc("POST /api/prompts/{slug}/copy", middleware.RequireAuth(catalog.Copy))
	mux.HandleFunc("POST /api/prompts/{slug}/favorite", middleware.RequireAuth(catalog.AddFavorite))
	mux.HandleFunc("DELETE /api/prompts/{slug}/favorite", middleware.RequireAuth(catalog.RemoveFavorite))
	mux.HandleFunc("GET /api/favorites", middleware.RequireAuth(catalog.ListFavorites))

	// Generations
	mux.HandleFunc("POST /api/generations", rateLimiter(middleware.RequireAuth(generation.Create)))
	mux.HandleFunc("GET /api/generations", middleware.RequireAuth(generation.List))
	mux.HandleFunc("GET /api/generations/{id}", middleware.RequireAuth(generation.Get))
	mux.HandleFunc("PATCH /api/generations/{id}/favorite", middleware.RequireAuth(generation.SetFavorite))
	mux.HandleFunc("DELETE /api/generations/{id}", middleware.RequireAuth(generation.Delete))

	// Balance & billing
	mux.HandleFunc("GET /api/balance", middleware.RequireAuth(account.Balance))
	mux.HandleFunc("POST /api/billing/topup", checkoutLimiter(middleware.RequireAuth(billing.TopUp)))

	// ============================================================================
	// BOT ROUTES
	// ============================================================================

	mux.HandleFunc("POST /api/bot/generations", middleware.RequireBot(app.AuthService)(generation.CreateBot))

	// ============================================================================
	// WEBHOOKS
	// ============================================================================

	// Payment provider webhook (works with both Polar and Stripe)
	mux.HandleFunc("POST /webhooks/payment", billing.Webhook)

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.Config(app.Cfg),
		middleware.RequestLogging,
		middleware.Recover,
		middleware.AuthMiddleware(app.AuthService, app.UserService),
		middleware.Locale,         // Needs the user for the stored locale
		middleware.CSRFProtection, // Needs the locale for its error body
	)

	return handler
}
