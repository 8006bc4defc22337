package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName      string
	AppEnv       string
	AppURL       string
	Port         string
	SupportEmail string
	ContentPath  string
	Locale       string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret   string
	JWTExpiry   time.Duration
	BotAPIToken string

	// Rate limiting (generation endpoint, per IP)
	GenerationRateLimit  int
	GenerationRateWindow time.Duration

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Payment
	PaymentProvider string // "polar" or "stripe"
	CoinPriceCents  int64
	CoinCurrency    string
	// Payment - Polar
	PolarAPIKey        string
	PolarWebhookSecret string
	PolarSandboxMode   bool
	PolarCoinPacks     map[int64]string // coins -> product id
	// Payment - Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// Observability (optional)
	SentryDSN string

	// Image providers (each optional, models of an unconfigured provider are not registered)
	GeminiAPIKey    string
	OpenAIAPIKey    string
	ImagenAPIKey    string
	ImagenBaseURL   string
	ProviderTimeout time.Duration

	// Generation pipeline
	GenerationCooldown   time.Duration
	GenerationStaleAfter time.Duration
	ReferenceMaxWidth    int

	// Storage
	StorageDriver     string // "s3", "supabase" or "memory"
	StorageVisibility string // "public" or "signed"
	// Storage - S3-compatible (MinIO, AWS S3, Cloudflare R2, DigitalOcean Spaces, etc.)
	S3Region               string
	S3Bucket               string
	S3AccessKey            string
	S3SecretKey            string
	S3Endpoint             string        // Optional: for S3-compatible services (MinIO, DO Spaces, R2, etc.)
	S3PresignExpiryPublic  time.Duration // Expiry for public links - default: 7 days
	S3PresignExpiryPrivate time.Duration // Expiry for signed links - default: 1 hour
	// Storage - Supabase
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName:      envString("APP_NAME", "Promptlab"),
		AppEnv:       envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:       envRequired("APP_URL"), // Required: base URL for checkout redirects
		Port:         envString("PORT", "8090"),
		SupportEmail: envString("SUPPORT_EMAIL", "hello@example.com"),
		ContentPath:  envString("CONTENT_PATH", "content"),
		Locale:       envString("DEFAULT_LOCALE", "en"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/promptlab.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		// Security
		JWTSecret:   envRequired("JWT_SECRET"),
		JWTExpiry:   envDuration("JWT_EXPIRY", 168*time.Hour), // Default: 7 days
		BotAPIToken: envString("BOT_API_TOKEN", ""),

		// Rate limiting
		GenerationRateLimit:  int(envInt("GENERATION_RATE_LIMIT", 20)),
		GenerationRateWindow: envDuration("GENERATION_RATE_WINDOW", time.Minute),

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:    envString("EMAIL_FROM", "noreply@example.com"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		// Payment (provider selection and configuration)
		PaymentProvider:     envString("PAYMENT_PROVIDER", "stripe"),
		CoinPriceCents:      envInt("COIN_PRICE_CENTS", 10),
		CoinCurrency:        envString("COIN_CURRENCY", "usd"),
		PolarAPIKey:         envString("POLAR_API_KEY", ""),
		PolarWebhookSecret:  envString("POLAR_WEBHOOK_SECRET", ""),
		PolarSandboxMode:    envBool("POLAR_SANDBOX_MODE", envString("APP_ENV", "development") == "development"),
		PolarCoinPacks:      envCoinPacks("POLAR_COIN_PACKS"),
		StripeSecretKey:     envString("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: envString("STRIPE_WEBHOOK_SECRET", ""),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Image providers
		GeminiAPIKey:    envString("GEMINI_API_KEY", ""),
		OpenAIAPIKey:    envString("OPENAI_API_KEY", ""),
		ImagenAPIKey:    envString("IMAGEN_API_KEY", envString("GEMINI_API_KEY", "")),
		ImagenBaseURL:   envString("IMAGEN_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ProviderTimeout: envDuration("PROVIDER_TIMEOUT", 60*time.Second),

		// Generation pipeline
		GenerationCooldown:   envDuration("GENERATION_COOLDOWN", 3*time.Second),
		GenerationStaleAfter: envDuration("GENERATION_STALE_AFTER", 5*time.Minute),
		ReferenceMaxWidth:    int(envInt("REFERENCE_MAX_WIDTH", 1024)),

		// Storage
		StorageDriver:          envString("STORAGE_DRIVER", "s3"),
		StorageVisibility:      envString("STORAGE_VISIBILITY", "signed"),
		S3Region:               envString("S3_REGION", ""),
		S3Bucket:               envString("S3_BUCKET", ""),
		S3AccessKey:            envString("S3_ACCESS_KEY", ""),
		S3SecretKey:            envString("S3_SECRET_KEY", ""),
		S3Endpoint:             envString("S3_ENDPOINT", ""),                           // Optional: for non-AWS providers
		S3PresignExpiryPublic:  envDuration("S3_PRESIGN_EXPIRY_PUBLIC", 168*time.Hour), // Default: 7 days
		S3PresignExpiryPrivate: envDuration("S3_PRESIGN_EXPIRY_PRIVATE", 1*time.Hour),  // Default: 1 hour
		SupabaseURL:            envString("SUPABASE_URL", ""),
		SupabaseServiceKey:     envString("SUPABASE_SERVICE_KEY", ""),
		SupabaseBucket:         envString("SUPABASE_BUCKET", "generations"),
	}

	validateStorage(cfg)

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

func validateStorage(cfg *Config) {
	switch cfg.StorageDriver {
	case "s3":
		for key, v := range map[string]string{
			"S3_REGION":     cfg.S3Region,
			"S3_BUCKET":     cfg.S3Bucket,
			"S3_ACCESS_KEY": cfg.S3AccessKey,
			"S3_SECRET_KEY": cfg.S3SecretKey,
		} {
			if v == "" {
				slog.Error("config required env var missing", "key", key, "storage_driver", cfg.StorageDriver)
				os.Exit(1)
			}
		}
	case "supabase":
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
			slog.Error("supabase storage requires SUPABASE_URL and SUPABASE_SERVICE_KEY")
			os.Exit(1)
		}
	case "memory":
	default:
		slog.Error("config unknown storage driver", "storage_driver", cfg.StorageDriver)
		os.Exit(1)
	}
}

// validateProduction ensures all required services are configured for production deployments.
// Development allows some services (like email and in-memory storage) to use fallback modes.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
	if cfg.StorageDriver == "memory" {
		slog.Error("production deployment requires persistent storage", "storage_driver", cfg.StorageDriver)
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

// envCoinPacks parses "10:prod_a,50:prod_b" into a coins -> product map.
func envCoinPacks(key string) map[int64]string {
	packs := make(map[int64]string)
	for _, entry := range strings.Split(os.Getenv(key), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		coins, product, ok := strings.Cut(entry, ":")
		n, err := strconv.ParseInt(strings.TrimSpace(coins), 10, 64)
		if !ok || err != nil || n <= 0 || strings.TrimSpace(product) == "" {
			slog.Warn("config invalid coin pack, skipping", "key", key, "entry", entry)
			continue
		}
		packs[n] = strings.TrimSpace(product)
	}
	return packs
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) SignedURLs() bool {
	return c.StorageVisibility != "public"
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets, credentials, and sensitive data are excluded.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:      c.AppName,
		AppEnv:       c.AppEnv,
		AppURL:       c.AppURL,
		Port:         c.Port,
		SupportEmail: c.SupportEmail,
		Locale:       c.Locale,

		EmailFrom: c.EmailFrom,

		PaymentProvider: c.PaymentProvider,
		CoinPriceCents:  c.CoinPriceCents,
		CoinCurrency:    c.CoinCurrency,

		StorageDriver:     c.StorageDriver,
		StorageVisibility: c.StorageVisibility,
		S3Endpoint:        c.S3Endpoint,
	}
}
