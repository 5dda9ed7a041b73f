package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	JWTSecret      string
	JWTTTL         time.Duration
	AllowedOrigins []string
	GeoIPDBPath    string

	// Telegram mini-app and bot.
	TelegramBotToken   string
	TelegramBotID      int64
	TelegramTestEnv    bool
	TelegramInitMaxAge time.Duration
	TelegramChannelID  int64
	WebAppURL          string

	// Wallet providers.
	WalletAppIdentifier string
	WalletChallengeTTL  time.Duration
	FlowAccessNode      string
	FlowNetwork         string
	EVMRPCURL           string
	EVMChainID          string
	EVMConfirmations    uint64
	PrivyAppID          string
	PrivyJWKSURL        string

	// Donation verification.
	DonationVerify   bool
	SealPollInterval time.Duration
	SealTimeout      time.Duration
	ReconcileEvery   time.Duration
	// Accounts donations must pay; empty means the project creator.
	RecipientFlow    string
	RecipientEVM     string

	// Supporting infrastructure; empty values disable the component.
	RedisAddr      string
	AMQPURL        string
	StoragePath    string
	StorageBaseURL string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioSSL       bool
	MaxUploadBytes int64

	// AI text completion.
	AIProvider    string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	// WorkerMetricsPort serves the worker's /metrics.
	WorkerMetricsPort string
	WorkerConcurrency int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           port,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTTTL:         time.Hour * time.Duration(getEnvInt("JWT_TTL_HOURS", 24)),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramBotID:      getEnvInt64("TELEGRAM_BOT_ID", 0),
		TelegramTestEnv:    getEnvBool("TELEGRAM_TEST_ENV", false),
		TelegramInitMaxAge: time.Second * time.Duration(getEnvInt("TELEGRAM_INIT_MAX_AGE_SECONDS", 86400)),
		TelegramChannelID:  getEnvInt64("TELEGRAM_CHANNEL_ID", 0),
		WebAppURL:          getEnv("WEB_APP_URL", "http://localhost:5173"),

		WalletAppIdentifier: getEnv("WALLET_APP_IDENTIFIER", "Donate On Flow"),
		WalletChallengeTTL:  time.Second * time.Duration(getEnvInt("WALLET_CHALLENGE_TTL_SECONDS", 300)),
		FlowAccessNode:      getEnv("FLOW_ACCESS_NODE", "https://rest-testnet.onflow.org"),
		FlowNetwork:         getEnv("FLOW_NETWORK", "testnet"),
		EVMRPCURL:           getEnv("EVM_RPC_URL", "https://testnet.evm.nodes.onflow.org"),
		EVMChainID:          getEnv("EVM_CHAIN_ID", "545"),
		EVMConfirmations:    uint64(getEnvInt("EVM_CONFIRMATIONS", 1)),
		PrivyAppID:          os.Getenv("PRIVY_APP_ID"),
		PrivyJWKSURL:        os.Getenv("PRIVY_JWKS_URL"),

		DonationVerify:   getEnvBool("DONATION_VERIFY", true),
		SealPollInterval: time.Second * time.Duration(getEnvInt("SEAL_POLL_INTERVAL_SECONDS", 2)),
		SealTimeout:      time.Second * time.Duration(getEnvInt("SEAL_TIMEOUT_SECONDS", 120)),
		ReconcileEvery:   time.Minute * time.Duration(getEnvInt("RECONCILE_EVERY_MINUTES", 15)),
		RecipientFlow:    os.Getenv("DONATION_RECIPIENT_FLOW"),
		RecipientEVM:     os.Getenv("DONATION_RECIPIENT_EVM"),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		AMQPURL:        os.Getenv("AMQP_URL"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "project-images"),
		MinioSSL:       getEnvBool("MINIO_SSL", false),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 5<<20),

		AIProvider:    getEnv("AI_PROVIDER", "openai"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "deepseek-chat"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.deepseek.com"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		WorkerMetricsPort: getEnv("WORKER_METRICS_PORT", "9091"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.TelegramBotToken == "" && cfg.TelegramBotID == 0 {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN or TELEGRAM_BOT_ID is required")
	}

	return cfg, nil
}

// MinioEnabled reports whether object storage credentials are configured.
func (c *Config) MinioEnabled() bool {
	return c.MinioEndpoint != "" && c.MinioAccessKey != "" && c.MinioSecretKey != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
