package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience (Supabase reads)
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration
	RedisURL string // optional: shared cache + scheduler lock

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Evolution API (default gateway, overridable per company / connection)
	EvolutionAPIURL      string
	EvolutionAPIKey      string
	EvolutionIntegration string
	EvolutionMaxRetries  int // 0: create/connect are never replayed

	// Pairing
	PairingPollInterval time.Duration
	PairingSessionTTL   time.Duration

	// Messaging
	SchedulerEnabled  bool // false on replicas that only serve HTTP
	SchedulerInterval time.Duration
	SendRatePerSecond float64
	SendBurst         int
	DispatchWorkers   int
	AMQPURL           string // optional: RabbitMQ instead of the in-process queue
	DispatchQueue     string

	// JWT / Auth
	JWTSecret    string
	JWTAccessTTL time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 15*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 30*time.Second),
		RedisURL: getEnv("REDIS_URL", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		EvolutionAPIURL:      getEnv("EVOLUTION_API_URL", "http://localhost:8081"),
		EvolutionAPIKey:      getEnv("EVOLUTION_API_KEY", ""),
		EvolutionIntegration: getEnv("EVOLUTION_INTEGRATION", "WHATSAPP-BAILEYS"),
		EvolutionMaxRetries:  getEnvInt("EVOLUTION_MAX_RETRIES", 0),

		PairingPollInterval: getEnvDuration("PAIRING_POLL_INTERVAL", 5*time.Second),
		PairingSessionTTL:   getEnvDuration("PAIRING_SESSION_TTL", 10*time.Minute),

		SchedulerEnabled:  getEnvBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: getEnvDuration("SCHEDULER_INTERVAL", 30*time.Second),
		SendRatePerSecond: getEnvFloat("SEND_RATE_PER_SECOND", 1),
		SendBurst:         getEnvInt("SEND_BURST", 3),
		DispatchWorkers:   getEnvInt("DISPATCH_WORKERS", 4),
		AMQPURL:           getEnv("AMQP_URL", ""),
		DispatchQueue:     getEnv("DISPATCH_QUEUE", "messages_dispatch"),

		JWTSecret:    getEnv("JWT_SECRET", "bfa-default-dev-secret-change-me"),
		JWTAccessTTL: getEnvDuration("JWT_ACCESS_TTL", 12*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
