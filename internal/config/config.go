package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port            string
	Environment     string
	SupabaseURL     string
	SupabaseKey     string
	SupabaseDBURL   string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
	CORSOrigins     string
	TablePrefix     string

	// Persistence
	RepositoryBackend string // postgres | memory
	StorageBackend    string // supabase | memory
	StorageBucket     string

	// Analysis
	AnalysisProvider string // anthropic | edge | lorem
	AnthropicAPIKey  string
	AnalysisModel    string
	AnalysisFunction string
	AnalysisTimeout  time.Duration

	// Screenshot capture
	CaptureBackend  string // edge | rod | none
	CaptureFunction string
	CaptureTimeout  time.Duration
	ChromeBin       string

	// Dispatch rate limiting, disabled when RedisURL is empty
	RedisURL           string
	DispatchRateLimit  int
	DispatchRateWindow time.Duration

	// Loaded session states unused for this long are dropped from memory
	SessionIdleTTL time.Duration

	// Owner panel
	OwnerEmails []string

	// Logging
	LogDir      string
	LogMaxFiles int

	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix(env)
	supabaseURL := strings.TrimRight(getEnv("SUPABASE_URL", ""), "/")

	jwksURL := supabaseURL + "/auth/v1/.well-known/jwks.json"

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		SupabaseURL:     supabaseURL,
		SupabaseKey:     getEnv("SUPABASE_KEY", ""),
		SupabaseDBURL:   getEnv("SUPABASE_DB_URL", ""),
		SupabaseJWKSURL: jwksURL,
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:     tablePrefix,

		RepositoryBackend: getEnv("REPOSITORY_BACKEND", "postgres"),
		StorageBackend:    getEnv("STORAGE_BACKEND", "supabase"),
		StorageBucket:     getEnv("STORAGE_BUCKET", "attachments"),

		AnalysisProvider: getEnv("ANALYSIS_PROVIDER", getDefaultProvider(env)),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnalysisModel:    getEnv("ANALYSIS_MODEL", ""),
		AnalysisFunction: getEnv("ANALYSIS_FUNCTION", "analyze-design"),
		AnalysisTimeout:  getDuration("ANALYSIS_TIMEOUT", 0),

		CaptureBackend:  getEnv("CAPTURE_BACKEND", "edge"),
		CaptureFunction: getEnv("CAPTURE_FUNCTION", "screenshot-capture"),
		CaptureTimeout:  getDuration("CAPTURE_TIMEOUT", 45*time.Second),
		ChromeBin:       getEnv("CHROME_BIN", ""),

		RedisURL:           getEnv("REDIS_URL", ""),
		DispatchRateLimit:  getInt("DISPATCH_RATE_LIMIT", 20),
		DispatchRateWindow: getDuration("DISPATCH_RATE_WINDOW", time.Minute),

		SessionIdleTTL: getDuration("SESSION_IDLE_TTL", 30*time.Minute),

		OwnerEmails: splitList(getEnv("OWNER_EMAILS", "")),

		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: getInt("LOG_MAX_FILES", 10),

		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getDefaultProvider uses the mock analyzer outside production so local
// development needs no API key
func getDefaultProvider(env string) string {
	if env == "prod" {
		return "anthropic"
	}
	return "lorem"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

// getDuration accepts Go durations ("90s") or plain seconds ("90")
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
