package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"jobfit-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port               string
	Env                string
	CORSAllowOrigin    []string
	TrustedProxies     []string
	DatabaseURL        string
	RedisURL           string
	ObjectStoreType    string
	LocalStoreDir      string
	AWSRegion          string
	S3Bucket           string
	S3Prefix           string
	S3Endpoint         string
	SSEKMSKeyID        string
	SQSQueueURL        string
	JWTSecret          string
	SessionCookieName  string
	SessionTTL         time.Duration
	AnalysisServiceURL string
	AllowAnonymous     bool
	JobTimeout         time.Duration
	JobMaxConcurrency  int
	RateLimitMax       int
	RateLimitWindow    time.Duration
	RateLimitReapEvery time.Duration
	PollRate           float64
	PollBurst          int
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	UIRedirectURL      string
}

var defaults = map[string]any{
	"PORT":                     "8080",
	"ENV":                      "dev",
	"CORS_ALLOW_ORIGINS":       "http://localhost:3000",
	"OBJECT_STORE":             "local",
	"LOCAL_STORE_DIR":          "./data",
	"SESSION_COOKIE_NAME":      "session_id",
	"SESSION_TTL":              "24h",
	"ANALYSIS_SERVICE_URL":     "http://localhost:8000",
	"ANALYSIS_ALLOW_ANONYMOUS": false,
	"JOB_TIMEOUT":              "5m",
	"JOB_MAX_CONCURRENCY":      8,
	"RATE_LIMIT_MAX_REQUESTS":  4,
	"RATE_LIMIT_WINDOW":        "24h",
	"RATE_LIMIT_REAP_INTERVAL": "1h",
	"POLL_RATE":                5.0,
	"POLL_BURST":               10,
}

// Load reads configuration from environment variables with sensible defaults.
// Existing env files are merged first; real environment variables win.
func Load(envFiles ...string) Config {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env", "cmd/.env"}
	}
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.MergeInConfig(); err != nil {
			telemetry.Warn("config.env_file_skipped", map[string]any{"path": path, "error": err.Error()})
		}
	}
	v.AutomaticEnv()

	env := normalizeEnv(v.GetString("ENV"))
	dbURL := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if env == "production" && dbURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"env": env})
	}

	return Config{
		Port:               v.GetString("PORT"),
		Env:                env,
		CORSAllowOrigin:    splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),
		TrustedProxies:     splitAndTrim(v.GetString("TRUSTED_PROXIES")),
		DatabaseURL:        dbURL,
		RedisURL:           strings.TrimSpace(v.GetString("REDIS_URL")),
		ObjectStoreType:    normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:      v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:          v.GetString("AWS_REGION"),
		S3Bucket:           v.GetString("S3_BUCKET"),
		S3Prefix:           v.GetString("S3_PREFIX"),
		S3Endpoint:         strings.TrimSpace(v.GetString("S3_ENDPOINT")),
		SSEKMSKeyID:        v.GetString("SSE_KMS_KEY_ID"),
		SQSQueueURL:        strings.TrimSpace(v.GetString("JOBS_QUEUE_URL")),
		JWTSecret:          v.GetString("JWT_SECRET"),
		SessionCookieName:  v.GetString("SESSION_COOKIE_NAME"),
		SessionTTL:         v.GetDuration("SESSION_TTL"),
		AnalysisServiceURL: strings.TrimRight(v.GetString("ANALYSIS_SERVICE_URL"), "/"),
		AllowAnonymous:     v.GetBool("ANALYSIS_ALLOW_ANONYMOUS"),
		JobTimeout:         v.GetDuration("JOB_TIMEOUT"),
		JobMaxConcurrency:  v.GetInt("JOB_MAX_CONCURRENCY"),
		RateLimitMax:       v.GetInt("RATE_LIMIT_MAX_REQUESTS"),
		RateLimitWindow:    v.GetDuration("RATE_LIMIT_WINDOW"),
		RateLimitReapEvery: v.GetDuration("RATE_LIMIT_REAP_INTERVAL"),
		PollRate:           v.GetFloat64("POLL_RATE"),
		PollBurst:          v.GetInt("POLL_BURST"),
		GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		UIRedirectURL:      v.GetString("UI_REDIRECT_URL"),
	}
}

// IsDevLike reports whether env permits in-memory fallbacks.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
