package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 実行環境
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	AppEnv string

	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string

	// Admin
	AdminEmails []string

	// Session
	SessionMaxAge          time.Duration
	MaxSessionsPerUser     int
	SessionCleanupInterval time.Duration

	// Rate Limit
	RateLimitGeneral          int
	RateLimitGeneralWindow    time.Duration
	RateLimitValidation       int
	RateLimitValidationWindow time.Duration

	// Cache
	CacheBackend  string
	CacheBoltPath string
	CacheRedisURL string
	CacheQuota    int
	CacheMaxItems int

	// Weather
	WeatherEndpoint          string
	WeatherAPIInterval       time.Duration
	WeatherPrefetchInterval  time.Duration
	WeatherPrefetchMaxEvents int

	// Audit
	AuditLogCapacity int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// MockLoginEnabled はモックログインを有効にするかどうかを返す。開発環境のみ有効。
func (c *Config) MockLoginEnabled() bool {
	return !c.IsProduction()
}

// GoogleEnabled はGoogle OAuthの資格情報が設定されているかどうかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// GitHubEnabled はGitHub OAuthの資格情報が設定されているかどうかを返す。
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値の組み合わせが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AppEnv = strings.ToLower(getEnvString("APP_ENV", EnvDevelopment))
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", baseURL+"/auth/google/callback")
	cfg.GitHubClientID = os.Getenv("GITHUB_CLIENT_ID")
	cfg.GitHubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	cfg.GitHubRedirectURL = getEnvString("GITHUB_REDIRECT_URL", baseURL+"/auth/github/callback")

	cfg.AdminEmails = getEnvList("ADMIN_EMAILS")

	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 24*time.Hour)
	cfg.MaxSessionsPerUser = getEnvInt("MAX_SESSIONS_PER_USER", 5)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 100)
	cfg.RateLimitGeneralWindow = getEnvDuration("RATE_LIMIT_GENERAL_WINDOW", 15*time.Minute)
	cfg.RateLimitValidation = getEnvInt("RATE_LIMIT_VALIDATION", 10)
	cfg.RateLimitValidationWindow = getEnvDuration("RATE_LIMIT_VALIDATION_WINDOW", time.Minute)

	cfg.CacheBackend = strings.ToLower(getEnvString("CACHE_BACKEND", "memory"))
	cfg.CacheBoltPath = getEnvString("CACHE_BOLT_PATH", "")
	cfg.CacheRedisURL = getEnvString("CACHE_REDIS_URL", "")
	cfg.CacheQuota = getEnvInt("CACHE_QUOTA_BYTES", 5<<20)
	cfg.CacheMaxItems = getEnvInt("CACHE_MAX_ITEMS", 100)

	cfg.WeatherEndpoint = getEnvString("WEATHER_ENDPOINT", "https://api.open-meteo.com/v1/forecast")
	cfg.WeatherAPIInterval = getEnvDuration("WEATHER_API_INTERVAL", time.Second)
	cfg.WeatherPrefetchInterval = getEnvDuration("WEATHER_PREFETCH_INTERVAL", 20*time.Minute)
	cfg.WeatherPrefetchMaxEvents = getEnvInt("WEATHER_PREFETCH_MAX_EVENTS", 100)

	cfg.AuditLogCapacity = getEnvInt("AUDIT_LOG_CAPACITY", 1000)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = cfg.IsProduction() || strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は値の組み合わせを検証する。
func (c *Config) validate() error {
	switch c.AppEnv {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.AppEnv)
	}

	switch c.CacheBackend {
	case "memory":
	case "bolt":
		if c.CacheBoltPath == "" {
			return fmt.Errorf("CACHE_BOLT_PATH is required when CACHE_BACKEND=bolt")
		}
	case "redis":
		if c.CacheRedisURL == "" {
			return fmt.Errorf("CACHE_REDIS_URL is required when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory, bolt or redis, got %q", c.CacheBackend)
	}

	// 本番ではモックログインを使えないため、少なくとも1つのプロバイダーが必要
	if c.IsProduction() && !c.GoogleEnabled() && !c.GitHubEnabled() {
		return fmt.Errorf("production requires GOOGLE_CLIENT_ID/SECRET or GITHUB_CLIENT_ID/SECRET")
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
