// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP API, the MCP tool server, the publication daemon, storage, the
// publisher integration, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SchedulerConfig controls the publication daemon.
type SchedulerConfig struct {
	Enabled    bool          // SCHEDULER_ENABLED
	Interval   time.Duration // SCHEDULER_INTERVAL, e.g. 1m
	MaxRetries int           // SCHEDULER_MAX_RETRIES, failed attempts before a post stays failed
}

// PostsConfig bounds the tool-facing post operations.
type PostsConfig struct {
	MaxRunes         int // POST_MAX_RUNES
	ListDefaultLimit int // LIST_DEFAULT_LIMIT
	ListMaxLimit     int // LIST_MAX_LIMIT
}

// MCPConfig selects how the tool server is exposed.
type MCPConfig struct {
	Transport string // MCP_TRANSPORT: stdio|http
	Addr      string // MCP_ADDR, used by the http transport
}

// LinkedInConfig configures the LinkedIn publisher.
type LinkedInConfig struct {
	APIBase     string        // LINKEDIN_API_BASE
	AccessToken string        // LINKEDIN_ACCESS_TOKEN
	AuthorURN   string        // LINKEDIN_AUTHOR_URN, e.g. urn:li:person:abc
	Timeout     time.Duration // LINKEDIN_TIMEOUT
	RPS         float64       // LINKEDIN_RPS, client-side pacing
	LinkPreview bool          // LINK_PREVIEW_ENABLED
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	Scheduler SchedulerConfig
	Posts     PostsConfig
	MCP       MCPConfig

	// Publisher
	Publisher string // linkedin|dryrun
	LinkedIn  LinkedInConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "scheduler.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		Scheduler: SchedulerConfig{
			Enabled:    getbool("SCHEDULER_ENABLED", true),
			Interval:   getdur("SCHEDULER_INTERVAL", time.Minute),
			MaxRetries: getint("SCHEDULER_MAX_RETRIES", 3),
		},
		Posts: PostsConfig{
			MaxRunes:         getint("POST_MAX_RUNES", 3000),
			ListDefaultLimit: getint("LIST_DEFAULT_LIMIT", 20),
			ListMaxLimit:     getint("LIST_MAX_LIMIT", 100),
		},
		MCP: MCPConfig{
			Transport: strings.ToLower(getenv("MCP_TRANSPORT", "stdio")),
			Addr:      getenv("MCP_ADDR", "localhost:8090"),
		},

		// Publisher
		Publisher: strings.ToLower(getenv("PUBLISHER", "")),
		LinkedIn: LinkedInConfig{
			APIBase:     strings.TrimRight(getenv("LINKEDIN_API_BASE", "https://api.linkedin.com"), "/"),
			AccessToken: getenv("LINKEDIN_ACCESS_TOKEN", ""),
			AuthorURN:   getenv("LINKEDIN_AUTHOR_URN", ""),
			Timeout:     getdur("LINKEDIN_TIMEOUT", 30*time.Second),
			RPS:         getfloat("LINKEDIN_RPS", 1.0),
			LinkPreview: getbool("LINK_PREVIEW_ENABLED", true),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "post-scheduler"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = "postgres"
	}
	// Without credentials there is nothing to publish to.
	if cfg.Publisher == "" {
		if cfg.LinkedIn.AccessToken != "" {
			cfg.Publisher = "linkedin"
		} else {
			cfg.Publisher = "dryrun"
		}
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Scheduler.Interval <= 0 {
		return cfg, errors.New("SCHEDULER_INTERVAL must be a positive duration")
	}
	if cfg.Scheduler.MaxRetries < 1 {
		return cfg, errors.New("SCHEDULER_MAX_RETRIES must be >= 1")
	}
	if cfg.Posts.MaxRunes < 1 {
		return cfg, errors.New("POST_MAX_RUNES must be >= 1")
	}
	if cfg.Posts.ListDefaultLimit < 1 || cfg.Posts.ListMaxLimit < cfg.Posts.ListDefaultLimit {
		return cfg, errors.New("LIST_DEFAULT_LIMIT must be >= 1 and <= LIST_MAX_LIMIT")
	}
	switch cfg.MCP.Transport {
	case "stdio", "http":
	default:
		return cfg, errors.New("MCP_TRANSPORT must be one of: stdio, http")
	}
	switch cfg.Publisher {
	case "dryrun":
	case "linkedin":
		if cfg.LinkedIn.AccessToken == "" || cfg.LinkedIn.AuthorURN == "" {
			return cfg, errors.New("LINKEDIN_ACCESS_TOKEN and LINKEDIN_AUTHOR_URN are required when PUBLISHER=linkedin")
		}
	default:
		return cfg, errors.New("PUBLISHER must be one of: linkedin, dryrun")
	}
	if cfg.LinkedIn.Timeout <= 0 {
		return cfg, errors.New("LINKEDIN_TIMEOUT must be a positive duration")
	}
	if cfg.LinkedIn.RPS <= 0 {
		return cfg, errors.New("LINKEDIN_RPS must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
