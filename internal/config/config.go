// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for both
// processes of the sync system: the relay (HTTP server, change-log store,
// rate limiting, observability) and the terminal (local store, relay URL,
// sync cadence and retry policy, log output).
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "possync-relay")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// LogConfig defines log output settings.
type LogConfig struct {
	Level      string // debug|info|warn|error|fatal|panic
	Pretty     bool   // pretty console logs in dev
	File       string // optional rotating log file; empty logs to stderr
	MaxSizeMB  int    // rotate after this many megabytes
	MaxBackups int    // rotated files kept
	MaxAgeDays int    // days rotated files are kept
}

// SyncConfig holds terminal-side sync settings.
type SyncConfig struct {
	RelayURL       string        // base URL of the relay, e.g. http://relay:8080
	DBPath         string        // local terminal SQLite path
	StoreID        int64         // store this terminal belongs to (first run only)
	DeviceName     string        // human-readable device label
	TerminalCode   string        // overrides the host-derived terminal code
	Interval       time.Duration // periodic cycle interval
	BatchSize      int           // max outbox entries per push
	Timeout        time.Duration // per-request timeout against the relay
	ApplyPolicy    string        // skip|halt on a failing remote change
	BackoffInitial time.Duration // first delay after a failed periodic cycle
	BackoffMax     time.Duration // cap for the delay between failed cycles
	StuckAttempts  int           // sync_attempts at which an entry is reported stuck
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
	Log            LogConfig
	SwaggerEnabled bool // enable Swagger UI route

	// Relay store
	DBDriver     string // sqlite|postgres
	DBPath       string // SQLite path (DB_DRIVER=sqlite)
	DatabaseURL  string // Postgres DSN (DB_DRIVER=postgres)
	PullPageSize int    // max changes returned by one pull

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a push receipt can be replayed

	// Terminal
	Sync SyncConfig

	// Observability
	OTEL OTELConfig
}

// Apply failure policies accepted by APPLY_FAILURE_POLICY.
const (
	ApplyPolicySkip = "skip"
	ApplyPolicyHalt = "halt"
)

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
		Log: LogConfig{
			Level:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			Pretty:     getbool("LOG_PRETTY", false),
			File:       getenv("LOG_FILE", ""),
			MaxSizeMB:  getint("LOG_MAX_SIZE_MB", 20),
			MaxBackups: getint("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getint("LOG_MAX_AGE_DAYS", 30),
		},
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),

		// Relay store
		DBDriver:     strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:       getenv("DB_PATH", "relay.db"),
		DatabaseURL:  getenv("DATABASE_URL", ""),
		PullPageSize: getint("PULL_PAGE_SIZE", 1000),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

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

		// Terminal
		Sync: SyncConfig{
			RelayURL:       strings.TrimRight(getenv("RELAY_URL", "http://localhost:8080"), "/"),
			DBPath:         getenv("TERMINAL_DB_PATH", "terminal.db"),
			StoreID:        getint64("STORE_ID", 1),
			DeviceName:     getenv("DEVICE_NAME", ""),
			TerminalCode:   strings.TrimSpace(getenv("TERMINAL_CODE", "")),
			Interval:       getdur("SYNC_INTERVAL", 30*time.Second),
			BatchSize:      getint("SYNC_BATCH_SIZE", 100),
			Timeout:        getdur("SYNC_TIMEOUT", 10*time.Second),
			ApplyPolicy:    strings.ToLower(getenv("APPLY_FAILURE_POLICY", ApplyPolicySkip)),
			BackoffInitial: getdur("SYNC_BACKOFF_INITIAL", 5*time.Second),
			BackoffMax:     getdur("SYNC_BACKOFF_MAX", 5*time.Minute),
			StuckAttempts:  getint("SYNC_STUCK_ATTEMPTS", 10),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "possync"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.Log.Level == "warning" {
		cfg.Log.Level = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "sqlite3" {
		cfg.DBDriver = "sqlite"
	}

	// --- validation ---
	switch cfg.Log.Level {
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
	if cfg.PullPageSize < 1 {
		return cfg, errors.New("PULL_PAGE_SIZE must be >= 1")
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
	if err := validateSync(cfg.Sync); err != nil {
		return cfg, err
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func validateSync(s SyncConfig) error {
	if !strings.HasPrefix(s.RelayURL, "http://") && !strings.HasPrefix(s.RelayURL, "https://") {
		return errors.New("RELAY_URL must start with http:// or https://")
	}
	if strings.TrimSpace(s.DBPath) == "" {
		return errors.New("TERMINAL_DB_PATH must not be empty")
	}
	if s.StoreID < 1 {
		return errors.New("STORE_ID must be >= 1")
	}
	if s.Interval < time.Second {
		return errors.New("SYNC_INTERVAL must be >= 1s")
	}
	if s.BatchSize < 1 {
		return errors.New("SYNC_BATCH_SIZE must be >= 1")
	}
	if s.Timeout <= 0 {
		return errors.New("SYNC_TIMEOUT must be > 0")
	}
	switch s.ApplyPolicy {
	case ApplyPolicySkip, ApplyPolicyHalt:
	default:
		return errors.New("APPLY_FAILURE_POLICY must be one of: skip, halt")
	}
	if s.BackoffInitial <= 0 || s.BackoffMax < s.BackoffInitial {
		return errors.New("SYNC_BACKOFF_INITIAL must be > 0 and <= SYNC_BACKOFF_MAX")
	}
	if s.StuckAttempts < 1 {
		return errors.New("SYNC_STUCK_ATTEMPTS must be >= 1")
	}
	return nil
}

// ---- helpers (no external deps) ----

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

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
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
