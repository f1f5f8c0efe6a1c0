package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr            string
	UpstreamURL     string
	LoginBaseURL    string
	UpstreamTimeout time.Duration
	JWTSecret       string
	CORSOrigin      string
	// Optional backends; empty disables them.
	RedisURL       string
	DatabaseURL    string
	MigrationsDir  string
	MeiliURL       string
	MeiliMasterKey string

	LogLevel        string
	LogFormat       string
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	StrictCategory  bool
}

const (
	KeyAddr            = "addr"
	KeyUpstreamURL     = "upstream_url"
	KeyLoginBaseURL    = "login_base_url"
	KeyUpstreamTimeout = "upstream_timeout"
	KeyJWTSecret       = "jwt_secret"
	KeyCORSOrigin      = "cors_origin"
	KeyRedisURL        = "redis_url"
	KeyDatabaseURL     = "database_url"
	KeyMigrationsDir   = "migrations_dir"
	KeyMeiliURL        = "meili_url"
	KeyMeiliMasterKey  = "meili_master_key"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyIdleTimeout     = "idle_timeout"
	KeyShutdownTimeout = "shutdown_timeout"
	KeyStrictCategory  = "strict_category"
)

var envNames = map[string]string{
	KeyAddr:            "API_ADDR",
	KeyUpstreamURL:     "UPSTREAM_URL",
	KeyLoginBaseURL:    "LOGIN_BASE_URL",
	KeyUpstreamTimeout: "UPSTREAM_TIMEOUT",
	KeyJWTSecret:       "INTEGRATIONS_JWT_SECRET",
	KeyCORSOrigin:      "INTEGRATIONS_CORS_ORIGIN",
	KeyRedisURL:        "REDIS_URL",
	KeyDatabaseURL:     "DATABASE_URL",
	KeyMigrationsDir:   "INTEGRATIONS_MIGRATIONS_DIR",
	KeyMeiliURL:        "MEILI_URL",
	KeyMeiliMasterKey:  "MEILI_MASTER_KEY",
	KeyLogLevel:        "LOG_LEVEL",
	KeyLogFormat:       "LOG_FORMAT",
	KeyIdleTimeout:     "ORCHESTRATOR_IDLE_TIMEOUT",
	KeyShutdownTimeout: "SHUTDOWN_TIMEOUT",
	KeyStrictCategory:  "SEARCH_STRICT_CATEGORY",
}

// EnvName returns the environment variable bound to key.
func EnvName(key string) string {
	return envNames[key]
}

// NewViper returns a viper instance with defaults and environment bindings.
// Callers may bind flags on top before calling FromViper.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAddr, ":8787")
	v.SetDefault(KeyUpstreamURL, "http://localhost:8000/api/v1")
	v.SetDefault(KeyUpstreamTimeout, 15*time.Second)
	v.SetDefault(KeyJWTSecret, "integrations-dev-secret")
	v.SetDefault(KeyCORSOrigin, "*")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyIdleTimeout, 30*time.Minute)
	v.SetDefault(KeyShutdownTimeout, 10*time.Second)
	v.SetDefault(KeyStrictCategory, true)
	for key, env := range envNames {
		_ = v.BindEnv(key, env)
	}
	return v
}

func Load() Config {
	return FromViper(NewViper())
}

func FromViper(v *viper.Viper) Config {
	cfg := Config{
		Addr:            strings.TrimSpace(v.GetString(KeyAddr)),
		UpstreamURL:     strings.TrimRight(strings.TrimSpace(v.GetString(KeyUpstreamURL)), "/"),
		LoginBaseURL:    strings.TrimRight(strings.TrimSpace(v.GetString(KeyLoginBaseURL)), "/"),
		UpstreamTimeout: v.GetDuration(KeyUpstreamTimeout),
		JWTSecret:       v.GetString(KeyJWTSecret),
		CORSOrigin:      v.GetString(KeyCORSOrigin),
		RedisURL:        strings.TrimSpace(v.GetString(KeyRedisURL)),
		DatabaseURL:     strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		MigrationsDir:   strings.TrimSpace(v.GetString(KeyMigrationsDir)),
		MeiliURL:        strings.TrimSpace(v.GetString(KeyMeiliURL)),
		MeiliMasterKey:  v.GetString(KeyMeiliMasterKey),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		IdleTimeout:     v.GetDuration(KeyIdleTimeout),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
		StrictCategory:  v.GetBool(KeyStrictCategory),
	}
	if cfg.LoginBaseURL == "" && cfg.UpstreamURL != "" {
		cfg.LoginBaseURL = cfg.UpstreamURL + "/oauth/login/integration"
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 15 * time.Second
	}
	return cfg
}
