// Package config loads application settings from environment variables
// (optionally seeded from a .env file), applies defaults, normalizes values
// and validates the result. It covers the HTTP server, logging, the
// submission store, the live directory, auth, the cross-instance change
// feed, logo uploads and observability.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS"  envDefault:"false"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" envDefault:"4320h"`
}

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED"                envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME"           envDefault:"community-directory"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG"     envDefault:"1.0"`
}

// DBConfig selects the submission store backend.
type DBConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite|postgres
	DSN    string `env:"DB_DSN"    envDefault:"app.db"` // file path for sqlite
}

// StoreConfig bounds every store call.
type StoreConfig struct {
	ReadTimeout  time.Duration `env:"STORE_READ_TIMEOUT"  envDefault:"5s"`
	WriteTimeout time.Duration `env:"STORE_WRITE_TIMEOUT" envDefault:"10s"`
}

// DirectoryConfig tunes the live directory projection.
type DirectoryConfig struct {
	PollInterval time.Duration `env:"DIRECTORY_POLL_INTERVAL" envDefault:"20s"`
	// SeedPath overrides the embedded seed communities with a JSON file.
	SeedPath string `env:"SEED_PATH"`
}

// AuthConfig configures bearer-token verification. An empty secret disables
// verification and every caller is anonymous.
type AuthConfig struct {
	JWTSecret    string   `env:"AUTH_JWT_SECRET"`
	JWTIssuer    string   `env:"AUTH_JWT_ISSUER"`
	AdminUserIDs []string `env:"ADMIN_USER_IDS" envSeparator:","`
}

// Enabled reports whether tokens are verified.
func (a AuthConfig) Enabled() bool { return a.JWTSecret != "" }

// ChangeFeedConfig points at the Redis pub/sub channel shared by instances.
// An empty URL keeps every instance on its own poll.
type ChangeFeedConfig struct {
	RedisURL string `env:"CHANGEFEED_REDIS_URL"`
	Channel  string `env:"CHANGEFEED_CHANNEL" envDefault:"community-directory:submissions"`
}

// UploadConfig selects where community logos are stored.
type UploadConfig struct {
	Backend  string `env:"UPLOAD_BACKEND"   envDefault:"local"` // none|local|s3
	MaxBytes int64  `env:"UPLOAD_MAX_BYTES" envDefault:"2097152"`

	LocalDir     string `env:"UPLOAD_LOCAL_DIR" envDefault:"uploads"`
	LocalBaseURL string `env:"UPLOAD_BASE_URL"  envDefault:"/static/logos"`

	S3Region         string `env:"UPLOAD_S3_REGION"          envDefault:"us-east-1"`
	S3Endpoint       string `env:"UPLOAD_S3_ENDPOINT"`
	S3AccessKey      string `env:"UPLOAD_S3_ACCESS_KEY"`
	S3SecretKey      string `env:"UPLOAD_S3_SECRET_KEY"`
	S3Bucket         string `env:"UPLOAD_S3_BUCKET"`
	S3Prefix         string `env:"UPLOAD_S3_PREFIX"          envDefault:"logos"`
	S3PublicEndpoint string `env:"UPLOAD_S3_PUBLIC_ENDPOINT"`
	S3SSLDisabled    bool   `env:"UPLOAD_S3_SSL_DISABLED"    envDefault:"false"`
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        `env:"PORT"                envDefault:"8080"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT"        envDefault:"15s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT"       envDefault:"20s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT"        envDefault:"60s"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES"    envDefault:"1048576"`
	GinMode           string        `env:"GIN_MODE"            envDefault:"release"`

	// Logging / Docs
	LogLevel       string `env:"LOG_LEVEL"       envDefault:"info"`
	LogPretty      bool   `env:"LOG_PRETTY"      envDefault:"false"`
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED" envDefault:"false"`
	APIBasePath    string `env:"API_BASE_PATH"   envDefault:"/api/v1"`

	// Rate limiting: global, and the stricter budget for new submissions.
	RateRPS         float64 `env:"RATE_RPS"          envDefault:"5"`
	RateBurst       int     `env:"RATE_BURST"        envDefault:"10"`
	SubmitRateRPS   float64 `env:"SUBMIT_RATE_RPS"   envDefault:"0.1"`
	SubmitRateBurst int     `env:"SUBMIT_RATE_BURST" envDefault:"3"`

	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	CORS       CORSConfig
	Security   SecurityConfig
	DB         DBConfig
	Store      StoreConfig
	Directory  DirectoryConfig
	Auth       AuthConfig
	ChangeFeed ChangeFeedConfig
	Upload     UploadConfig
	OTEL       OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load parses the environment, normalizes and validates. Values that do not
// parse are errors, not silent fallbacks.
func Load() (Config, error) {
	var cfg Config
	err := env.ParseWithOptions(&cfg, env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(false): func(v string) (interface{}, error) { return parseBool(v) },
		},
	})
	if err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, cfg.Validate()
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	c.GinMode = strings.ToLower(strings.TrimSpace(c.GinMode))
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	c.APIBasePath = normalizeBasePath(c.APIBasePath)
	c.CORS.AllowedOrigins = compact(c.CORS.AllowedOrigins)
	c.Auth.AdminUserIDs = compact(c.Auth.AdminUserIDs)
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	c.Upload.Backend = strings.ToLower(strings.TrimSpace(c.Upload.Backend))
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if c.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if c.RateRPS < 0 || c.SubmitRateRPS < 0 {
		return errors.New("RATE_RPS and SUBMIT_RATE_RPS must be >= 0")
	}
	if c.RateBurst < 1 || c.SubmitRateBurst < 1 {
		return errors.New("RATE_BURST and SUBMIT_RATE_BURST must be >= 1")
	}
	if c.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if c.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}

	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		return errors.New("DB_DSN must not be empty")
	}
	if c.Store.ReadTimeout <= 0 || c.Store.WriteTimeout <= 0 {
		return errors.New("STORE_READ_TIMEOUT and STORE_WRITE_TIMEOUT must be > 0")
	}
	if c.Directory.PollInterval <= 0 {
		return errors.New("DIRECTORY_POLL_INTERVAL must be > 0")
	}

	if c.Auth.Enabled() && len(c.Auth.JWTSecret) < 16 {
		return errors.New("AUTH_JWT_SECRET must be at least 16 bytes")
	}
	if c.ChangeFeed.RedisURL != "" && strings.TrimSpace(c.ChangeFeed.Channel) == "" {
		return errors.New("CHANGEFEED_CHANNEL must not be empty")
	}

	switch c.Upload.Backend {
	case "none":
	case "local":
		if strings.TrimSpace(c.Upload.LocalDir) == "" {
			return errors.New("UPLOAD_LOCAL_DIR must not be empty")
		}
	case "s3":
		if c.Upload.S3Bucket == "" {
			return errors.New("UPLOAD_S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("UPLOAD_BACKEND must be none, local or s3, got %q", c.Upload.Backend)
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("UPLOAD_MAX_BYTES must be > 0")
	}

	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// parseBool accepts the usual spellings (1/true/yes/y/on and their negatives).
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

// compact trims entries and drops empty ones.
func compact(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
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
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
