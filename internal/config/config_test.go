package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so host settings cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		for _, p := range []string{"PORT", "READ_", "WRITE_", "IDLE_", "MAX_HEADER", "GIN_", "LOG_", "SWAGGER_", "API_",
			"RATE_", "SUBMIT_", "IDEMPOTENCY_", "CORS_", "ENABLE_HSTS", "HSTS_", "DB_", "STORE_", "DIRECTORY_",
			"SEED_", "AUTH_", "ADMIN_", "CHANGEFEED_", "UPLOAD_", "OTEL_"} {
			if strings.HasPrefix(k, p) {
				t.Setenv(k, "")
				os.Unsetenv(k)
			}
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.DSN != "app.db" {
		t.Fatalf("db defaults: %+v", cfg.DB)
	}
	if cfg.Store.ReadTimeout != 5*time.Second || cfg.Store.WriteTimeout != 10*time.Second {
		t.Fatalf("store defaults: %+v", cfg.Store)
	}
	if cfg.Directory.PollInterval != 20*time.Second || cfg.Directory.SeedPath != "" {
		t.Fatalf("directory defaults: %+v", cfg.Directory)
	}
	if cfg.Auth.Enabled() || cfg.ChangeFeed.RedisURL != "" || cfg.ChangeFeed.Channel != "community-directory:submissions" {
		t.Fatalf("auth/feed defaults: %+v %+v", cfg.Auth, cfg.ChangeFeed)
	}
	if cfg.Upload.Backend != "local" || cfg.Upload.MaxBytes != 2<<20 || cfg.Upload.S3Prefix != "logos" {
		t.Fatalf("upload defaults: %+v", cfg.Upload)
	}
	if cfg.Security.HSTSMaxAge != 180*24*time.Hour || cfg.OTEL.ServiceName != "community-directory" || cfg.OTEL.SampleRatio != 1 {
		t.Fatalf("security/otel defaults: %+v %+v", cfg.Security, cfg.OTEL)
	}
	if cfg.CORS.AllowedOrigins != nil {
		t.Fatalf("no origins expected, got %#v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	clearEnv(t)
	set := map[string]string{
		"PORT":                    "8088",
		"READ_TIMEOUT":            "2s",
		"GIN_MODE":                "weird",
		"LOG_LEVEL":               "WARNING",
		"LOG_PRETTY":              "yes",
		"SWAGGER_ENABLED":         "on",
		"API_BASE_PATH":           "api/v2/",
		"DB_DRIVER":               "Postgres",
		"DB_DSN":                  "postgres://u:p@db/dir",
		"STORE_READ_TIMEOUT":      "750ms",
		"STORE_WRITE_TIMEOUT":     "3s",
		"DIRECTORY_POLL_INTERVAL": "15s",
		"SEED_PATH":               "/etc/seeds.json",
		"AUTH_JWT_SECRET":         "0123456789abcdef",
		"AUTH_JWT_ISSUER":         "idp",
		"ADMIN_USER_IDS":          " alice, ,bob ",
		"CHANGEFEED_REDIS_URL":    "redis://cache:6379/0",
		"CORS_ALLOWED_ORIGINS":    " https://a.com , , http://b ",
		"ENABLE_HSTS":             "TRUE",
		"UPLOAD_BACKEND":          "S3",
		"UPLOAD_S3_BUCKET":        "logos",
		"UPLOAD_S3_SSL_DISABLED":  "1",
		"OTEL_ENABLED":            "y",
		"OTEL_TRACES_SAMPLER_ARG": "0.25",
	}
	for k, v := range set {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.GinMode != "release" {
		t.Fatalf("server: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs: %+v", cfg)
	}
	if cfg.DB.Driver != "postgres" || cfg.Store.ReadTimeout != 750*time.Millisecond || cfg.Directory.PollInterval != 15*time.Second {
		t.Fatalf("store: %+v %+v %+v", cfg.DB, cfg.Store, cfg.Directory)
	}
	if !cfg.Auth.Enabled() || cfg.Auth.JWTIssuer != "idp" || !reflect.DeepEqual(cfg.Auth.AdminUserIDs, []string{"alice", "bob"}) {
		t.Fatalf("auth: %+v", cfg.Auth)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors: %#v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Upload.Backend != "s3" || !cfg.Upload.S3SSLDisabled || !cfg.Security.EnableHSTS {
		t.Fatalf("upload/security: %+v %+v", cfg.Upload, cfg.Security)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("otel: %+v", cfg.OTEL)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty port", "PORT", "   ", "PORT"},
		{"zero timeout", "READ_TIMEOUT", "0s", "timeouts"},
		{"unparsable duration", "IDLE_TIMEOUT", "soon", "parse env"},
		{"unparsable bool", "LOG_PRETTY", "maybe", "parse env"},
		{"unparsable int", "RATE_BURST", "nope", "parse env"},
		{"header bytes", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"negative rps", "RATE_RPS", "-1", "RATE_RPS"},
		{"submit burst", "SUBMIT_RATE_BURST", "0", "SUBMIT_RATE_BURST"},
		{"hsts", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"idempotency ttl", "IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"driver", "DB_DRIVER", "oracle", "DB_DRIVER"},
		{"dsn", "DB_DSN", " ", "DB_DSN"},
		{"store timeout", "STORE_WRITE_TIMEOUT", "0s", "STORE_"},
		{"poll", "DIRECTORY_POLL_INTERVAL", "0s", "DIRECTORY_POLL_INTERVAL"},
		{"short secret", "AUTH_JWT_SECRET", "short", "AUTH_JWT_SECRET"},
		{"upload backend", "UPLOAD_BACKEND", "ftp", "UPLOAD_BACKEND"},
		{"s3 bucket", "UPLOAD_BACKEND", "s3", "UPLOAD_S3_BUCKET"},
		{"upload size", "UPLOAD_MAX_BYTES", "0", "UPLOAD_MAX_BYTES"},
		{"sample ratio", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestMustLoad(t *testing.T) {
	clearEnv(t)
	if cfg := MustLoad(); cfg.APIBasePath == "" {
		t.Fatalf("empty config from MustLoad")
	}

	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DB_DSN=from-dotenv.db\nPORT=9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7000") // already set: dotenv must not override

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("DB_DSN") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.DSN != "from-dotenv.db" || cfg.Port != "7000" {
		t.Fatalf("dotenv not applied correctly: dsn=%q port=%q", cfg.DB.DSN, cfg.Port)
	}
}

func TestHelpers(t *testing.T) {
	for _, v := range []string{"1", "TRUE", " yes ", "Y", "on"} {
		if b, err := parseBool(v); err != nil || !b {
			t.Errorf("parseBool(%q) = %v, %v", v, b, err)
		}
	}
	for _, v := range []string{"0", "false", "No", "off", ""} {
		if b, err := parseBool(v); err != nil || b {
			t.Errorf("parseBool(%q) = %v, %v", v, b, err)
		}
	}
	if _, err := parseBool("perhaps"); err == nil {
		t.Errorf("parseBool should reject unknown spellings")
	}

	if compact([]string{" ", ""}) != nil || compact(nil) != nil {
		t.Errorf("compact of blanks should be nil")
	}
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/", "//": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
