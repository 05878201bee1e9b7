package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Server.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000", cfg.Server.HTTPPort)
	}
	if cfg.Server.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Server.RateLimitRequests != 100 || cfg.RateLimitWindow() != 15*time.Minute {
		t.Errorf("rate limit = %d per %s", cfg.Server.RateLimitRequests, cfg.RateLimitWindow())
	}
	if cfg.Database.EffectiveDriver() != "sqlite" {
		t.Errorf("driver = %q", cfg.Database.EffectiveDriver())
	}

	limits := cfg.ListLimits()
	if limits.DefaultList != 100 || limits.MaxList != 1000 || limits.DefaultDevice != 50 || limits.MaxDevice != 500 {
		t.Errorf("limits = %+v", limits)
	}

	opts := cfg.EngineOptions()
	if opts.HourlyWindow != 24*time.Hour || opts.ProblemJitterMs != 20 || opts.ProblemPacketLossPct != 1 || opts.ProblemDeviceLimit != 20 {
		t.Errorf("engine options = %+v", opts)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "server.toml")
	content := `
[server]
http_port = 8088
cors_allow_origin = "https://dash.example.com"

[database]
driver = "postgres"
dsn = "postgres://mon@db/speed"

[query]
max_list_limit = 250
problem_jitter_ms = 35.5

[clients]
min_app_version = "2.1.0"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, tracker, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.HTTPPort != 8088 || cfg.Server.CORSAllowOrigin != "https://dash.example.com" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.RateLimitRequests != 100 {
		t.Error("unset keys should keep defaults")
	}
	if cfg.Database.BuildDSN() != "postgres://mon@db/speed" {
		t.Errorf("dsn = %q", cfg.Database.BuildDSN())
	}
	if cfg.ListLimits().MaxList != 250 || cfg.ListLimits().DefaultList != 100 {
		t.Errorf("limits = %+v", cfg.ListLimits())
	}
	if opts := cfg.EngineOptions(); opts.ProblemJitterMs != 35.5 || opts.MinAppVersion != "2.1.0" {
		t.Errorf("engine options = %+v", opts)
	}
	if len(tracker.EnvKeys) != 0 {
		t.Errorf("no env overrides expected, got %v", tracker.EnvKeys)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d", cfg.Server.HTTPPort)
	}
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[server\nhttp_port = "), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadConfig(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("SERVER_HTTP_PORT", "4100")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MIN_APP_VERSION", "3.0.0")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("DB_PATH", "/data/speed.db")

	cfg, tracker, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.HTTPPort != 4100 {
		t.Errorf("SERVER_HTTP_PORT should win over PORT, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Clients.MinAppVersion != "3.0.0" {
		t.Errorf("min app version = %q", cfg.Clients.MinAppVersion)
	}
	if cfg.Telemetry.OTLPEndpoint != "collector:4317" || !cfg.Telemetry.OTLPInsecure {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Database.Path != "/data/speed.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}

	for _, key := range []string{"server.http_port", "logging.level", "clients.min_app_version", "telemetry.otlp_endpoint", "telemetry.otlp_insecure", "database.path"} {
		if !tracker.EnvKeys[key] {
			t.Errorf("expected %s to be tracked as env-set", key)
		}
	}
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "server.toml")
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	if err := WriteDefaultConfig(path); err == nil {
		t.Error("second write should refuse to overwrite")
	}

	cfg, _, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("round trip changed config:\n got %+v\nwant %+v", cfg, DefaultConfig())
	}
}

func TestListenAddr(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Server.HTTPPort = 3100
	if got := cfg.ListenAddr(); got != "127.0.0.1:3100" {
		t.Errorf("ListenAddr = %q", got)
	}
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	if originChecker("*") != nil || originChecker("") != nil {
		t.Error("wildcard policy should accept every origin")
	}
}
