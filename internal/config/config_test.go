package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if c.Database.Path != "./output/outages.db" {
		t.Errorf("database.path = %q, want ./output/outages.db", c.Database.Path)
	}
	if c.Ingest.Mode != "append" || c.Ingest.RetainDays != 7 {
		t.Errorf("ingest = %+v, want append/7", c.Ingest)
	}
	if c.Feed.Timeout != 30*time.Second {
		t.Errorf("feed.timeout = %v, want 30s", c.Feed.Timeout)
	}
	if c.Feed.Lookback != 48*time.Hour {
		t.Errorf("feed.lookback = %v, want 48h", c.Feed.Lookback)
	}
	if c.Feed.Mode != FeedModePerNetwork {
		t.Errorf("feed.mode = %q, want %q", c.Feed.Mode, FeedModePerNetwork)
	}
	if c.Classify.ReportThreshold != 0.80 || c.Classify.AlertThreshold != 0.75 {
		t.Errorf("classify thresholds = %v/%v, want 0.8/0.75", c.Classify.ReportThreshold, c.Classify.AlertThreshold)
	}
	if c.Notify.Pushover.Enabled() {
		t.Error("pushover should be disabled without credentials")
	}
	if got := c.Server.Addr(); got != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q, want 0.0.0.0:8080", got)
	}
	if c.Server.CacheTTL != 5*time.Minute {
		t.Errorf("server.cache_ttl = %v, want 5m", c.Server.CacheTTL)
	}
}

func TestLoad_File(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "custom.yaml")
	yaml := `
database:
  path: /var/lib/outagewatch/outages.db
feed:
  mode: bulk
  concurrency: 8
classify:
  lookback: 6h
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.Database.Path != "/var/lib/outagewatch/outages.db" {
		t.Errorf("database.path = %q", c.Database.Path)
	}
	if c.Feed.Mode != FeedModeBulk || c.Feed.Concurrency != 8 {
		t.Errorf("feed = %+v, want bulk/8", c.Feed)
	}
	if c.Classify.Lookback != 6*time.Hour {
		t.Errorf("classify.lookback = %v, want 6h", c.Classify.Lookback)
	}
	if c.Ingest.RetainDays != 7 {
		t.Errorf("unset keys keep defaults: retain_days = %d", c.Ingest.RetainDays)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OW_FEED_TOKEN", "secret-token")
	t.Setenv("OW_SERVER_PORT", "9090")
	t.Setenv("OW_NOTIFY_PUSHOVER_USER_KEY", "ukey")
	t.Setenv("OW_NOTIFY_PUSHOVER_API_TOKEN", "atok")

	v, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.Feed.Token != "secret-token" {
		t.Errorf("feed.token = %q", c.Feed.Token)
	}
	if c.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", c.Server.Port)
	}
	if !c.Notify.Pushover.Enabled() {
		t.Error("pushover should be enabled from env")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	const key = "OW_FEED_BASE_URL"
	t.Cleanup(func() { os.Unsetenv(key) })
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=https://feed.example.test/api\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	v, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := v.GetString("feed.base_url"); got != "https://feed.example.test/api" {
		t.Errorf("feed.base_url = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Ingest.Mode = "merge" }, "ingest.mode"},
		{"zero retention", func(c *Config) { c.Ingest.RetainDays = 0 }, "ingest.retain_days"},
		{"bad feed mode", func(c *Config) { c.Feed.Mode = "stream" }, "feed.mode"},
		{"zero concurrency", func(c *Config) { c.Feed.Concurrency = 0 }, "feed.concurrency"},
		{"threshold above one", func(c *Config) { c.Classify.AlertThreshold = 1.5 }, "classify.alert_threshold"},
		{"no database", func(c *Config) { c.Database.Path = "" }, "database.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{
				Database: DatabaseConfig{Path: "x.db"},
				Ingest:   IngestConfig{Mode: "append", RetainDays: 7},
				Feed:     FeedConfig{Mode: FeedModePerNetwork, Concurrency: 4, Rate: 2},
				Classify: ClassifyConfig{ReportThreshold: 0.8, AlertThreshold: 0.75},
				Server:   ServerConfig{Port: 8080},
			}
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}
