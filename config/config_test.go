package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bookfeed/internal/endpoint"
)

// writeTempConfig writes content to a config file in a temp dir and returns
// its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, `app:
  name: "TestApp"
  version: "1.0"
stream:
  symbol: "ETH-USDT-SWAP"
  endpoints:
    - url: "wss://fstream.binance.com/ws/{symbol}@depth20@100ms"
    - url: "wss://relay.example/{symbol}"
      family: "generic"
reader:
  receive_timeout: 10s
publisher:
  update_interval: 250ms
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.Stream.Symbol != "ETH-USDT-SWAP" {
		t.Errorf("unexpected symbol: %s", cfg.Stream.Symbol)
	}
	if cfg.Reader.ReceiveTimeout != 10*time.Second {
		t.Errorf("unexpected receive timeout: %s", cfg.Reader.ReceiveTimeout)
	}
	// untouched fields keep their defaults
	if cfg.Reader.PingInterval != 5*time.Second || cfg.Reader.PongTimeout != 5*time.Second {
		t.Errorf("unexpected probe timings: %s/%s", cfg.Reader.PingInterval, cfg.Reader.PongTimeout)
	}
	if cfg.Publisher.UpdateInterval != 250*time.Millisecond {
		t.Errorf("unexpected update interval: %s", cfg.Publisher.UpdateInterval)
	}
	if cfg.Publisher.OutputFile != "latest_orderbook.json" {
		t.Errorf("unexpected output file: %s", cfg.Publisher.OutputFile)
	}

	reg, err := cfg.Stream.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 endpoints, got %d", reg.Len())
	}
	if reg.At(0).Family != endpoint.FamilyBinance {
		t.Errorf("expected inferred BINANCE family, got %s", reg.At(0).Family)
	}
	if reg.At(1).Family != endpoint.FamilyGeneric {
		t.Errorf("expected GENERIC family, got %s", reg.At(1).Family)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg, err := DefaultConfig().Stream.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if reg.Len() != len(endpoint.Defaults()) {
		t.Fatalf("expected built-in registry, got %d endpoints", reg.Len())
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"empty symbol", func(c *Config) { c.Stream.Symbol = " " }, "stream.symbol"},
		{"blank endpoint", func(c *Config) { c.Stream.Endpoints = []EndpointConfig{{URL: ""}} }, "stream.endpoints[0].url"},
		{"bad family", func(c *Config) {
			c.Stream.Endpoints = []EndpointConfig{{URL: "wss://x", Family: "kraken"}}
		}, "stream.endpoints[0].family"},
		{"zero receive timeout", func(c *Config) { c.Reader.ReceiveTimeout = 0 }, "reader.receive_timeout"},
		{"zero pong timeout", func(c *Config) { c.Reader.PongTimeout = 0 }, "reader.pong_timeout"},
		{"bad local ip", func(c *Config) { c.Reader.LocalIP = "300.1.1.1" }, "reader.local_ip"},
		{"max below initial", func(c *Config) { c.Backoff.MaxDelay = time.Millisecond }, "backoff.max_delay"},
		{"shrinking multiplier", func(c *Config) { c.Backoff.Multiplier = 0.5 }, "backoff.multiplier"},
		{"negative interval", func(c *Config) { c.Publisher.UpdateInterval = -time.Second }, "publisher.update_interval"},
		{"bad file mode", func(c *Config) { c.Publisher.FileMode = "rw-r--r--" }, "publisher.file_mode"},
		{"s3 without bucket", func(c *Config) { c.Storage.S3.Enabled = true; c.Storage.S3.Region = "us-east-1" }, "storage.s3.bucket"},
		{"s3 invalid bucket", func(c *Config) {
			c.Storage.S3.Enabled = true
			c.Storage.S3.Region = "us-east-1"
			c.Storage.S3.Bucket = "Bad_Bucket"
		}, "is invalid"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := DefaultConfig()
			c.mutate(cfg)
			err := validateConfig(cfg)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), c.errSub) {
				t.Fatalf("error %q does not mention %q", err, c.errSub)
			}
		})
	}

	if err := validateConfig(DefaultConfig()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestPublisherMode(t *testing.T) {
	mode, err := PublisherConfig{FileMode: "0600"}.Mode()
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if mode != 0o600 {
		t.Fatalf("unexpected mode %o", mode)
	}
	if mode, _ := (PublisherConfig{}).Mode(); mode != 0o644 {
		t.Fatalf("unexpected default mode %o", mode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOOKFEED_SYMBOL", "SOL-USDT-SWAP")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("S3_BUCKET", "books-bucket")

	path := writeTempConfig(t, `storage:
  s3:
    enabled: true
    bucket: "placeholder"
    region: "us-east-1"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Stream.Symbol != "SOL-USDT-SWAP" {
		t.Errorf("symbol override not applied: %s", cfg.Stream.Symbol)
	}
	if cfg.Storage.S3.Region != "eu-west-1" || cfg.Storage.S3.Bucket != "books-bucket" {
		t.Errorf("s3 overrides not applied: %+v", cfg.Storage.S3)
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "config.yml")
	prod := filepath.Join(dir, "config.production.yml")
	paths := map[string]string{environmentProduction: prod}

	t.Setenv("APP_ENV", "prod")
	if got := resolveEnvSpecificPath("", def, paths); got != def {
		t.Fatalf("missing env file should fall back to default, got %s", got)
	}
	if err := os.WriteFile(prod, []byte("app:\n  name: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := resolveEnvSpecificPath("", def, paths); got != prod {
		t.Fatalf("expected production file, got %s", got)
	}
	if got := resolveEnvSpecificPath("custom.yml", def, paths); got != "custom.yml" {
		t.Fatalf("explicit path should win, got %s", got)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}
