package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bookfeed/internal/endpoint"
)

const DefaultConfigPath = "config/config.yml"

type Config struct {
	App       AppConfig       `yaml:"app"`
	Stream    StreamConfig    `yaml:"stream"`
	Reader    ReaderConfig    `yaml:"reader"`
	Backoff   BackoffConfig   `yaml:"backoff"`
	Publisher PublisherConfig `yaml:"publisher"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type StreamConfig struct {
	Symbol string `yaml:"symbol"`
	// Endpoints replaces the built-in registry when non-empty.
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

type EndpointConfig struct {
	URL    string `yaml:"url"`
	Family string `yaml:"family"`
}

type ReaderConfig struct {
	ReceiveTimeout   time.Duration `yaml:"receive_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongTimeout      time.Duration `yaml:"pong_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	LocalIP          string        `yaml:"local_ip"`
	UserAgent        string        `yaml:"user_agent"`
}

type BackoffConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       float64       `yaml:"jitter"`
}

type PublisherConfig struct {
	OutputFile     string        `yaml:"output_file"`
	UpdateInterval time.Duration `yaml:"update_interval"`
	FileMode       string        `yaml:"file_mode"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Key             string `yaml:"key"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	Enabled        bool             `yaml:"enabled"`
	ReportInterval time.Duration    `yaml:"report_interval"`
	LatencySamples int              `yaml:"latency_samples"`
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// DefaultConfig returns the settings the client runs with when no file is
// present: the built-in endpoint registry, a 30s receive timeout, a 5s
// keep-alive probe and a publish every half second.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{Name: "bookfeed", Version: "dev"},
		Stream: StreamConfig{
			Symbol: "BTC-USDT-SWAP",
		},
		Reader: ReaderConfig{
			ReceiveTimeout:   30 * time.Second,
			PingInterval:     5 * time.Second,
			PongTimeout:      5 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     5 * time.Second,
		},
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   1.5,
			Jitter:       0.5,
		},
		Publisher: PublisherConfig{
			OutputFile:     "latest_orderbook.json",
			UpdateInterval: 500 * time.Millisecond,
			FileMode:       "0644",
		},
		Storage: StorageConfig{
			S3: S3Config{Key: "orderbook/latest.json"},
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			ReportInterval: time.Minute,
			LatencySamples: 1000,
			CloudWatch: CloudWatchConfig{
				Namespace: "Bookfeed",
				Dashboard: "bookfeed",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadConfig reads the YAML file at path over DefaultConfig. An empty path
// resolves to the environment specific file under config/ when one exists,
// and runs on the defaults when no file is present at all.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	path = resolveEnvSpecificPath(path, DefaultConfigPath, envConfigPaths(DefaultConfigPath))

	config := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case !explicit && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func envConfigPaths(defaultPath string) map[string]string {
	dir := filepath.Dir(defaultPath)
	out := make(map[string]string, 3)
	for _, env := range []string{environmentDevelopment, environmentStaging, environmentProduction} {
		out[env] = filepath.Join(dir, "config."+env+".yml")
	}
	return out
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("BOOKFEED_SYMBOL"); v != "" {
		config.Stream.Symbol = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKFEED_OUTPUT"); v != "" {
		config.Publisher.OutputFile = strings.TrimSpace(v)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled || config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
			if config.Metrics.CloudWatch.Region == "" {
				config.Metrics.CloudWatch.Region = config.Storage.S3.Region
			}
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if strings.TrimSpace(cfg.Stream.Symbol) == "" {
		return fmt.Errorf("stream.symbol is required")
	}
	for i, ep := range cfg.Stream.Endpoints {
		if strings.TrimSpace(ep.URL) == "" {
			return fmt.Errorf("stream.endpoints[%d].url is required", i)
		}
		if ep.Family != "" {
			if _, err := endpoint.ParseFamily(ep.Family); err != nil {
				return fmt.Errorf("stream.endpoints[%d].family: %w", i, err)
			}
		}
	}

	if cfg.Reader.ReceiveTimeout <= 0 {
		return fmt.Errorf("reader.receive_timeout must be greater than 0")
	}
	if cfg.Reader.PingInterval <= 0 {
		return fmt.Errorf("reader.ping_interval must be greater than 0")
	}
	if cfg.Reader.PongTimeout <= 0 {
		return fmt.Errorf("reader.pong_timeout must be greater than 0")
	}
	if cfg.Reader.LocalIP != "" && !isValidIP(cfg.Reader.LocalIP) {
		return fmt.Errorf("reader.local_ip '%s' is invalid", cfg.Reader.LocalIP)
	}

	if cfg.Backoff.InitialDelay <= 0 {
		return fmt.Errorf("backoff.initial_delay must be greater than 0")
	}
	if cfg.Backoff.MaxDelay < cfg.Backoff.InitialDelay {
		return fmt.Errorf("backoff.max_delay must not be less than backoff.initial_delay")
	}
	if cfg.Backoff.Multiplier < 1 {
		return fmt.Errorf("backoff.multiplier must be at least 1")
	}
	if cfg.Backoff.Jitter < 0 {
		return fmt.Errorf("backoff.jitter must not be negative")
	}

	if cfg.Publisher.OutputFile == "" {
		return fmt.Errorf("publisher.output_file is required")
	}
	if cfg.Publisher.UpdateInterval < 0 {
		return fmt.Errorf("publisher.update_interval must not be negative")
	}
	if _, err := cfg.Publisher.Mode(); err != nil {
		return err
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.Key == "" {
			return fmt.Errorf("storage.s3.key is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Metrics.LatencySamples < 0 {
		return fmt.Errorf("metrics.latency_samples must not be negative")
	}
	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Namespace == "" {
		return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
	}

	return nil
}

// Mode parses the octal file_mode setting.
func (p PublisherConfig) Mode() (os.FileMode, error) {
	if p.FileMode == "" {
		return 0o644, nil
	}
	v, err := strconv.ParseUint(p.FileMode, 8, 32)
	if err != nil || v > 0o777 {
		return 0, fmt.Errorf("publisher.file_mode '%s' is not an octal permission", p.FileMode)
	}
	return os.FileMode(v), nil
}

// Registry builds the endpoint registry from the configured list, falling
// back to the built-in endpoints.
func (s StreamConfig) Registry() (*endpoint.Registry, error) {
	if len(s.Endpoints) == 0 {
		return endpoint.NewRegistry(endpoint.Defaults())
	}
	eps := make([]endpoint.Endpoint, 0, len(s.Endpoints))
	for _, ec := range s.Endpoints {
		var family endpoint.Family
		if ec.Family != "" {
			f, err := endpoint.ParseFamily(ec.Family)
			if err != nil {
				return nil, err
			}
			family = f
		}
		eps = append(eps, endpoint.Endpoint{URLTemplate: strings.TrimSpace(ec.URL), Family: family})
	}
	return endpoint.NewRegistry(eps)
}

func isValidIP(ip string) bool {
	return net.ParseIP(strings.TrimSpace(ip)) != nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
