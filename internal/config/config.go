package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/uas-ingest/config.yaml",
}

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Validation ValidationConfig `koanf:"validation"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	MQTT       MQTTConfig       `koanf:"mqtt"`
	Tracing    TracingConfig    `koanf:"tracing"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	HTTPPort          string        `koanf:"http_port"`
	GRPCPort          string        `koanf:"grpc_port"` // empty disables gRPC
	MetricsPort       string        `koanf:"metrics_port"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"` // 0 disables
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

type StoreConfig struct {
	Backend     string        `koanf:"backend"` // redis | postgres | sqlite | memory
	ObjectTTL   time.Duration `koanf:"object_ttl"`
	Redis       RedisConfig   `koanf:"redis"`
	PostgresDSN string        `koanf:"postgres_dsn"`
	SQLitePath  string        `koanf:"sqlite_path"`
}

type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

type ValidationConfig struct {
	AllowedSources  []string `koanf:"allowed_sources"`
	SpeedCeiling    float64  `koanf:"speed_ceiling"`
	AllowNullIsland bool     `koanf:"allow_null_island"`
}

type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
}

type MQTTConfig struct {
	BrokerURL   string `koanf:"broker_url"` // empty disables MQTT ingest
	ClientID    string `koanf:"client_id"`
	TopicPrefix string `koanf:"topic_prefix"`
}

type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Exporter    string  `koanf:"exporter"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        "8080",
			GRPCPort:        "50051",
			MetricsPort:     "9000",
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			CORSOrigins:     []string{"*"},
			RateLimitWindow: time.Minute,
		},
		Store: StoreConfig{
			Backend:   BackendRedis,
			ObjectTTL: 24 * time.Hour,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "uas:",
			},
			SQLitePath: "uas-ingest.db",
		},
		Validation: ValidationConfig{
			AllowedSources: []string{"simulator", "example_feeder", "remoteid_device"},
			SpeedCeiling:   200,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientID:    "uas-ingest",
			TopicPrefix: "uas/reports/",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "uas-ingest",
			SampleRatio: 1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers struct defaults, an optional YAML file and environment
// variables, in that order of precedence.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"http_port":           "server.http_port",
	"grpc_port":           "server.grpc_port",
	"metrics_port":        "server.metrics_port",
	"request_timeout":     "server.request_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"max_body_bytes":      "server.max_body_bytes",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",

	"store_backend":    "store.backend",
	"object_ttl":       "store.object_ttl",
	"redis_addr":       "store.redis.addr",
	"redis_password":   "store.redis.password",
	"redis_db":         "store.redis.db",
	"redis_key_prefix": "store.redis.key_prefix",
	"postgres_dsn":     "store.postgres_dsn",
	"sqlite_path":      "store.sqlite_path",

	"allowed_sources":   "validation.allowed_sources",
	"speed_ceiling":     "validation.speed_ceiling",
	"allow_null_island": "validation.allow_null_island",

	"breaker_enabled":           "breaker.enabled",
	"breaker_failure_threshold": "breaker.failure_threshold",
	"breaker_max_requests":      "breaker.max_requests",
	"breaker_interval":          "breaker.interval",
	"breaker_timeout":           "breaker.timeout",

	"mqtt_broker_url":   "mqtt.broker_url",
	"mqtt_client_id":    "mqtt.client_id",
	"mqtt_topic_prefix": "mqtt.topic_prefix",

	"tracing_enabled":      "tracing.enabled",
	"tracing_exporter":     "tracing.exporter",
	"tracing_endpoint":     "tracing.endpoint",
	"tracing_service_name": "tracing.service_name",
	"tracing_sample_ratio": "tracing.sample_ratio",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// envTransformFunc maps known variables onto config keys. Anything else
// returns "" and is skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

var sliceConfigPaths = []string{
	"server.cors_origins",
	"validation.allowed_sources",
}

// processSliceFields splits comma-separated env values for slice keys.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		str, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(str, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if err := validatePort("server.http_port", c.Server.HTTPPort, true); err != nil {
		errs = append(errs, err)
	}
	if err := validatePort("server.grpc_port", c.Server.GRPCPort, false); err != nil {
		errs = append(errs, err)
	}
	if err := validatePort("server.metrics_port", c.Server.MetricsPort, false); err != nil {
		errs = append(errs, err)
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Server.RateLimitRequests < 0 {
		errs = append(errs, errors.New("server.rate_limit_requests must not be negative"))
	}

	switch c.Store.Backend {
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres backend"))
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of redis, postgres, sqlite, memory", c.Store.Backend))
	}
	if c.Store.ObjectTTL <= 0 {
		errs = append(errs, errors.New("store.object_ttl must be positive"))
	}

	if len(c.Validation.AllowedSources) == 0 {
		errs = append(errs, errors.New("validation.allowed_sources must not be empty"))
	}
	if c.Validation.SpeedCeiling <= 0 {
		errs = append(errs, errors.New("validation.speed_ceiling must be positive"))
	}

	if c.Breaker.Enabled && c.Breaker.FailureThreshold == 0 {
		errs = append(errs, errors.New("breaker.failure_threshold must be positive when the breaker is enabled"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be within [0,1]"))
	}

	return errors.Join(errs...)
}

func validatePort(key, port string, required bool) error {
	if port == "" {
		if required {
			return fmt.Errorf("%s is required", key)
		}
		return nil
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("%s %q is not a valid port", key, port)
	}
	return nil
}
