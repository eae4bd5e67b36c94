package config

import (
	"os"
	"strconv"
	"time"
)

// Config aggregates per-subsystem configuration. FromEnv builds it from
// environment variables so main stays lean.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Kiosk    KioskConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr          string
	JWTSigningKey string
}

// PostgresConfig captures the durable store connection. An empty DSN
// means in-memory stores (development and unit-test wiring).
type PostgresConfig struct {
	DSN string
}

// RedisConfig captures the cache/pub-sub connection. An empty URL means
// Redis is not configured and the in-process fallbacks are used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig captures the attendance journal fan-out. Empty brokers
// disable publishing; the journal then only persists locally.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KioskConfig tunes the unattended scanner adapter.
type KioskConfig struct {
	DisplayWindow   time.Duration
	RefreshInterval time.Duration
}

// RuleCacheTTL bounds staleness of cached daily rules; rules change only
// through the external config UI, so a short TTL is enough.
var RuleCacheTTL = 5 * time.Minute

// FromEnv builds the full configuration from environment variables,
// with development defaults for everything but secrets-in-production.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Addr:          envOr("PRESENZA_ADDR", ":8080"),
			JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_JOURNAL_TOPIC", "presenza.attendance.journal"),
		},
		Kiosk: KioskConfig{
			DisplayWindow:   envDurationOr("KIOSK_DISPLAY_WINDOW", 3*time.Second),
			RefreshInterval: envDurationOr("PROJECTOR_REFRESH_INTERVAL", 15*time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(csv string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if part := csv[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
