package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything main needs to wire the gateway. Values come from
// the environment so main stays lean.
type Config struct {
	Addr string

	// Manufacturer is the only identity allowed to mint products, fixed at
	// deployment.
	Manufacturer string

	// PostgresURL selects the postgres ledger backend when set; empty means
	// the in-memory ledger (dev/test).
	PostgresURL string

	JWTSigningKey string
	JWTIssuer     string

	Redis RedisConfig
	Kafka KafkaConfig

	// RoleSelectionTTL bounds how long a declared role sticks to an identity.
	RoleSelectionTTL time.Duration
}

// RedisConfig configures the optional role-selection store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional custody-event relay.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	addr := os.Getenv("CHAINTRAIL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default; override in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}
	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "chaintrail"
	}

	topic := os.Getenv("KAFKA_CUSTODY_TOPIC")
	if topic == "" {
		topic = "custody-events"
	}

	return Config{
		Addr:          addr,
		Manufacturer:  os.Getenv("CHAINTRAIL_MANUFACTURER"),
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     jwtIssuer,
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   topic,
		},
		RoleSelectionTTL: envDuration("ROLE_SELECTION_TTL", 24*time.Hour),
	}
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
