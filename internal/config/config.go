package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultOrigin                     = "ps.pndsn.com"
	DefaultNonSubscribeRequestTimeout = 10 * time.Second
	DefaultConnectTimeout             = 10 * time.Second
)

// PubNub holds the keyset and client settings every REST operation reads.
type PubNub struct {
	SubscribeKey               string
	AuthKey                    string
	UUID                       string
	Origin                     string
	Secure                     bool
	NonSubscribeRequestTimeout time.Duration
	ConnectTimeout             time.Duration
}

// BaseURL returns the scheme and host requests are sent to. An origin that
// already carries a scheme is used as is.
func (p PubNub) BaseURL() string {
	origin := p.Origin
	if origin == "" {
		origin = DefaultOrigin
	}
	if strings.Contains(origin, "://") {
		return strings.TrimRight(origin, "/")
	}
	scheme := "http"
	if p.Secure {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimRight(origin, "/")
}

// Config holds registrar service configuration loaded from the environment.
type Config struct {
	AppName             string
	LogLevel            string
	LogFormat           string
	HTTPPort            string
	RabbitURL           string
	RegistrationQueue   string
	DeadLetterQueue     string
	Exchange            string
	RoutingKey          string
	MaxDeliveries       int
	PrefetchCount       int
	WorkerCount         int
	DatabaseURL         string
	RedisURL            string
	StatusTable         string
	RegistrationTTL     time.Duration
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	PubNub              PubNub
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:             getEnv("APP_NAME", "push_registrar"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
		HTTPPort:            getEnv("HTTP_PORT", "8083"),
		RabbitURL:           getEnv("RABBITMQ_URL", ""),
		RegistrationQueue:   getEnv("REGISTRATION_QUEUE", "push.registrations"),
		DeadLetterQueue:     getEnv("REGISTRATION_DLQ", "push.registrations.failed"),
		Exchange:            getEnv("REGISTRATION_EXCHANGE", "notifications.direct"),
		RoutingKey:          getEnv("REGISTRATION_ROUTING_KEY", "push.register"),
		MaxDeliveries:       getEnvAsInt("REGISTRATION_MAX_DELIVERIES", 5),
		PrefetchCount:       getEnvAsInt("REGISTRATION_PREFETCH", 50),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 5),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		StatusTable:         getEnv("STATUS_TABLE", "push_registrations"),
		RegistrationTTL:     getEnvAsDuration("REGISTRATION_TTL", 12*time.Hour),
		RetryMaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff: getEnvAsDuration("RETRY_INITIAL_BACKOFF", 500*time.Millisecond),
		RetryMaxBackoff:     getEnvAsDuration("RETRY_MAX_BACKOFF", 10*time.Second),
		PubNub: PubNub{
			SubscribeKey:               getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
			AuthKey:                    getEnv("PUBNUB_AUTH_KEY", ""),
			UUID:                       getEnv("PUBNUB_UUID", ""),
			Origin:                     getEnv("PUBNUB_ORIGIN", DefaultOrigin),
			Secure:                     getEnvAsBool("PUBNUB_SECURE", true),
			NonSubscribeRequestTimeout: getEnvAsDuration("PUBNUB_REQUEST_TIMEOUT", DefaultNonSubscribeRequestTimeout),
			ConnectTimeout:             getEnvAsDuration("PUBNUB_CONNECT_TIMEOUT", DefaultConnectTimeout),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.PubNub.SubscribeKey == "" {
		missing = append(missing, "PUBNUB_SUBSCRIBE_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid bool for %s, using default %t: %v", key, def, err)
			return def
		}
		return b
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
