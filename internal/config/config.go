package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for a tracking server instance.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	// No HTTP write timeout: websocket connections outlive any sane value, so
	// writes are bounded per message by WriteDeadline instead.
	HTTPAddr        string
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	// InstanceID tags every relay publish so cross-instance deliveries can be
	// traced back to their origin. Defaults to a random id per process.
	InstanceID string

	// DriverCreatesTrip selects the driver-join policy: when false a driver may
	// only join a trip a user has already created; when true a driver join
	// implicitly creates the trip record.
	DriverCreatesTrip bool

	// DriverUnsubscribeOnDisconnect controls whether a disconnecting driver
	// tears down this instance's relay subscriptions for the trip. Both
	// behaviors exist in the wild, so it stays configurable.
	DriverUnsubscribeOnDisconnect bool

	WriteDeadline time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		KafkaTopic:      "driver-locations",
		InstanceID:      randomInstanceID(),
		WriteDeadline:   5 * time.Second,
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteDeadline, "WS_WRITE_DEADLINE", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setStringFromEnv(&cfg.InstanceID, "SERVER_ID")
	setBoolFromEnv(&cfg.DriverCreatesTrip, "DRIVER_CREATES_TRIP", &errs)
	setBoolFromEnv(&cfg.DriverUnsubscribeOnDisconnect, "DRIVER_UNSUBSCRIBE_ON_DISCONNECT", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.InstanceID == "" {
		errs = append(errs, fmt.Errorf("SERVER_ID must not be blank"))
	}

	return cfg, errors.Join(errs...)
}

func randomInstanceID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "srv-" + hex.EncodeToString(b)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
