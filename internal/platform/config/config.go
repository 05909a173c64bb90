// Package config builds runtime configuration from environment variables
// so main stays lean. Every knob has a development-friendly default;
// production deployments override through ENROLL_* variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "enroll/pkg/platform/strings"
)

// Config carries everything the process needs at startup.
type Config struct {
	// HTTPAddr is the admin API listen address.
	HTTPAddr string

	// PostgresDSN is the relational store connection string. Empty keeps
	// members in memory, which suits local development.
	PostgresDSN string

	// SheetPath is the CSV sheet location.
	SheetPath string

	// UploadDir is where onboarding attachments land.
	UploadDir string

	// RedisURL enables Redis-backed flood control when set.
	RedisURL string

	// KafkaBrokers enables the Kafka audit sink when non-empty.
	KafkaBrokers []string
	AuditTopic   string

	// JWTSigningKey signs admin API access tokens.
	JWTSigningKey string

	// AdminPasswordHash is the bcrypt hash checked by POST /auth/token.
	// Empty disables the token endpoint entirely.
	AdminPasswordHash string

	// SessionTTL and SweepInterval govern the idle-session sweeper.
	SessionTTL    time.Duration
	SweepInterval time.Duration

	// FloodLimit messages per FloodWindow per user before the bot goes
	// quiet on them.
	FloodLimit  int
	FloodWindow time.Duration
}

// FromEnv reads the full configuration from the environment.
func FromEnv() Config {
	return Config{
		HTTPAddr:          getenv("ENROLL_HTTP_ADDR", ":8080"),
		PostgresDSN:       os.Getenv("ENROLL_POSTGRES_DSN"),
		SheetPath:         getenv("ENROLL_SHEET_PATH", "registration_data.csv"),
		UploadDir:         getenv("ENROLL_UPLOAD_DIR", "uploads"),
		RedisURL:          os.Getenv("ENROLL_REDIS_URL"),
		KafkaBrokers:      splitList(os.Getenv("ENROLL_KAFKA_BROKERS")),
		AuditTopic:        getenv("ENROLL_AUDIT_TOPIC", "enroll.audit"),
		JWTSigningKey:     getenv("ENROLL_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AdminPasswordHash: os.Getenv("ENROLL_ADMIN_PASSWORD_HASH"),
		SessionTTL:        getduration("ENROLL_SESSION_TTL", 30*time.Minute),
		SweepInterval:     getduration("ENROLL_SWEEP_INTERVAL", time.Minute),
		FloodLimit:        getint("ENROLL_FLOOD_LIMIT", 10),
		FloodWindow:       getduration("ENROLL_FLOOD_WINDOW", 10*time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return pstrings.DedupeAndTrim(strings.Split(v, ","))
}
