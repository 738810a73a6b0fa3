// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	masterminds "github.com/Masterminds/semver/v3"
	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds packetd configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"packetd"`

	// Subjects and sessions
	SubjectPrefix      string        `envconfig:"PACKET_SUBJECT_PREFIX" default:"packet.v1"`
	RequestTimeout     time.Duration `envconfig:"PACKET_REQUEST_TIMEOUT" default:"5s"`
	SessionIdleTimeout time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"2m"`
	SessionQueueSize   int           `envconfig:"SESSION_QUEUE_SIZE" default:"64"`

	// Protocol negotiation for the hello route
	ProtocolVersion    string `envconfig:"PROTOCOL_VERSION" default:"1.2.0"`
	ProtocolConstraint string `envconfig:"PROTOCOL_CONSTRAINT" default:">=1.0.0, <2.0.0"`

	// Database (empty disables the session journal)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// JournalEnabled reports whether sessions are journaled to Postgres.
func (c *Config) JournalEnabled() bool {
	return c.DatabaseURL != ""
}

// ValidateForServe checks required config when running the packet server.
func (c *Config) ValidateForServe() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - PACKET_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.SessionIdleTimeout < 0 {
		return fmt.Errorf("%s - SESSION_IDLE_TIMEOUT must not be negative", logPrefix)
	}
	if c.SessionQueueSize <= 0 {
		return fmt.Errorf("%s - SESSION_QUEUE_SIZE must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if _, err := masterminds.NewVersion(c.ProtocolVersion); err != nil {
		return fmt.Errorf("%s - PROTOCOL_VERSION %q: %w", logPrefix, c.ProtocolVersion, err)
	}
	if _, err := masterminds.NewConstraint(c.ProtocolConstraint); err != nil {
		return fmt.Errorf("%s - PROTOCOL_CONSTRAINT %q: %w", logPrefix, c.ProtocolConstraint, err)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
