// Package config provides configuration management for the application
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Auth modes for the signaling handshake
const (
	AuthModeNone          = "none"
	AuthModeJWT           = "jwt"
	AuthModeIntrospection = "introspection"
)

func init() {
	// Environment variables always win over values from a config file
	viper.AutomaticEnv()
}

// LoadFile merges settings from a config file (yaml, json, toml or .env style).
// Keys in the file use the same names as the environment variables.
func LoadFile(path string) error {
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// RedisConfig holds Redis/Valkey configuration
type RedisConfig struct {
	// URI is prioritized if provided, otherwise individual connection parameters are used
	URI       string
	Host      string
	Port      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	// TTL for appointment documents (0 means no expiration)
	AppointmentTTL time.Duration
}

// StoreConfig selects and configures the appointment store backend
type StoreConfig struct {
	Backend     string
	Redis       RedisConfig
	PostgresURL string
}

// SessionConfig holds the consultation room rules
type SessionConfig struct {
	// Window is how long after the scheduled slot the room may be joined
	Window        time.Duration
	JoinTimeout   time.Duration
	Location      *time.Location
	SweepEnabled  bool
	SweepInterval time.Duration
	// Inbound signaling message budget per connection
	MessagesPerSecond float64
	MessageBurst      int
	AllowedOrigins    []string
}

// AuthConfig holds credential verification settings for the signaling handshake
type AuthConfig struct {
	Mode                  string
	JWTSecret             string
	IntrospectionEndpoint string
	// Identity provider named in introspection requests
	IdentityProvider string
}

// GetServerConfig loads listener configuration
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// GetRedisConfig loads Redis/Valkey configuration from environment variables
func GetRedisConfig() RedisConfig {
	ttlHours := getEnvInt("REDIS_APPOINTMENT_TTL_HOURS", 720) // Default 30 days

	return RedisConfig{
		URI:            getEnv("REDIS_URI", ""),
		Host:           getEnv("REDIS_HOST", "localhost"),
		Port:           getEnv("REDIS_PORT", "6379"),
		Username:       getEnv("REDIS_USERNAME", ""),
		Password:       getEnv("REDIS_PASSWORD", ""),
		DB:             getEnvInt("REDIS_DB", 0),
		KeyPrefix:      getEnv("REDIS_KEY_PREFIX", "telecoord:"),
		AppointmentTTL: time.Duration(ttlHours) * time.Hour,
	}
}

// GetStoreConfig loads the appointment store configuration
func GetStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:     strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		Redis:       GetRedisConfig(),
		PostgresURL: getEnv("DATABASE_URL", ""),
	}
}

// GetSessionConfig loads consultation room settings.
// An unknown SESSION_TIMEZONE falls back to the local zone.
func GetSessionConfig() SessionConfig {
	loc := time.Local
	if name := getEnv("SESSION_TIMEZONE", ""); name != "" {
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		}
	}

	rps, err := strconv.ParseFloat(getEnv("SIGNAL_RATE_PER_SECOND", "20"), 64)
	if err != nil || rps <= 0 {
		rps = 20
	}

	return SessionConfig{
		Window:            getEnvDuration("SESSION_WINDOW", 30*time.Minute),
		JoinTimeout:       getEnvDuration("JOIN_TIMEOUT", 10*time.Second),
		Location:          loc,
		SweepEnabled:      getEnvBool("SWEEP_ENABLED", true),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", time.Minute),
		MessagesPerSecond: rps,
		MessageBurst:      getEnvInt("SIGNAL_RATE_BURST", 40),
		AllowedOrigins:    getEnvList("ALLOWED_ORIGINS"),
	}
}

// GetAuthConfig loads credential verification settings
func GetAuthConfig() AuthConfig {
	return AuthConfig{
		Mode:                  strings.ToLower(getEnv("AUTH_MODE", AuthModeNone)),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		IntrospectionEndpoint: getEnv("TOKEN_INTROSPECTION_ENDPOINT", ""),
		IdentityProvider:      getEnv("TOKEN_IDENTITY_PROVIDER", "azuread"),
	}
}

// Validate checks that the selected mode has what it needs
func (c AuthConfig) Validate() error {
	switch c.Mode {
	case AuthModeNone:
		return nil
	case AuthModeJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("AUTH_MODE=jwt requires JWT_SECRET")
		}
		return nil
	case AuthModeIntrospection:
		if c.IntrospectionEndpoint == "" {
			return fmt.Errorf("AUTH_MODE=introspection requires TOKEN_INTROSPECTION_ENDPOINT")
		}
		return nil
	}
	return fmt.Errorf("unknown AUTH_MODE %q", c.Mode)
}

// getEnv retrieves a setting or returns a default value
func getEnv(key, defaultValue string) string {
	value := viper.GetString(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool retrieves a boolean setting
func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go durations ("45s", "30m")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getEnvList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
