package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FirestoreMaxAttachmentBytes keeps an attachment document under Firestore's
// 1 MiB limit with room for its metadata.
const FirestoreMaxAttachmentBytes = 1000 * 1024

// Store drivers.
const (
	DriverMySQL     = "mysql"
	DriverFirestore = "firestore"
	DriverMemory    = "memory"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origin                    string
	Environment               string
	JWTSecret                 string
	JWTRefreshSecret          string
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	ShutdownTimeout           time.Duration
	Store                     StoreConfig
	Log                       LogConfig
	Tracing                   TracingConfig
	RateLimit                 RateLimitConfig
	Attachments               AttachmentConfig
	Bootstrap                 BootstrapConfig
}

// StoreConfig selects and configures the document store backend
type StoreConfig struct {
	Driver    string
	Database  DatabaseConfig
	Firestore FirestoreConfig
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Host            string
	Port            string
	Username        string
	Password        string
	Name            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// FirestoreConfig holds Cloud Firestore connection details
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level  string
	Format string
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

// RateLimitConfig is the per-client request budget
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// AttachmentConfig bounds uploaded files
type AttachmentConfig struct {
	MaxBytes     int64
	AllowedTypes []string
}

// BootstrapConfig seeds an admin account on startup when set
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load database configuration
	dbConfig := DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnv("DB_PORT", "3306"),
		Username:        getEnv("DB_USERNAME", "root"),
		Password:        getEnv("DB_PASSWORD", ""),
		Name:            getEnv("DB_NAME", "pathology"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}

	// Build DSN (Data Source Name) for MySQL connection
	dbConfig.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name)

	jwtExpMinutes, err := strconv.Atoi(getEnv("JWT_EXPIRATION_MINUTES", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION_MINUTES: %w", err)
	}

	jwtRefreshExpHours, err := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168")) // 7 days
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_REFRESH_EXPIRATION_HOURS: %w", err)
	}

	cfg := &Config{
		Port:                      getEnv("PORT", "3001"),
		Origin:                    getEnv("ORIGIN", "http://localhost:4200"),
		Environment:               getEnv("APP_ENV", "development"),
		JWTSecret:                 getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTRefreshSecret:          getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		JWTExpirationMinutes:      jwtExpMinutes,
		JWTRefreshExpirationHours: jwtRefreshExpHours,
		ShutdownTimeout:           getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		Store: StoreConfig{
			Driver:   strings.ToLower(getEnv("STORE_DRIVER", DriverMySQL)),
			Database: dbConfig,
			Firestore: FirestoreConfig{
				ProjectID:       getEnv("FIRESTORE_PROJECT_ID", ""),
				CredentialsFile: getEnv("FIRESTORE_CREDENTIALS_FILE", ""),
			},
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "pathology-records-server"),
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4318"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("RATE_LIMIT_RPS", 20),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 40),
		},
		Attachments: AttachmentConfig{
			// Stored as raw bytes; Firestore caps a document at 1 MiB.
			MaxBytes: int64(getEnvInt("MAX_ATTACHMENT_BYTES", 900*1024)),
			AllowedTypes: getEnvSlice("ALLOWED_ATTACHMENT_TYPES", []string{
				"application/pdf", "image/png", "image/jpeg", "application/dicom",
			}),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
			AdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether cookies may be sent without Secure.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// AccessTokenTTL is the lifetime of an access token.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWTExpirationMinutes) * time.Minute
}

// RefreshTokenTTL is the lifetime of a refresh token.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.JWTRefreshExpirationHours) * time.Hour
}

func validate(cfg *Config) error {
	var errs []string

	switch cfg.Store.Driver {
	case DriverMySQL, DriverMemory:
	case DriverFirestore:
		if cfg.Store.Firestore.ProjectID == "" {
			errs = append(errs, "FIRESTORE_PROJECT_ID is required when STORE_DRIVER=firestore")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown STORE_DRIVER %q", cfg.Store.Driver))
	}

	if cfg.Environment == "production" {
		if len(cfg.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}
		if len(cfg.JWTRefreshSecret) < 32 {
			errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters in production")
		}
	}

	if cfg.Attachments.MaxBytes <= 0 {
		errs = append(errs, "MAX_ATTACHMENT_BYTES must be positive")
	}
	if cfg.Store.Driver == DriverFirestore && cfg.Attachments.MaxBytes > FirestoreMaxAttachmentBytes {
		errs = append(errs, fmt.Sprintf("MAX_ATTACHMENT_BYTES cannot exceed %d with STORE_DRIVER=firestore", FirestoreMaxAttachmentBytes))
	}
	if (cfg.Bootstrap.AdminEmail == "") != (cfg.Bootstrap.AdminPassword == "") {
		errs = append(errs, "BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
