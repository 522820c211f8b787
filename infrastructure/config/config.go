package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion    string
	AWSAccountID string
	Namespace    string

	// Storage configuration
	ExportBucket string
	JobsTable    string
	EventBusName string

	// Rate limiting (requests per second against the remote API)
	RateLimitGeneral     float64
	RateLimitPermissions float64

	// Export tuning
	BatchSize      int
	MaxConcurrency int

	// Lambda configuration
	IsLambda           bool
	LambdaFunctionName string

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Feature flags
	EnableMetrics bool
	EnableTracing bool
	EnableCORS    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
		AWSAccountID:  getEnv("AWS_ACCOUNT_ID", ""),
		Namespace:     getEnv("QUICKSIGHT_NAMESPACE", "default"),

		ExportBucket: getEnv("EXPORT_BUCKET", ""),
		JobsTable:    getEnv("JOBS_TABLE", "qsportal-jobs"),
		EventBusName: getEnv("EVENT_BUS_NAME", "qsportal-events"),

		RateLimitGeneral:     getEnvFloat("RATE_LIMIT_GENERAL", 5),
		RateLimitPermissions: getEnvFloat("RATE_LIMIT_PERMISSIONS", 2),

		BatchSize:      getEnvInt("EXPORT_BATCH_SIZE", 10),
		MaxConcurrency: getEnvInt("EXPORT_MAX_CONCURRENCY", 5),

		// Lambda configuration
		IsLambda:           getEnvBool("IS_LAMBDA", false),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),

		// Authentication
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "qsportal-backend"),

		// Logging and features
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig for backwards compatibility
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.AWSAccountID == "" {
		return fmt.Errorf("AWS_ACCOUNT_ID is required")
	}
	if c.ExportBucket == "" {
		return fmt.Errorf("EXPORT_BUCKET is required")
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitPermissions <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.JobsTable == "" {
			return fmt.Errorf("JOBS_TABLE is required")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
