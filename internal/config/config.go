package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Email        EmailConfig
	Verification VerificationConfig
	RateLimit    RateLimitConfig
}

type ServerConfig struct {
	Port            string
	Env             string // dev or prod
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedOrigins  []string // CORS allowed origins
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	QueryTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPSecure   bool // implicit TLS (port 465 style) instead of STARTTLS
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	Timeout      time.Duration
}

// VerificationConfig controls the verification code lifecycle.
// Zero values keep codes valid forever and allow unlimited guesses.
type VerificationConfig struct {
	CodeTTL     time.Duration
	MaxAttempts int
}

type RateLimitConfig struct {
	Requests       int
	Window         time.Duration
	ResendCooldown time.Duration
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	smtpUser := getEnv("SMTP_USER", getEnv("EMAIL_USER", ""))

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("APP_ENV", "dev"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedOrigins:  getSliceEnv("TRUSTED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			DBName:       getEnv("DB_NAME", "sercop"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			QueryTimeout: getDurationEnv("DB_QUERY_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", getEnv("SMTP_GMAIL_HOST", "")),
			SMTPPort:     getEnv("SMTP_PORT", getEnv("SMTP_GMAIL_PORT", "587")),
			SMTPSecure:   getBoolEnv("SMTP_SECURE", getBoolEnv("SMTP_GMAIL_SECURE", false)),
			SMTPUser:     smtpUser,
			SMTPPassword: getEnv("SMTP_PASS", getEnv("EMAIL_PASSWORD", "")),
			FromAddress:  getEnv("SMTP_FROM", smtpUser),
			Timeout:      getDurationEnv("SMTP_TIMEOUT", 10*time.Second),
		},
		Verification: VerificationConfig{
			CodeTTL:     getDurationEnv("VERIFICATION_CODE_TTL", 0),
			MaxAttempts: getIntEnv("VERIFICATION_MAX_ATTEMPTS", 0),
		},
		RateLimit: RateLimitConfig{
			Requests:       getIntEnv("RATE_LIMIT_REQUESTS", 20),
			Window:         getDurationEnv("RATE_LIMIT_WINDOW", 15*time.Minute),
			ResendCooldown: getDurationEnv("RESEND_COOLDOWN", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT must not be empty"))
	}
	if c.Database.QueryTimeout <= 0 {
		errs = append(errs, errors.New("DB_QUERY_TIMEOUT must be positive"))
	}
	if c.Email.Timeout <= 0 {
		errs = append(errs, errors.New("SMTP_TIMEOUT must be positive"))
	}
	if c.Verification.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("VERIFICATION_MAX_ATTEMPTS must be >= 0, got %d", c.Verification.MaxAttempts))
	}
	if c.Verification.CodeTTL < 0 {
		errs = append(errs, errors.New("VERIFICATION_CODE_TTL must be >= 0"))
	}
	if c.RateLimit.Requests < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REQUESTS must be >= 0, got %d", c.RateLimit.Requests))
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive when rate limiting is enabled"))
	}

	return errors.Join(errs...)
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Address returns SMTP connection address (host:port)
func (c *EmailConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.SMTPHost, c.SMTPPort)
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolValue
}

// getDurationEnv reads a whole number of seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	seconds, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return time.Duration(seconds) * time.Second
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
