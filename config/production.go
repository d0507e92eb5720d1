// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/valzstore/topup-engine/utils"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database     DatabaseConfig     `json:"database"`
	Server       ServerConfig       `json:"server"`
	Security     SecurityConfig     `json:"security"`
	JWT          JWTConfig          `json:"jwt"`
	Gateway      GatewayConfig      `json:"gateway"`
	Ledger       LedgerConfig       `json:"ledger"`
	Notification NotificationConfig `json:"notification"`
	Deposit      DepositConfig      `json:"deposit"`
	OTP          OTPConfig          `json:"otp"`
	Logging      LoggingConfig      `json:"logging"`
	Metrics      MetricsConfig      `json:"metrics"`
	Cache        CacheConfig        `json:"cache"`
	Admin        AdminConfig        `json:"admin"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	TrustedProxies  []string      `json:"trusted_proxies"`
	ProxyHeader     string        `json:"proxy_header"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per window
	RateLimitWindow time.Duration `json:"rate_limit_window"`
}

type JWTConfig struct {
	SecretKey      string        `json:"secret_key"`
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	Issuer         string        `json:"issuer"`
}

type GatewayConfig struct {
	BaseURL     string        `json:"base_url"`
	APIKey      string        `json:"api_key"`
	MerchantID  string        `json:"merchant_id"`
	MerchantKey string        `json:"merchant_key"`
	StaticQRIS  string        `json:"static_qris"`
	Timeout     time.Duration `json:"timeout"`
}

type LedgerConfig struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"api_key"`
	Timeout time.Duration `json:"timeout"`
}

type NotificationConfig struct {
	WebhookURL  string        `json:"webhook_url"`
	MaxAttempts int           `json:"max_attempts"`
	Timeout     time.Duration `json:"timeout"`
}

type DepositConfig struct {
	MinAmount  uint64        `json:"min_amount"`  // Smallest accepted top-up, in Rupiah
	FeeMin     uint64        `json:"fee_min"`     // Inclusive lower bound of the randomized fee
	FeeMax     uint64        `json:"fee_max"`     // Inclusive upper bound of the randomized fee
	RequestTTL time.Duration `json:"request_ttl"` // Settlement deadline per request

	PollInterval    time.Duration `json:"poll_interval"`     // Cadence of reconciliation cycles
	PollWindow      time.Duration `json:"poll_window"`       // How far back gateway transactions are fetched
	PollMaxAttempts int           `json:"poll_max_attempts"` // Bounded retries per cycle on gateway failure
	PollBackoff     time.Duration `json:"poll_backoff"`      // Base delay between those retries
}

type OTPConfig struct {
	CodeLength int           `json:"code_length"`
	TTL        time.Duration `json:"ttl"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	RedisURL    string `json:"redis_url"`
	RedisDB     int    `json:"redis_db"`
	RedisPrefix string `json:"redis_prefix"`
}

type AdminConfig struct {
	Subject  string        `json:"subject"`
	TokenTTL time.Duration `json:"token_ttl"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1*1024*1024), // 1MB
			TrustedProxies:  getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
		},
		Security: SecurityConfig{
			AllowedOrigins:   getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://valzstore.my.id", "https://dash.valzstore.my.id"}),
			AllowedMethods:   getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			CORSMaxAge:       getEnvInt("CORS_MAX_AGE", 86400),
			GlobalRateLimit:  getEnvInt("GLOBAL_RATE_LIMIT", 1000),
			RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
		JWT: JWTConfig{
			SecretKey:      getEnvString("JWT_SECRET_KEY", ""),
			AccessTokenTTL: getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			Issuer:         getEnvString("JWT_ISSUER", "topup-engine"),
		},
		Gateway: GatewayConfig{
			BaseURL:     getEnvString("GATEWAY_BASE_URL", "https://api.jkt48connect.my.id"),
			APIKey:      getEnvString("GATEWAY_API_KEY", ""),
			MerchantID:  getEnvString("GATEWAY_MERCHANT_ID", ""),
			MerchantKey: getEnvString("GATEWAY_MERCHANT_KEY", ""),
			StaticQRIS:  getEnvString("GATEWAY_STATIC_QRIS", ""),
			Timeout:     getEnvDuration("GATEWAY_TIMEOUT", 15*time.Second),
		},
		Ledger: LedgerConfig{
			BaseURL: getEnvString("LEDGER_BASE_URL", ""),
			APIKey:  getEnvString("LEDGER_API_KEY", ""),
			Timeout: getEnvDuration("LEDGER_TIMEOUT", 10*time.Second),
		},
		Notification: NotificationConfig{
			WebhookURL:  getEnvString("NOTIFICATION_WEBHOOK_URL", ""),
			MaxAttempts: getEnvInt("NOTIFICATION_MAX_ATTEMPTS", 3),
			Timeout:     getEnvDuration("NOTIFICATION_TIMEOUT", 10*time.Second),
		},
		Deposit: DepositConfig{
			MinAmount:       getEnvUint64("DEPOSIT_MIN_AMOUNT", utils.MinDepositAmount),
			FeeMin:          getEnvUint64("DEPOSIT_FEE_MIN", 10),
			FeeMax:          getEnvUint64("DEPOSIT_FEE_MAX", 50),
			RequestTTL:      getEnvDuration("DEPOSIT_REQUEST_TTL", utils.DepositRequestTTL),
			PollInterval:    getEnvDuration("DEPOSIT_POLL_INTERVAL", 15*time.Second),
			PollWindow:      getEnvDuration("DEPOSIT_POLL_WINDOW", 30*time.Minute),
			PollMaxAttempts: getEnvInt("DEPOSIT_POLL_MAX_ATTEMPTS", 3),
			PollBackoff:     getEnvDuration("DEPOSIT_POLL_BACKOFF", 2*time.Second),
		},
		OTP: OTPConfig{
			CodeLength: getEnvInt("OTP_CODE_LENGTH", utils.OTPCodeLength),
			TTL:        getEnvDuration("OTP_TTL", utils.OTPExpiry),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Output:     getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/topup-engine/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "topup:"),
		},
		Admin: AdminConfig{
			Subject:  getEnvString("ADMIN_SUBJECT", "ops"),
			TokenTTL: getEnvDuration("ADMIN_TOKEN_TTL", 12*time.Hour),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate JWT configuration
	if cfg.JWT.SecretKey == "" {
		errors = append(errors, "JWT_SECRET_KEY is required")
	}
	if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWT.Issuer == "" {
		errors = append(errors, "JWT_ISSUER is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate gateway configuration
	if cfg.Gateway.BaseURL == "" {
		errors = append(errors, "GATEWAY_BASE_URL is required")
	}
	if cfg.Gateway.APIKey == "" {
		errors = append(errors, "GATEWAY_API_KEY is required")
	}
	if cfg.Gateway.MerchantID == "" {
		errors = append(errors, "GATEWAY_MERCHANT_ID is required")
	}
	if cfg.Gateway.MerchantKey == "" {
		errors = append(errors, "GATEWAY_MERCHANT_KEY is required")
	}
	if cfg.Gateway.StaticQRIS == "" {
		errors = append(errors, "GATEWAY_STATIC_QRIS is required")
	}

	// Validate ledger configuration
	if cfg.Ledger.BaseURL == "" {
		errors = append(errors, "LEDGER_BASE_URL is required")
	}

	// Validate deposit configuration
	if cfg.Deposit.MinAmount == 0 {
		errors = append(errors, "DEPOSIT_MIN_AMOUNT must be positive")
	}
	if cfg.Deposit.FeeMin > cfg.Deposit.FeeMax {
		errors = append(errors, "DEPOSIT_FEE_MIN must not exceed DEPOSIT_FEE_MAX")
	}
	if cfg.Deposit.RequestTTL <= 0 {
		errors = append(errors, "DEPOSIT_REQUEST_TTL must be positive")
	}
	if cfg.Deposit.PollInterval <= 0 {
		errors = append(errors, "DEPOSIT_POLL_INTERVAL must be positive")
	}
	if cfg.Deposit.PollMaxAttempts <= 0 {
		errors = append(errors, "DEPOSIT_POLL_MAX_ATTEMPTS must be positive")
	}

	// Validate OTP configuration
	if cfg.OTP.CodeLength < 4 || cfg.OTP.CodeLength > 10 {
		errors = append(errors, "OTP_CODE_LENGTH must be between 4 and 10")
	}
	if cfg.OTP.TTL <= 0 {
		errors = append(errors, "OTP_TTL must be positive")
	}

	// Validate cache configuration
	if cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
