package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	// Chain gateway configuration
	GatewayURL string
	PageSize   int
	// Invoice configuration
	InvoicePrefix string
	MosaicFQN     string
	Divisibility  int
	InvoiceTTL    time.Duration
	// Reconciliation configuration
	SweepInterval time.Duration
	SweepTimeout  time.Duration
	// Message secret used to decrypt encrypted transfer messages.
	// Hex encoded 32 bytes; empty disables decryption.
	MessageSecret string
	// Payment bot configuration
	BotURL             string
	ChannelMaxDuration time.Duration

	// Notification configuration
	TelegramBotToken string
	TelegramChatID   string
}

// SecretKey returns the decoded message secret, or nil when decryption
// is disabled.
func (c *Config) SecretKey() []byte {
	if c.MessageSecret == "" {
		return nil
	}
	key, err := hex.DecodeString(c.MessageSecret)
	if err != nil {
		return nil
	}
	return key
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "conciliare"),

		GatewayURL: getEnv("GATEWAY_URL", "http://localhost:7890"),
		PageSize:   getEnvAsInt("PAGE_SIZE", 25),

		InvoicePrefix: getEnv("INVOICE_PREFIX", "INV"),
		MosaicFQN:     getEnv("MOSAIC_FQN", "nem:xem"),
		Divisibility:  getEnvAsInt("DIVISIBILITY", 6),
		InvoiceTTL:    getEnvAsDuration("INVOICE_TTL", 24*time.Hour),

		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		SweepTimeout:  getEnvAsDuration("SWEEP_TIMEOUT", 2*time.Minute),

		MessageSecret: getEnv("MESSAGE_SECRET", ""),

		BotURL:             getEnv("BOT_URL", ""),
		ChannelMaxDuration: getEnvAsDuration("CHANNEL_MAX_DURATION", time.Hour),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		APIPort: getEnvAsInt("API_PORT", 6533),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("GATEWAY_URL is required")
	}

	if c.InvoicePrefix == "" {
		return fmt.Errorf("INVOICE_PREFIX is required")
	}

	if c.MosaicFQN == "" {
		return fmt.Errorf("MOSAIC_FQN is required")
	}

	if c.Divisibility < 0 {
		return fmt.Errorf("DIVISIBILITY must be non-negative")
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive")
	}

	if c.MessageSecret != "" {
		key, err := hex.DecodeString(c.MessageSecret)
		if err != nil {
			return fmt.Errorf("invalid MESSAGE_SECRET format: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("MESSAGE_SECRET must be 32 bytes, got %d", len(key))
		}
	}

	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
