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

const (
	StorageMemory  = "memory"
	StorageMongoDB = "mongodb"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	Auth      AuthConfig
	Stock     StockConfig
	Mail      MailConfig
	Sheets    SheetsConfig
	Scheduler SchedulerConfig
	LogLevel  string
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Driver string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI          string
	DBName       string
	Transactions bool
}

// AuthConfig holds the secret shared with the token issuer.
type AuthConfig struct {
	JWTSecret string
}

// StockConfig tunes the stock engine.
type StockConfig struct {
	Timezone    string
	Retries     int
	HookTimeout time.Duration
}

// MailConfig configures the sale notification email. Empty URL disables it.
type MailConfig struct {
	APIURL string
	APIKey string
	From   string
	To     []string
}

// Enabled reports whether sale emails should be sent.
func (m MailConfig) Enabled() bool { return m.APIURL != "" }

// SheetsConfig contains configuration required to interact with Google Sheets.
// Empty SpreadsheetID disables the export.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	SalesRange      string
}

// Enabled reports whether sales should be appended to a sheet.
func (s SheetsConfig) Enabled() bool { return s.SpreadsheetID != "" }

// SchedulerConfig holds the nightly job schedule.
type SchedulerConfig struct {
	Enabled      bool
	CronSchedule string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	retries, err := getenvInt("STOCK_STORAGE_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	hookTimeout, err := getenvDuration("SALE_HOOK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	transactions, err := getenvBool("MONGODB_TRANSACTIONS", true)
	if err != nil {
		return nil, err
	}
	schedulerEnabled, err := getenvBool("SCHEDULER_ENABLED", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Storage: StorageConfig{
			Driver: getenvWithDefault("STORAGE_DRIVER", StorageMongoDB),
		},
		MongoDB: MongoDBConfig{
			URI:          os.Getenv("MONGODB_URI"),
			DBName:       getenvWithDefault("MONGODB_DB_NAME", "stockbook"),
			Transactions: transactions,
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Stock: StockConfig{
			Timezone:    getenvWithDefault("TIMEZONE", "Asia/Kolkata"),
			Retries:     retries,
			HookTimeout: hookTimeout,
		},
		Mail: MailConfig{
			APIURL: os.Getenv("MAIL_API_URL"),
			APIKey: os.Getenv("MAIL_API_KEY"),
			From:   os.Getenv("MAIL_FROM"),
			To:     splitList(os.Getenv("MAIL_TO")),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
			SalesRange:      getenvWithDefault("GOOGLE_SHEET_SALES_RANGE", "Sales!A:J"),
		},
		Scheduler: SchedulerConfig{
			Enabled:      schedulerEnabled,
			CronSchedule: getenvWithDefault("CLOSING_CRON", "5 0 * * *"),
		},
		LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET must be provided")
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must not be empty")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageMemory, StorageMongoDB, c.Storage.Driver)
	}

	if _, err := time.LoadLocation(c.Stock.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q is invalid: %w", c.Stock.Timezone, err)
	}

	if c.Stock.Retries < 1 {
		return errors.New("STOCK_STORAGE_RETRIES must be at least 1")
	}

	if c.Mail.Enabled() {
		if c.Mail.From == "" {
			return errors.New("MAIL_FROM must be provided when MAIL_API_URL is set")
		}
		if len(c.Mail.To) == 0 {
			return errors.New("MAIL_TO must be provided when MAIL_API_URL is set")
		}
	}

	if c.Sheets.Enabled() && c.Sheets.CredentialsPath == "" {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH must be provided when GOOGLE_SHEET_DATABASE_ID is set")
	}

	if c.Scheduler.Enabled && c.Scheduler.CronSchedule == "" {
		return errors.New("CLOSING_CRON must be provided")
	}

	return nil
}

// Location returns the loaded stock timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Stock.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
