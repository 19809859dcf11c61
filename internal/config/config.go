package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"finbot/internal/storage"
)

// DefaultDashboardURL is the hosted dashboard the /painel command links to.
const DefaultDashboardURL = "https://dashboard-financeiro-3l8yw3xux3u4iztqermk3v.streamlit.app/"

type Config struct {
	// Telegram
	TelegramToken       string
	TelegramPollTimeout int
	TelegramDebug       bool
	ChatRateLimit       int

	// Database
	DatabaseURL string

	// Bot behavior
	DashboardURL      string
	Timezone          string
	SummaryWindowDays int
	RecentLimit       int
	FlowTimeout       time.Duration

	// Scheduler
	WeeklyDigestCron   string
	MonthlyBalanceCron string

	// HTTP health server, disabled when empty
	HealthAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// AMQP ledger events, disabled when URL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror (worker), in-memory when the spreadsheet is unset
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

func Load() *Config {
	cfg := &Config{
		TelegramToken:       getEnv("TELEGRAM_TOKEN", ""),
		TelegramPollTimeout: getEnvInt("TELEGRAM_POLL_TIMEOUT", 60),
		TelegramDebug:       getEnvBool("TELEGRAM_DEBUG", false),
		ChatRateLimit:       getEnvInt("CHAT_RATE_LIMIT", 30),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		DashboardURL:      getEnv("DASHBOARD_URL", DefaultDashboardURL),
		Timezone:          getEnv("BOT_TIMEZONE", "America/Sao_Paulo"),
		SummaryWindowDays: getEnvInt("SUMMARY_WINDOW_DAYS", 7),
		RecentLimit:       getEnvInt("RECENT_LIMIT", 5),
		FlowTimeout:       getEnvDuration("FLOW_TIMEOUT", 10*time.Minute),

		WeeklyDigestCron:   getEnv("WEEKLY_DIGEST_CRON", "0 8 * * MON"),
		MonthlyBalanceCron: getEnv("MONTHLY_BALANCE_CRON", "0 8 1 * *"),

		HealthAddr: getEnv("HEALTH_ADDR", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finbot"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transacoes"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
	}

	return cfg
}

// Location resolves the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks settings shared by every binary and returns an error
// listing all problems found.
func (c *Config) Validate() error {
	return joinErrors(c.validateCommon())
}

// ValidateBot validates the configuration needed by the chat bot.
func (c *Config) ValidateBot() error {
	errors := c.validateCommon()

	if strings.TrimSpace(c.TelegramToken) == "" {
		errors = append(errors, "TELEGRAM_TOKEN is required")
	}
	if c.TelegramPollTimeout < 0 || c.TelegramPollTimeout > 600 {
		errors = append(errors, fmt.Sprintf("invalid telegram poll timeout %d: must be between 0 and 600 seconds", c.TelegramPollTimeout))
	}
	if c.ChatRateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid chat rate limit %d: must be zero (disabled) or positive", c.ChatRateLimit))
	}

	if c.DashboardURL != "" {
		if u, err := url.Parse(c.DashboardURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid dashboard URL '%s': must be an http(s) URL", c.DashboardURL))
		}
	}

	if c.SummaryWindowDays < 1 || c.SummaryWindowDays > 366 {
		errors = append(errors, fmt.Sprintf("invalid summary window %d: must be between 1 and 366 days", c.SummaryWindowDays))
	}
	if c.RecentLimit < 1 || c.RecentLimit > 50 {
		errors = append(errors, fmt.Sprintf("invalid recent limit %d: must be between 1 and 50", c.RecentLimit))
	}
	if c.FlowTimeout < time.Minute || c.FlowTimeout > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid flow timeout %v: must be between 1 minute and 24 hours", c.FlowTimeout))
	}

	for name, spec := range map[string]string{
		"WEEKLY_DIGEST_CRON":   c.WeeklyDigestCron,
		"MONTHLY_BALANCE_CRON": c.MonthlyBalanceCron,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s '%s': %v", name, spec, err))
		}
	}

	return joinErrors(errors)
}

// ValidateWorker validates the configuration needed by the sheets mirror worker.
func (c *Config) ValidateWorker() error {
	errors := c.validateCommon()

	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	if c.GoogleSpreadsheetID != "" {
		if strings.TrimSpace(c.GoogleSheetName) == "" {
			errors = append(errors, "GOOGLE_SHEET_NAME cannot be empty")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "one of GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS is required when GOOGLE_SPREADSHEET_ID is set")
		}
	}

	return joinErrors(errors)
}

func (c *Config) validateCommon() []string {
	var errors []string

	if strings.TrimSpace(c.DatabaseURL) == "" {
		errors = append(errors, "DATABASE_URL is required")
	} else if _, _, err := storage.ParseDSN(c.DatabaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid DATABASE_URL: %v", err))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	return errors
}

func joinErrors(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
