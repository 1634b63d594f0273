package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadConfig reads optional .env files and then the process environment.
// Values already present in the environment win over .env; .env.local wins over both.
func LoadConfig() (Config, error) {
	if err := loadEnvFiles(); err != nil {
		return Config{}, err
	}
	cfg := parseConfig()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func DefaultConfig() Config {
	return Config{
		MaxFileSize:       DefaultMaxFileSize,
		ChunkSize:         DefaultChunkSize,
		MaxRetries:        DefaultMaxRetries,
		DownloadTimeout:   DefaultDownloadTimeout * time.Second,
		ProgressInterval:  time.Duration(DefaultProgressInterval * float64(time.Second)),
		TempDir:           DefaultTempDir,
		LogLevel:          "INFO",
		LogFile:           DefaultLogFile,
		Port:              DefaultPort,
		WebhookPath:       DefaultWebhookPath,
		TelegramFileLimit: TelegramFileLimit,
		HTTP: HTTPClientConfig{
			Timeout:   DefaultDownloadTimeout * time.Second,
			KATimeout: 90 * time.Second,
			UserAgent: ToolUserAgent,
			Headers:   map[string]string{},
		},
	}
}

func (c Config) Validate() error {
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("%w: MAX_FILE_SIZE must be positive, got %d", ErrInvalidConfig, c.MaxFileSize)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: MAX_RETRIES must be at least 1, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("%w: DOWNLOAD_TIMEOUT must be positive", ErrInvalidConfig)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("%w: PROGRESS_UPDATE_INTERVAL must not be negative", ErrInvalidConfig)
	}
	if c.TempDir == "" {
		return fmt.Errorf("%w: TEMP_DIR must not be empty", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: PORT out of range: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// RequireToken is checked only by the bot; local commands run without a token.
func (c Config) RequireToken() error {
	if c.BotToken == "" {
		return ErrMissingToken
	}
	return nil
}

// UsesWebhook reports whether updates are pushed to us instead of polled.
func (c Config) UsesWebhook() bool {
	return c.WebhookURL != ""
}

func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}
	return nil
}

func parseConfig() Config {
	cfg := DefaultConfig()
	cfg.BotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.MaxFileSize = getInt64("MAX_FILE_SIZE", cfg.MaxFileSize)
	cfg.ChunkSize = getInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.MaxRetries = getInt("MAX_RETRIES", cfg.MaxRetries)
	cfg.DownloadTimeout = getSeconds("DOWNLOAD_TIMEOUT", cfg.DownloadTimeout)
	cfg.ProgressInterval = getSeconds("PROGRESS_UPDATE_INTERVAL", cfg.ProgressInterval)
	cfg.TempDir = getEnv("TEMP_DIR", cfg.TempDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.WebhookURL = strings.TrimRight(getEnv("WEBHOOK_URL", ""), "/")
	cfg.Port = getInt("PORT", cfg.Port)
	cfg.WebhookPath = getEnv("WEBHOOK_PATH", cfg.WebhookPath)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")
	cfg.HTTP.Timeout = cfg.DownloadTimeout
	cfg.HTTP.UserAgent = getEnv("HTTP_USER_AGENT", cfg.HTTP.UserAgent)
	cfg.HTTP.ProxyURL = getEnv("HTTP_PROXY_URL", "")
	if !strings.HasPrefix(cfg.WebhookPath, "/") {
		cfg.WebhookPath = "/" + cfg.WebhookPath
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := getEnv(key, ""); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if value := getEnv(key, ""); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getSeconds accepts plain (possibly fractional) seconds or a Go duration string.
func getSeconds(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
