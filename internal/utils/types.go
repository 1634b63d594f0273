package utils

import "time"

// HTTPClientConfig configures RelayHTTPClient. ReadTimeout and WriteTimeout bound each
// socket read or write; when either is set, Timeout is only applied if given explicitly.
type HTTPClientConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
}

// Config is built once at startup and handed to every component by value.
type Config struct {
	BotToken          string
	MaxFileSize       int64
	ChunkSize         int
	MaxRetries        int
	DownloadTimeout   time.Duration
	ProgressInterval  time.Duration
	TempDir           string
	LogLevel          string
	LogFile           string
	WebhookURL        string
	Port              int
	WebhookPath       string
	MetricsAddr       string
	TelegramFileLimit int64
	HTTP              HTTPClientConfig
}

type DownloadEntry struct {
	URL string `yaml:"link"`
}
