package relayhttp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/tanq16/linkrelay/internal/utils"
)

var (
	ErrDownloadFailed = errors.New("download failed")
	ErrTooLarge       = errors.New("file exceeds size limit")
	ErrBadStatus      = errors.New("unexpected status code")
	ErrIncomplete     = errors.New("written size does not match streamed bytes")
)

const defaultFilename = "downloaded_file"

// ProgressFunc receives cumulative bytes written and the declared total (0 when unknown).
type ProgressFunc func(downloaded, total int64)

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	ChunkSize   int
	MaxFileSize int64
	MaxRetries  int
	Timeout     time.Duration
}

func ConfigFrom(cfg utils.Config) Config {
	return Config{
		ChunkSize:   cfg.ChunkSize,
		MaxFileSize: cfg.MaxFileSize,
		MaxRetries:  cfg.MaxRetries,
		Timeout:     cfg.DownloadTimeout,
	}
}

type Downloader struct {
	client Doer
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewDownloader(client Doer, cfg Config) *Downloader {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = utils.DefaultChunkSize
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = utils.DefaultMaxFileSize
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = utils.DefaultDownloadTimeout * time.Second
	}
	return &Downloader{client: client, cfg: cfg, sleep: sleepContext}
}

// FilenameFromURL picks the last path segment of rawURL as a safe local name.
func FilenameFromURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return defaultFilename
	}
	name := path.Base(parsedURL.Path)
	if name == "" || name == "/" || name == "." {
		name = defaultFilename
	}
	return utils.SanitizeFilename(name)
}

// backoff is 2^attempt seconds for the 1-based attempt that just failed.
func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
