package utils

import "errors"

const (
	DefaultChunkSize        = 8 * 1024
	DefaultMaxFileSize      = 50 * 1024 * 1024
	DefaultMaxRetries       = 3
	DefaultDownloadTimeout  = 300 // seconds
	DefaultProgressInterval = 3.0 // seconds
	DefaultTempDir          = "/tmp/telegram_bot"
	DefaultLogFile          = "bot.log"
	DefaultWebhookPath      = "/webhook"
	DefaultPort             = 8443

	// TelegramFileLimit is the Bot API upload cap; it is not configurable.
	TelegramFileLimit = 50 * 1024 * 1024

	// UploadTimeout is the per read and per write stall limit on the messaging host connection.
	UploadTimeout = 120 // seconds

	ToolUserAgent = "linkrelay/1.0"
)

const (
	maxFilenameLength  = 200
	truncatedStemLimit = 180
	maxExtensionLength = 20
	fallbackFilename   = "unnamed_file"
)

var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is not set")
var ErrInvalidConfig = errors.New("invalid configuration")

var VideoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".mov":  {},
	".webm": {},
}
