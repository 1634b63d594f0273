package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var reservedFilenameChars = regexp.MustCompile(`[<>:"|?*]`)
var separatorReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "")

// SanitizeFilename turns an untrusted name into a safe local directory entry.
// It never fails and sanitizing its own output is a no-op.
func SanitizeFilename(name string) string {
	name = separatorReplacer.Replace(name)
	name = strings.TrimLeft(name, ". ")
	name = reservedFilenameChars.ReplaceAllString(name, "_")
	if utf8.RuneCountInString(name) > maxFilenameLength {
		ext := filepath.Ext(name)
		if utf8.RuneCountInString(ext) > maxExtensionLength {
			// not a real extension; the whole name is cut instead
			name = TruncateRunes(name, maxFilenameLength)
		} else {
			stem := name[:len(name)-len(ext)]
			name = TruncateRunes(stem, truncatedStemLimit) + ext
		}
	}
	if name == "" {
		return fallbackFilename
	}
	return name
}

// RenewOutputPath returns the first free "<stem>_<n><ext>" next to outputPath.
func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

// FreeOutputPath keeps outputPath when nothing exists there yet.
func FreeOutputPath(outputPath string) string {
	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		return outputPath
	}
	return RenewOutputPath(outputPath)
}

func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

func IsVideoFile(name string) bool {
	_, ok := VideoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatMB renders bytes as mebibytes with one decimal, the unit users see in chat.
func FormatMB(bytes int64) string {
	return fmt.Sprintf("%.1f", float64(bytes)/(1024*1024))
}

// ReadDownloadList parses a YAML list of {link: URL} entries.
func ReadDownloadList(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}
	var entries []DownloadEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %w", err)
	}
	urls := make([]string, 0, len(entries))
	for i, entry := range entries {
		if strings.TrimSpace(entry.URL) == "" {
			return nil, fmt.Errorf("missing link for entry %d", i+1)
		}
		urls = append(urls, strings.TrimSpace(entry.URL))
	}
	log.Debug().Str("op", "utils/functions").Int("count", len(urls)).Msg("Entries loaded from YAML")
	return urls, nil
}
