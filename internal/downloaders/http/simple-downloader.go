package relayhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/linkrelay/internal/utils"
)

// Download fetches rawURL into destDir and returns the written path. Every failure,
// including exhausted retries, comes back wrapped in ErrDownloadFailed and leaves no
// file behind.
func (d *Downloader) Download(ctx context.Context, rawURL, destDir string, progress ProgressFunc) (string, error) {
	outputPath := utils.FreeOutputPath(filepath.Join(destDir, FilenameFromURL(rawURL)))
	maxRetries := d.cfg.MaxRetries
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Info().Str("op", "http/simple-downloader").Msgf("[%d/%d] Downloading %s", attempt, maxRetries, rawURL)
		written, err := d.downloadAttempt(ctx, rawURL, outputPath, progress)
		if err == nil {
			log.Info().Str("op", "http/simple-downloader").Msgf("Downloaded %s (%s)", filepath.Base(outputPath), utils.FormatBytes(uint64(written)))
			return outputPath, nil
		}
		lastErr = err
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Str("op", "http/simple-downloader").Msgf("[%d/%d] Timeout for %s", attempt, maxRetries, rawURL)
		} else {
			log.Warn().Str("op", "http/simple-downloader").Err(err).Msgf("[%d/%d] Attempt failed for %s", attempt, maxRetries, rawURL)
		}
		if attempt < maxRetries {
			delay := backoff(attempt)
			log.Info().Str("op", "http/simple-downloader").Msgf("Retrying in %s", delay)
			if err := d.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	log.Error().Str("op", "http/simple-downloader").Msgf("All %d attempts failed for %s", maxRetries, rawURL)
	removePartial(outputPath)
	return "", fmt.Errorf("%w: %s: %w", ErrDownloadFailed, rawURL, lastErr)
}

func (d *Downloader) downloadAttempt(ctx context.Context, rawURL, outputPath string, progress ProgressFunc) (written int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating GET request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error executing GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	total := max(resp.ContentLength, 0)
	if total > d.cfg.MaxFileSize {
		return 0, fmt.Errorf("%w: declared %d bytes > %d", ErrTooLarge, total, d.cfg.MaxFileSize)
	}

	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("error creating output file: %w", err)
	}
	defer func() {
		if err != nil {
			outFile.Close()
			removePartial(outputPath)
		}
	}()

	buffer := make([]byte, d.cfg.ChunkSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			written += int64(bytesRead)
			if written > d.cfg.MaxFileSize {
				return written, fmt.Errorf("%w: streamed more than %d bytes", ErrTooLarge, d.cfg.MaxFileSize)
			}
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return written, fmt.Errorf("error writing to output file: %w", writeErr)
			}
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return written, fmt.Errorf("error reading response body: %w", readErr)
		}
	}

	if err = outFile.Sync(); err != nil {
		return written, fmt.Errorf("error syncing output file: %w", err)
	}
	if err = outFile.Close(); err != nil {
		return written, fmt.Errorf("error closing output file: %w", err)
	}
	info, err := os.Stat(outputPath)
	if err != nil {
		return written, fmt.Errorf("error verifying output file: %w", err)
	}
	if info.Size() != written {
		err = fmt.Errorf("%w: %d on disk, %d streamed", ErrIncomplete, info.Size(), written)
		return written, err
	}
	return written, nil
}

func removePartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Error().Str("op", "http/simple-downloader").Err(err).Msgf("Could not remove partial file %s", path)
	}
}
