package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/linkrelay/internal/utils"
)

// Build zips every file that still exists into outputPath, stored under its base
// name, then deletes the originals. Missing inputs are skipped; failures to delete
// an original are logged and do not affect the archive.
func Build(files []string, outputPath string) (string, error) {
	log.Info().Str("op", "archive/zip").Msgf("Creating ZIP with %d file(s) -> %s", len(files), filepath.Base(outputPath))

	if err := writeArchive(files, outputPath); err != nil {
		if rmErr := os.Remove(outputPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Error().Str("op", "archive/zip").Err(rmErr).Msg("Could not remove broken archive")
		}
		return "", err
	}

	for _, fp := range files {
		if err := os.Remove(fp); err != nil && !os.IsNotExist(err) {
			log.Error().Str("op", "archive/zip").Err(err).Msgf("Could not delete %s", fp)
		}
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", fmt.Errorf("error verifying archive: %w", err)
	}
	log.Info().Str("op", "archive/zip").Msgf("ZIP created: %s (%s)", filepath.Base(outputPath), utils.FormatBytes(uint64(info.Size())))
	return outputPath, nil
}

func writeArchive(files []string, outputPath string) (err error) {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("error creating archive: %w", err)
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	zw := zip.NewWriter(out)
	for _, fp := range files {
		info, statErr := os.Stat(fp)
		if statErr != nil || info.IsDir() {
			log.Warn().Str("op", "archive/zip").Msgf("Missing, skipped: %s", fp)
			continue
		}
		if err := addFile(zw, fp, info); err != nil {
			zw.Close()
			return err
		}
		log.Debug().Str("op", "archive/zip").Msgf("Added: %s", filepath.Base(fp))
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("error finalizing archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path string, info os.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("error building zip header for %s: %w", path, err)
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("error adding %s to archive: %w", path, err)
	}
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", path, err)
	}
	defer in.Close()
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("error compressing %s: %w", path, err)
	}
	return nil
}
