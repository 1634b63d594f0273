package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/linkrelay/internal/utils"
)

// LocalTransfer delivers batch results by copying them into a directory.
type LocalTransfer struct {
	dir   string
	saved []string
}

func NewLocalTransfer(dir string) *LocalTransfer {
	return &LocalTransfer{dir: dir}
}

func (l *LocalTransfer) SendVideo(ctx context.Context, path, filename string) error {
	return l.copy(ctx, path, filename)
}

func (l *LocalTransfer) SendDocument(ctx context.Context, path, filename string) error {
	return l.copy(ctx, path, filename)
}

// Saved lists the destination paths written so far.
func (l *LocalTransfer) Saved() []string {
	return append([]string(nil), l.saved...)
}

func (l *LocalTransfer) copy(ctx context.Context, path, filename string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	dst := utils.FreeOutputPath(filepath.Join(l.dir, utils.SanitizeFilename(filename)))

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening result: %w", err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()
	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("error copying result: %w", err)
	}
	l.saved = append(l.saved, dst)
	log.Info().Str("op", "output/transfer").Msgf("Saved %s", dst)
	return nil
}
