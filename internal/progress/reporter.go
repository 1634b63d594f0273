// Package progress renders download progress onto a single editable status message.
package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/linkrelay/internal/utils"
)

const barWidth = 20

// StatusSurface is the one message a batch keeps editing to show what it is doing.
type StatusSurface interface {
	Edit(ctx context.Context, text string) error
}

// Reporter throttles and de-duplicates edits for one download.
// Surface errors are logged and dropped; reporting never fails the download.
type Reporter struct {
	mu         sync.Mutex
	surface    StatusSurface
	filename   string
	interval   time.Duration
	now        func() time.Time
	lastUpdate time.Time
	updated    bool
	lastText   string
}

func New(surface StatusSurface, filename string, interval time.Duration) *Reporter {
	return &Reporter{
		surface:  surface,
		filename: filename,
		interval: interval,
		now:      time.Now,
	}
}

// Update is meant to be called after every chunk; only one call per interval renders.
// time.Now carries a monotonic reading, so wall clock jumps do not affect throttling.
func (r *Reporter) Update(ctx context.Context, downloaded, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if r.updated && now.Sub(r.lastUpdate) < r.interval {
		return
	}
	r.lastUpdate = now
	r.updated = true
	r.render(ctx, r.progressText(downloaded, total))
}

// Func adapts the reporter to the downloader's callback shape.
func (r *Reporter) Func(ctx context.Context) func(downloaded, total int64) {
	return func(downloaded, total int64) {
		r.Update(ctx, downloaded, total)
	}
}

func (r *Reporter) Complete(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.render(ctx, fmt.Sprintf("✅ `%s` downloaded", r.filename))
}

func (r *Reporter) Error(ctx context.Context, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.render(ctx, fmt.Sprintf("❌ `%s` — %s", r.filename, reason))
}

// LastText is the most recent text handed to the surface.
func (r *Reporter) LastText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastText
}

func (r *Reporter) progressText(downloaded, total int64) string {
	if total > 0 {
		pct := min(int(downloaded*100/total), 100)
		return fmt.Sprintf("⬇️ `%s`\n%s %d%%\n%s / %s MB",
			r.filename, Bar(pct), pct, utils.FormatMB(downloaded), utils.FormatMB(total))
	}
	return fmt.Sprintf("⬇️ `%s` — %s MB downloaded…", r.filename, utils.FormatMB(downloaded))
}

func (r *Reporter) render(ctx context.Context, text string) {
	if text == r.lastText {
		return
	}
	r.lastText = text
	if err := r.surface.Edit(ctx, text); err != nil {
		log.Debug().Str("op", "progress/reporter").Err(err).Msg("Progress edit failed")
	}
}

// Bar draws a fixed-width bar with floor(width*pct/100) filled cells.
func Bar(pct int) string {
	pct = max(0, min(pct, 100))
	filled := barWidth * pct / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
}
