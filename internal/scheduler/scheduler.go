package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/linkrelay/internal/archive"
	relayhttp "github.com/tanq16/linkrelay/internal/downloaders/http"
	"github.com/tanq16/linkrelay/internal/progress"
	"github.com/tanq16/linkrelay/internal/router"
	"github.com/tanq16/linkrelay/internal/session"
	"github.com/tanq16/linkrelay/internal/utils"
)

const maxUserErrorLength = 200

// Handler fetches one URL of a given link type into the session directory.
type Handler interface {
	Download(ctx context.Context, rawURL, destDir string, progress relayhttp.ProgressFunc) (string, error)
}

// Transfer hands the finished result to whoever asked for it.
type Transfer interface {
	SendVideo(ctx context.Context, path, filename string) error
	SendDocument(ctx context.Context, path, filename string) error
}

// Recorder receives batch and download measurements; nil means no metrics.
type Recorder interface {
	BatchStarted()
	BatchFinished(state string, duration time.Duration)
	DownloadFinished(linkType, outcome string, bytes int64)
}

type Options struct {
	FileLimit        int64
	ProgressInterval time.Duration
}

type Scheduler struct {
	sessions *session.Manager
	router   *router.Router
	handlers map[router.LinkType]Handler
	metrics  Recorder
	opts     Options
}

func New(sessions *session.Manager, rt *router.Router, opts Options) *Scheduler {
	if opts.FileLimit <= 0 {
		opts.FileLimit = utils.TelegramFileLimit
	}
	return &Scheduler{
		sessions: sessions,
		router:   rt,
		handlers: make(map[router.LinkType]Handler),
		metrics:  noopRecorder{},
		opts:     opts,
	}
}

// Register binds a link type to its handler; later registrations replace earlier ones.
func (s *Scheduler) Register(linkType router.LinkType, h Handler) {
	s.handlers[linkType] = h
}

func (s *Scheduler) SetRecorder(r Recorder) {
	if r == nil {
		r = noopRecorder{}
	}
	s.metrics = r
}

type job struct {
	url      string
	linkType router.LinkType
	handler  Handler
}

// Run processes one batch of URLs end to end. It never panics and always removes
// the session directory it created before returning.
func (s *Scheduler) Run(ctx context.Context, urls []string, surface progress.StatusSurface, transfer Transfer) (report Report) {
	report.State = StateStarted
	start := time.Now()
	s.metrics.BatchStarted()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error().Str("op", "scheduler/batch").Str("stack", string(debug.Stack())).Err(err).Msg("Batch panicked")
			s.fail(ctx, surface, &report, userError(err), err)
		}
		if report.SessionID != "" {
			s.sessions.Destroy(report.SessionID)
		}
		s.metrics.BatchFinished(string(report.State), time.Since(start))
		log.Info().Str("op", "scheduler/batch").Str("state", string(report.State)).Str("session", report.SessionID).
			Msgf("Batch finished in %s", time.Since(start).Round(time.Millisecond))
	}()

	if err := s.run(ctx, urls, surface, transfer, &report); err != nil {
		log.Error().Str("op", "scheduler/batch").Str("step", string(report.State)).Err(err).Msg("Batch failed")
		s.fail(ctx, surface, &report, userError(err), err)
	}
	return report
}

func (s *Scheduler) run(ctx context.Context, urls []string, surface progress.StatusSurface, transfer Transfer, report *Report) error {
	report.State = StateRouting
	var jobs []job
	for _, routed := range s.router.Route(urls) {
		h, ok := s.handlers[routed.Type]
		if !ok {
			log.Debug().Str("op", "scheduler/batch").Msgf("No handler for %s (%s)", routed.URL, routed.Type)
			continue
		}
		jobs = append(jobs, job{url: routed.URL, linkType: routed.Type, handler: h})
	}
	if len(jobs) == 0 {
		s.fail(ctx, surface, report, "❌ No supported download URLs found.", ErrNothingSupported)
		return nil
	}

	report.SessionID = session.NewID()
	dir, err := s.sessions.Create(report.SessionID)
	if err != nil {
		return err
	}

	report.State = StateDownloading
	var downloaded []string
	for i, j := range jobs {
		name := shortName(j.url)
		s.edit(ctx, surface, fmt.Sprintf("📥 Downloading file %d/%d: `%s`…", i+1, len(jobs), name))
		reporter := progress.New(surface, name, s.opts.ProgressInterval)

		filePath, err := j.handler.Download(ctx, j.url, dir, reporter.Func(ctx))
		outcome := Outcome{URL: j.url, Type: j.linkType, Path: filePath, Err: err}
		if err == nil {
			if info, statErr := os.Stat(filePath); statErr == nil {
				outcome.Size = info.Size()
			}
			downloaded = append(downloaded, filePath)
			reporter.Complete(ctx)
		} else {
			outcome.Path = ""
			log.Warn().Str("op", "scheduler/batch").Err(err).Msgf("Skipping %s", j.url)
			reporter.Error(ctx, "Download failed after retries")
		}
		report.Outcomes = append(report.Outcomes, outcome)
		s.metrics.DownloadFinished(string(j.linkType), outcomeLabel(err), outcome.Size)
	}

	var result string
	switch len(downloaded) {
	case 0:
		s.fail(ctx, surface, report, "❌ No files were downloaded successfully.", ErrNothingDownloaded)
		return nil
	case 1:
		result = downloaded[0]
		log.Info().Str("op", "scheduler/batch").Msgf("Single file ready: %s", filepath.Base(result))
	default:
		report.State = StateZipping
		s.edit(ctx, surface, fmt.Sprintf("🗜 Zipping %d files…", len(downloaded)))
		result, err = archive.Build(downloaded, filepath.Join(dir, fmt.Sprintf("files_%s.zip", report.SessionID)))
		if err != nil {
			return err
		}
	}
	report.ResultPath = result
	report.ResultName = filepath.Base(result)

	report.State = StateSizeCheck
	info, err := os.Stat(result)
	if err != nil {
		return fmt.Errorf("error checking result size: %w", err)
	}
	report.Size = info.Size()
	if report.Size > s.opts.FileLimit {
		s.fail(ctx, surface, report, fmt.Sprintf("❌ Result is too large to send (%s MB, limit %d MB).",
			utils.FormatMB(report.Size), s.opts.FileLimit/(1024*1024)), ErrResultTooLarge)
		return nil
	}

	report.State = StateHandoff
	s.edit(ctx, surface, "📤 Uploading…")
	if utils.IsVideoFile(report.ResultName) {
		err = transfer.SendVideo(ctx, result, report.ResultName)
	} else {
		err = transfer.SendDocument(ctx, result, report.ResultName)
	}
	if err != nil {
		return fmt.Errorf("error sending %s: %w", report.ResultName, err)
	}

	s.edit(ctx, surface, fmt.Sprintf("✅ Done! Sent `%s`", report.ResultName))
	report.State = StateDone
	return nil
}

func (s *Scheduler) fail(ctx context.Context, surface progress.StatusSurface, report *Report, text string, err error) {
	if report.State != StateFailed {
		report.FailedAt = report.State
	}
	report.State = StateFailed
	report.Err = err
	s.edit(ctx, surface, text)
}

// edit is best effort: a vanished or rate-limited status message must not stop the batch.
func (s *Scheduler) edit(ctx context.Context, surface progress.StatusSurface, text string) {
	if err := surface.Edit(ctx, text); err != nil {
		log.Debug().Str("op", "scheduler/batch").Err(err).Msg("Status edit failed")
	}
}

func userError(err error) string {
	return "❌ An error occurred: " + utils.TruncateRunes(err.Error(), maxUserErrorLength)
}

// shortName is the label shown to users while a URL downloads.
func shortName(rawURL string) string {
	name := rawURL[strings.LastIndex(rawURL, "/")+1:]
	name = strings.SplitN(name, "?", 2)[0]
	name = utils.TruncateRunes(name, 50)
	if name == "" {
		return "file"
	}
	return name
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, relayhttp.ErrTooLarge):
		return "too_large"
	case errors.Is(err, relayhttp.ErrBadStatus):
		return "bad_status"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "failed"
	}
}

type noopRecorder struct{}

func (noopRecorder) BatchStarted()                          {}
func (noopRecorder) BatchFinished(string, time.Duration)    {}
func (noopRecorder) DownloadFinished(string, string, int64) {}
