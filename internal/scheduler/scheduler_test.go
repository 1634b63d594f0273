package scheduler

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	relayhttp "github.com/tanq16/linkrelay/internal/downloaders/http"
	"github.com/tanq16/linkrelay/internal/router"
	"github.com/tanq16/linkrelay/internal/session"
)

type fakeSurface struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSurface) Edit(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSurface) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeSurface) contains(sub string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.texts {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}

type sentFile struct {
	kind     string
	filename string
	body     []byte
}

type fakeTransfer struct {
	sent []sentFile
	err  error
}

func (f *fakeTransfer) record(kind, path, filename string) error {
	if f.err != nil {
		return f.err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, sentFile{kind: kind, filename: filename, body: body})
	return nil
}

func (f *fakeTransfer) SendVideo(_ context.Context, path, filename string) error {
	return f.record("video", path, filename)
}

func (f *fakeTransfer) SendDocument(_ context.Context, path, filename string) error {
	return f.record("document", path, filename)
}

// fileHandler writes the content mapped to each URL, or fails for URLs missing from the map.
type fileHandler struct {
	files map[string]string
	panic bool
}

func (h *fileHandler) Download(_ context.Context, rawURL, destDir string, progress relayhttp.ProgressFunc) (string, error) {
	if h.panic {
		panic("handler exploded")
	}
	body, ok := h.files[rawURL]
	if !ok {
		return "", fmt.Errorf("%w: %s", relayhttp.ErrDownloadFailed, rawURL)
	}
	path := filepath.Join(destDir, relayhttp.FilenameFromURL(rawURL))
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return "", err
	}
	progress(int64(len(body)), int64(len(body)))
	return path, nil
}

type fakeRecorder struct {
	started   int
	finished  []string
	downloads []string
}

func (r *fakeRecorder) BatchStarted() { r.started++ }
func (r *fakeRecorder) BatchFinished(state string, _ time.Duration) {
	r.finished = append(r.finished, state)
}
func (r *fakeRecorder) DownloadFinished(linkType, outcome string, _ int64) {
	r.downloads = append(r.downloads, linkType+":"+outcome)
}

func newTestScheduler(t *testing.T, h Handler, limit int64) (*Scheduler, string) {
	t.Helper()
	root := t.TempDir()
	s := New(session.NewManager(root), router.Default(), Options{FileLimit: limit})
	s.Register(router.Direct, h)
	return s, root
}

func assertNoSessions(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "session directories left behind")
}

func TestRunCollapsesBatchIntoArchive(t *testing.T) {
	h := &fileHandler{files: map[string]string{
		"https://cdn.test/a.zip": "alpha",
		"https://cdn.test/b.pdf": "bravo",
	}}
	s, root := newTestScheduler(t, h, 1024*1024)
	rec := &fakeRecorder{}
	s.SetRecorder(rec)
	surface := &fakeSurface{}
	transfer := &fakeTransfer{}

	report := s.Run(context.Background(), []string{
		"https://cdn.test/a.zip",
		"https://cdn.test/missing.mp4",
		"https://cdn.test/b.pdf",
	}, surface, transfer)

	require.Equal(t, StateDone, report.State)
	assert.NoError(t, report.Err)
	assert.Equal(t, 2, report.Succeeded())
	require.Len(t, report.Outcomes, 3)
	assert.Error(t, report.Outcomes[1].Err)
	assert.Equal(t, fmt.Sprintf("files_%s.zip", report.SessionID), report.ResultName)

	require.Len(t, transfer.sent, 1)
	assert.Equal(t, "document", transfer.sent[0].kind)
	zr, err := zip.NewReader(strings.NewReader(string(transfer.sent[0].body)), int64(len(transfer.sent[0].body)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"a.zip", "b.pdf"}, names)

	assert.True(t, surface.contains("📥 Downloading file 2/3: `missing.mp4`…"))
	assert.True(t, surface.contains("🗜 Zipping 2 files…"))
	assert.Equal(t, fmt.Sprintf("✅ Done! Sent `%s`", report.ResultName), surface.last())

	assert.Equal(t, 1, rec.started)
	assert.Equal(t, []string{"done"}, rec.finished)
	assert.Equal(t, []string{"direct:ok", "direct:failed", "direct:ok"}, rec.downloads)
	assertNoSessions(t, root)
}

func TestRunSendsSingleFileUnzipped(t *testing.T) {
	tests := []struct {
		name string
		url  string
		kind string
	}{
		{name: "video", url: "https://cdn.test/clip.MP4", kind: "video"},
		{name: "mkv video", url: "https://cdn.test/movie.mkv?sig=1", kind: "video"},
		{name: "document", url: "https://cdn.test/report.pdf", kind: "document"},
		{name: "unknown extension", url: "https://cdn.test/download", kind: "document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fileHandler{files: map[string]string{tt.url: "payload"}}
			s, root := newTestScheduler(t, h, 1024)
			transfer := &fakeTransfer{}

			report := s.Run(context.Background(), []string{tt.url}, &fakeSurface{}, transfer)

			require.Equal(t, StateDone, report.State)
			require.Len(t, transfer.sent, 1)
			assert.Equal(t, tt.kind, transfer.sent[0].kind)
			assert.Equal(t, "payload", string(transfer.sent[0].body))
			assert.Equal(t, report.ResultName, transfer.sent[0].filename)
			assertNoSessions(t, root)
		})
	}
}

func TestRunAllDownloadsFail(t *testing.T) {
	s, root := newTestScheduler(t, &fileHandler{}, 1024)
	surface := &fakeSurface{}
	transfer := &fakeTransfer{}

	report := s.Run(context.Background(), []string{"https://cdn.test/a.zip", "https://cdn.test/b.zip"}, surface, transfer)

	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, StateDownloading, report.FailedAt)
	assert.ErrorIs(t, report.Err, ErrNothingDownloaded)
	assert.Empty(t, transfer.sent)
	assert.Equal(t, "❌ No files were downloaded successfully.", surface.last())
	assertNoSessions(t, root)
}

func TestRunNothingSupported(t *testing.T) {
	root := t.TempDir()
	s := New(session.NewManager(root), router.Default(), Options{})
	surface := &fakeSurface{}

	report := s.Run(context.Background(), []string{"https://cdn.test/a.zip"}, surface, &fakeTransfer{})

	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, StateRouting, report.FailedAt)
	assert.ErrorIs(t, report.Err, ErrNothingSupported)
	assert.Empty(t, report.SessionID)
	assert.Equal(t, "❌ No supported download URLs found.", surface.last())
	assertNoSessions(t, root)
}

func TestRunResultTooLarge(t *testing.T) {
	h := &fileHandler{files: map[string]string{"https://cdn.test/big.bin": strings.Repeat("x", 2048)}}
	s, root := newTestScheduler(t, h, 1024)
	surface := &fakeSurface{}
	transfer := &fakeTransfer{}

	report := s.Run(context.Background(), []string{"https://cdn.test/big.bin"}, surface, transfer)

	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, StateSizeCheck, report.FailedAt)
	assert.ErrorIs(t, report.Err, ErrResultTooLarge)
	assert.EqualValues(t, 2048, report.Size)
	assert.Empty(t, transfer.sent)
	assert.True(t, strings.HasPrefix(surface.last(), "❌ Result is too large"))
	assertNoSessions(t, root)
}

func TestRunTransferFailure(t *testing.T) {
	h := &fileHandler{files: map[string]string{"https://cdn.test/a.pdf": "doc"}}
	s, root := newTestScheduler(t, h, 1024)
	surface := &fakeSurface{}

	report := s.Run(context.Background(), []string{"https://cdn.test/a.pdf"}, surface, &fakeTransfer{err: errors.New("request entity too large")})

	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, StateHandoff, report.FailedAt)
	assert.Equal(t, "❌ An error occurred: error sending a.pdf: request entity too large", surface.last())
	assertNoSessions(t, root)
}

func TestRunRecoversFromHandlerPanic(t *testing.T) {
	s, root := newTestScheduler(t, &fileHandler{panic: true}, 1024)
	rec := &fakeRecorder{}
	s.SetRecorder(rec)
	surface := &fakeSurface{}

	var report Report
	require.NotPanics(t, func() {
		report = s.Run(context.Background(), []string{"https://cdn.test/a.zip"}, surface, &fakeTransfer{})
	})

	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, StateDownloading, report.FailedAt)
	assert.NotEmpty(t, report.SessionID)
	assert.Equal(t, "❌ An error occurred: panic: handler exploded", surface.last())
	assert.Equal(t, []string{"failed"}, rec.finished)
	assertNoSessions(t, root)
}

func TestUserErrorTruncates(t *testing.T) {
	msg := userError(errors.New(strings.Repeat("e", 500)))
	assert.Equal(t, "❌ An error occurred: "+strings.Repeat("e", maxUserErrorLength), msg)
}

func TestShortName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://cdn.test/path/video.mp4?token=abc", want: "video.mp4"},
		{url: "https://cdn.test/dir/", want: "file"},
		{url: "https://cdn.test/" + strings.Repeat("n", 80), want: strings.Repeat("n", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shortName(tt.url), tt.url)
	}
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "ok", outcomeLabel(nil))
	assert.Equal(t, "too_large", outcomeLabel(fmt.Errorf("%w: x: %w", relayhttp.ErrDownloadFailed, relayhttp.ErrTooLarge)))
	assert.Equal(t, "bad_status", outcomeLabel(fmt.Errorf("wrap: %w", relayhttp.ErrBadStatus)))
	assert.Equal(t, "timeout", outcomeLabel(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.Equal(t, "failed", outcomeLabel(errors.New("boom")))
}
