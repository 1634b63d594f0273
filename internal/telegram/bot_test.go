package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/linkrelay/internal/progress"
	"github.com/tanq16/linkrelay/internal/scheduler"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	fileURL  string
	nextID   int
	reqErrs  []error
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: 100 + f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if len(f.reqErrs) > 0 {
		err := f.reqErrs[0]
		f.reqErrs = f.reqErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("file not found")
	}
	return f.fileURL, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) HandleUpdate(r *http.Request) (*tgbotapi.Update, error) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		return nil, err
	}
	return &update, nil
}

func (f *fakeAPI) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) editTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.requests {
		if e, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, e.Text)
		}
	}
	return out
}

type fakeRunner struct {
	mu   sync.Mutex
	urls [][]string
}

func (r *fakeRunner) Run(ctx context.Context, urls []string, surface progress.StatusSurface, _ scheduler.Transfer) scheduler.Report {
	r.mu.Lock()
	r.urls = append(r.urls, urls)
	r.mu.Unlock()
	surface.Edit(ctx, "✅ Done! Sent `x`")
	return scheduler.Report{State: scheduler.StateDone}
}

type countingMetrics struct {
	mu    sync.Mutex
	kinds []string
}

func (c *countingMetrics) UpdateReceived(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
}

func chatMessage(text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 42}, Text: text}
	if strings.HasPrefix(text, "/") {
		end := strings.IndexByte(text, ' ')
		if end < 0 {
			end = len(text)
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	return msg
}

func TestHandleStart(t *testing.T) {
	api := &fakeAPI{}
	m := &countingMetrics{}
	bot := NewBot(api, &fakeRunner{}, http.DefaultClient)
	bot.SetMetrics(m)

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: chatMessage("/start")})

	require.Len(t, api.sent, 1)
	reply := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, welcomeText, reply.Text)
	assert.Equal(t, tgbotapi.ModeMarkdown, reply.ParseMode)
	assert.Equal(t, 7, reply.ReplyToMessageID)
	assert.Equal(t, []string{"start"}, m.kinds)
}

func TestHandleTextWithoutURLs(t *testing.T) {
	api := &fakeAPI{}
	runner := &fakeRunner{}
	bot := NewBot(api, runner, http.DefaultClient)

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: chatMessage("hello there")})

	assert.Equal(t, []string{noURLsInMessage}, api.sentTexts())
	assert.Empty(t, runner.urls)
}

func TestHandleTextRunsBatch(t *testing.T) {
	api := &fakeAPI{}
	runner := &fakeRunner{}
	bot := NewBot(api, runner, http.DefaultClient)

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: chatMessage(
		"grab https://cdn.test/a.zip and\nhttps://cdn.test/b.pdf.")})

	assert.Equal(t, []string{"🔗 Found 2 URL(s). Starting download…"}, api.sentTexts())
	require.Len(t, runner.urls, 1)
	assert.Equal(t, []string{"https://cdn.test/a.zip", "https://cdn.test/b.pdf"}, runner.urls[0])

	edits := api.editTexts()
	require.Len(t, edits, 1)
	edit := api.requests[0].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, int64(42), edit.ChatID)
	assert.Equal(t, 101, edit.MessageID)
}

func TestHandleDocumentRejectsNonText(t *testing.T) {
	api := &fakeAPI{}
	bot := NewBot(api, &fakeRunner{}, http.DefaultClient)
	msg := chatMessage("")
	msg.Document = &tgbotapi.Document{FileID: "f1", FileName: "links.pdf"}

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	assert.Equal(t, []string{notATextFile}, api.sentTexts())
}

func TestHandleDocumentReadsURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("https://cdn.test/one.mp4\n\xff\xfehttps://cdn.test/two.zip\n"))
	}))
	defer srv.Close()
	api := &fakeAPI{fileURL: srv.URL + "/links.txt"}
	runner := &fakeRunner{}
	bot := NewBot(api, runner, srv.Client())
	msg := chatMessage("")
	msg.Document = &tgbotapi.Document{FileID: "f1", FileName: "LINKS.TXT"}

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	assert.Equal(t, []string{readingUpload}, api.sentTexts())
	require.Len(t, runner.urls, 1)
	assert.Equal(t, []string{"https://cdn.test/one.mp4", "https://cdn.test/two.zip"}, runner.urls[0])
	assert.Equal(t, []string{"🔗 Found 2 URL(s). Starting downloads…", "✅ Done! Sent `x`"}, api.editTexts())
}

func TestHandleDocumentWithoutURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nothing useful here"))
	}))
	defer srv.Close()
	api := &fakeAPI{fileURL: srv.URL}
	runner := &fakeRunner{}
	bot := NewBot(api, runner, srv.Client())
	msg := chatMessage("")
	msg.Document = &tgbotapi.Document{FileID: "f1", FileName: "links.txt"}

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	assert.Equal(t, []string{noURLsInUpload}, api.editTexts())
	assert.Empty(t, runner.urls)
}

func TestHandleDocumentFetchError(t *testing.T) {
	api := &fakeAPI{}
	bot := NewBot(api, &fakeRunner{}, http.DefaultClient)
	msg := chatMessage("")
	msg.Document = &tgbotapi.Document{FileID: "f1", FileName: "links.txt"}

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	assert.Equal(t, []string{readErrorPrefix + "file not found"}, api.editTexts())
}

func TestFetchDocumentTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", maxListBytes+10)))
	}))
	defer srv.Close()
	bot := NewBot(&fakeAPI{fileURL: srv.URL}, &fakeRunner{}, srv.Client())

	_, err := bot.fetchDocument(context.Background(), "f1")

	assert.ErrorIs(t, err, ErrListTooLarge)
}

func TestSurfaceFallsBackToPlainText(t *testing.T) {
	api := &fakeAPI{reqErrs: []error{errors.New("Bad Request: can't parse entities: unclosed")}}
	s := NewSurface(api, 42, 9)

	require.NoError(t, s.Edit(context.Background(), "⬇️ `bad_name*"))

	require.Len(t, api.requests, 2)
	assert.Equal(t, tgbotapi.ModeMarkdown, api.requests[0].(tgbotapi.EditMessageTextConfig).ParseMode)
	assert.Empty(t, api.requests[1].(tgbotapi.EditMessageTextConfig).ParseMode)
}

func TestSurfaceIgnoresNotModified(t *testing.T) {
	api := &fakeAPI{reqErrs: []error{errors.New("Bad Request: message is not modified")}}
	assert.NoError(t, NewSurface(api, 42, 9).Edit(context.Background(), "same"))
}

func TestTransferPicksUploadKind(t *testing.T) {
	path := t.TempDir() + "/clip.mp4"
	require.NoError(t, writeFile(path, "data"))
	api := &fakeAPI{}
	tr := NewTransfer(api, 42)

	require.NoError(t, tr.SendVideo(context.Background(), path, "clip.mp4"))
	require.NoError(t, tr.SendDocument(context.Background(), path, "clip.mp4"))

	require.Len(t, api.sent, 2)
	video := api.sent[0].(tgbotapi.VideoConfig)
	assert.True(t, video.SupportsStreaming)
	assert.Equal(t, int64(42), video.ChatID)
	_, ok := api.sent[1].(tgbotapi.DocumentConfig)
	assert.True(t, ok)

	assert.Error(t, tr.SendDocument(context.Background(), path+".missing", "x"))
}

func TestDispatchRecoversPanics(t *testing.T) {
	bot := NewBot(&fakeAPI{}, panicRunner{}, http.DefaultClient)

	bot.Dispatch(context.Background(), tgbotapi.Update{Message: chatMessage("https://cdn.test/a.zip")})
	bot.Wait()
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, []string, progress.StatusSurface, scheduler.Transfer) scheduler.Report {
	panic("boom")
}

func TestPollStopsOnCancel(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update, 1)}
	runner := &fakeRunner{}
	bot := NewBot(api, runner, http.DefaultClient)
	ctx, cancel := context.WithCancel(context.Background())

	api.updates <- tgbotapi.Update{UpdateID: 1, Message: chatMessage("https://cdn.test/a.zip")}
	done := make(chan error, 1)
	go func() { done <- bot.Poll(ctx) }()
	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.urls) == 1
	}, timeout, tick)
	cancel()

	require.NoError(t, <-done)
	assert.True(t, api.stopped)
	_, ok := api.requests[0].(tgbotapi.DeleteWebhookConfig)
	assert.True(t, ok)
}

func TestWebhookHandler(t *testing.T) {
	api := &fakeAPI{}
	runner := &fakeRunner{}
	bot := NewBot(api, runner, http.DefaultClient)
	h := bot.WebhookHandler(context.Background())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"update_id":5,"message":{"message_id":3,"chat":{"id":42,"type":"private"},"date":0,"text":"https://cdn.test/a.zip"}}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)
	bot.Wait()
	require.Len(t, runner.urls, 1)
	assert.Equal(t, []string{"https://cdn.test/a.zip"}, runner.urls[0])
}
