package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/linkrelay/internal/progress"
	"github.com/tanq16/linkrelay/internal/router"
	"github.com/tanq16/linkrelay/internal/scheduler"
	"github.com/tanq16/linkrelay/internal/utils"
)

const maxListBytes = 5 * 1024 * 1024

var ErrListTooLarge = errors.New("uploaded file is too large")

// Runner executes one batch; *scheduler.Scheduler satisfies it.
type Runner interface {
	Run(ctx context.Context, urls []string, surface progress.StatusSurface, transfer scheduler.Transfer) scheduler.Report
}

// Doer fetches uploaded URL lists from Telegram's file endpoint.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UpdateCounter is satisfied by *metrics.Metrics.
type UpdateCounter interface {
	UpdateReceived(kind string)
}

type Bot struct {
	api     API
	runner  Runner
	client  Doer
	metrics UpdateCounter
	wg      sync.WaitGroup
}

func NewBot(api API, runner Runner, client Doer) *Bot {
	return &Bot{api: api, runner: runner, client: client}
}

func (b *Bot) SetMetrics(m UpdateCounter) {
	b.metrics = m
}

// RegisterCommands publishes the command list shown in Telegram clients.
func (b *Bot) RegisterCommands() error {
	cmds := tgbotapi.NewSetMyCommands(tgbotapi.BotCommand{Command: "start", Description: startCommandDescription})
	if _, err := b.api.Request(cmds); err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}
	return nil
}

// Dispatch handles update on its own goroutine. Panics are logged and dropped.
func (b *Bot) Dispatch(ctx context.Context, update tgbotapi.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("op", "telegram/bot").Str("stack", string(debug.Stack())).
					Msgf("Update %d panicked: %v", update.UpdateID, r)
			}
		}()
		b.HandleUpdate(ctx, update)
	}()
}

// Wait blocks until every dispatched update has finished.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	switch {
	case msg == nil:
		b.count("ignored")
	case msg.IsCommand() && msg.Command() == "start":
		b.count("start")
		b.handleStart(msg)
	case msg.Document != nil:
		b.count("document")
		b.handleDocument(ctx, msg)
	case strings.TrimSpace(msg.Text) != "" && !msg.IsCommand():
		b.count("text")
		b.handleText(ctx, msg)
	default:
		b.count("ignored")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) {
	if _, err := b.reply(msg, welcomeText, tgbotapi.ModeMarkdown); err != nil {
		log.Error().Str("op", "telegram/bot").Err(err).Msg("Failed to send welcome")
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	urls := router.ExtractURLs(strings.TrimSpace(msg.Text))
	if len(urls) == 0 {
		if _, err := b.reply(msg, noURLsInMessage, ""); err != nil {
			log.Error().Str("op", "telegram/bot").Err(err).Msg("Failed to reply")
		}
		return
	}
	log.Info().Str("op", "telegram/bot").Msgf("Chat %d sent %d URL(s)", msg.Chat.ID, len(urls))
	status, err := b.reply(msg, fmt.Sprintf(foundURLsFormat, len(urls)), "")
	if err != nil {
		log.Error().Str("op", "telegram/bot").Err(err).Msg("Failed to create status message")
		return
	}
	b.runBatch(ctx, msg.Chat.ID, status.MessageID, urls)
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	if !strings.HasSuffix(strings.ToLower(msg.Document.FileName), ".txt") {
		if _, err := b.reply(msg, notATextFile, ""); err != nil {
			log.Error().Str("op", "telegram/bot").Err(err).Msg("Failed to reply")
		}
		return
	}
	status, err := b.reply(msg, readingUpload, "")
	if err != nil {
		log.Error().Str("op", "telegram/bot").Err(err).Msg("Failed to create status message")
		return
	}
	surface := NewSurface(b.api, msg.Chat.ID, status.MessageID)

	content, err := b.fetchDocument(ctx, msg.Document.FileID)
	if err != nil {
		log.Error().Str("op", "telegram/bot").Err(err).Msgf("Error reading %s", msg.Document.FileName)
		b.edit(ctx, surface, readErrorPrefix+utils.TruncateRunes(err.Error(), 200))
		return
	}
	urls := router.ExtractURLs(content)
	if len(urls) == 0 {
		b.edit(ctx, surface, noURLsInUpload)
		return
	}
	b.edit(ctx, surface, fmt.Sprintf(foundUploadFormat, len(urls)))
	b.runBatch(ctx, msg.Chat.ID, status.MessageID, urls)
}

func (b *Bot) runBatch(ctx context.Context, chatID int64, statusID int, urls []string) {
	report := b.runner.Run(ctx, urls, NewSurface(b.api, chatID, statusID), NewTransfer(b.api, chatID))
	log.Info().Str("op", "telegram/bot").Msgf("Chat %d batch %s ended %s (%d/%d files)",
		chatID, report.SessionID, report.State, report.Succeeded(), len(report.Outcomes))
}

// fetchDocument downloads an uploaded list and decodes it as UTF-8, dropping invalid bytes.
func (b *Bot) fetchDocument(ctx context.Context, fileID string) (string, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("file download returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxListBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxListBytes {
		return "", ErrListTooLarge
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

func (b *Bot) reply(msg *tgbotapi.Message, text, parseMode string) (tgbotapi.Message, error) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	out.ParseMode = parseMode
	return b.api.Send(out)
}

func (b *Bot) edit(ctx context.Context, s *Surface, text string) {
	if err := s.Edit(ctx, text); err != nil {
		log.Debug().Str("op", "telegram/bot").Err(err).Msg("Status edit failed")
	}
}

func (b *Bot) count(kind string) {
	if b.metrics != nil {
		b.metrics.UpdateReceived(kind)
	}
}
