// Package telegram adapts the batch pipeline to a Telegram bot.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// NewAPI connects to the Bot API with the given client; the client timeout bounds uploads.
func NewAPI(token string, client *http.Client) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("error connecting to telegram: %w", err)
	}
	log.Info().Str("op", "telegram/api").Msgf("Authorized as @%s", bot.Self.UserName)
	return bot, nil
}

// Surface edits one chat message in place.
type Surface struct {
	api       API
	chatID    int64
	messageID int
}

func NewSurface(api API, chatID int64, messageID int) *Surface {
	return &Surface{api: api, chatID: chatID, messageID: messageID}
}

func (s *Surface) Edit(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(s.chatID, s.messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	_, err := s.api.Request(edit)
	if err != nil && isParseError(err) {
		// filenames with stray markdown characters; resend as plain text
		edit.ParseMode = ""
		_, err = s.api.Request(edit)
	}
	if err != nil && isNotModified(err) {
		return nil
	}
	return err
}

func isParseError(err error) bool {
	return strings.Contains(err.Error(), "can't parse entities")
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

// Transfer uploads batch results into one chat.
type Transfer struct {
	api    API
	chatID int64
}

func NewTransfer(api API, chatID int64) *Transfer {
	return &Transfer{api: api, chatID: chatID}
}

func (t *Transfer) SendVideo(ctx context.Context, path, filename string) error {
	f, err := t.open(ctx, path)
	if err != nil {
		return err
	}
	defer f.Close()
	video := tgbotapi.NewVideo(t.chatID, tgbotapi.FileReader{Name: filename, Reader: f})
	video.SupportsStreaming = true
	_, err = t.api.Send(video)
	return err
}

func (t *Transfer) SendDocument(ctx context.Context, path, filename string) error {
	f, err := t.open(ctx, path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = t.api.Send(tgbotapi.NewDocument(t.chatID, tgbotapi.FileReader{Name: filename, Reader: f}))
	return err
}

func (t *Transfer) open(ctx context.Context, path string) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info().Str("op", "telegram/api").Msgf("Uploading %s to chat %d", path, t.chatID)
	return os.Open(path)
}
