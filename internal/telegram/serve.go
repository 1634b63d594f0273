package telegram

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

const pollTimeoutSeconds = 60

// Poll long-polls for updates until ctx is canceled, then waits for running batches.
func (b *Bot) Poll(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("error removing webhook: %w", err)
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := b.api.GetUpdatesChan(cfg)
	log.Info().Str("op", "telegram/serve").Msg("Polling for updates")

	defer b.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Info().Str("op", "telegram/serve").Msg("Stopped polling")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.Dispatch(ctx, update)
		}
	}
}

// SetWebhook points Telegram at url, which must already include the webhook path.
func (b *Bot) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("error setting webhook: %w", err)
	}
	log.Info().Str("op", "telegram/serve").Msgf("Webhook set to %s", url)
	return nil
}

// WebhookHandler accepts update POSTs. Batches run under ctx, not the request context,
// so they outlive the request that delivered them.
func (b *Bot) WebhookHandler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		update, err := b.api.HandleUpdate(r)
		if err != nil {
			log.Warn().Str("op", "telegram/serve").Err(err).Msg("Bad webhook payload")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.Dispatch(ctx, *update)
		w.WriteHeader(http.StatusOK)
	})
}
