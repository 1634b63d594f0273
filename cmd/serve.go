package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/linkrelay/internal/metrics"
	"github.com/tanq16/linkrelay/internal/server"
	"github.com/tanq16/linkrelay/internal/telegram"
	"github.com/tanq16/linkrelay/internal/utils"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot (long polling, or a webhook when WEBHOOK_URL is set)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) {
	cfg, closer := loadConfig(false)
	defer closer.Close()
	if err := cfg.RequireToken(); err != nil {
		log.Fatal().Str("op", "cmd/serve").Msgf("%s. Exiting.", err)
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	sched := newPipeline(cfg, m, true)

	tgClient := utils.NewRelayHTTPClient(utils.HTTPClientConfig{
		ReadTimeout:   utils.UploadTimeout * time.Second,
		WriteTimeout:  utils.UploadTimeout * time.Second,
		KATimeout:     cfg.HTTP.KATimeout,
		ProxyURL:      cfg.HTTP.ProxyURL,
		ProxyUsername: cfg.HTTP.ProxyUsername,
		ProxyPassword: cfg.HTTP.ProxyPassword,
		UserAgent:     cfg.HTTP.UserAgent,
	})
	api, err := telegram.NewAPI(cfg.BotToken, tgClient.StdClient())
	if err != nil {
		log.Fatal().Str("op", "cmd/serve").Err(err).Msg("Bot startup failed")
	}
	bot := telegram.NewBot(api, sched, tgClient)
	bot.SetMetrics(m)
	if err := bot.RegisterCommands(); err != nil {
		log.Warn().Str("op", "cmd/serve").Err(err).Msg("Command list not published")
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return server.Serve(gctx, cfg.MetricsAddr, server.NewRouter(server.Routes{Metrics: metrics.Handler(reg)}))
		})
	}
	if cfg.UsesWebhook() {
		if err := bot.SetWebhook(cfg.WebhookURL + cfg.WebhookPath); err != nil {
			log.Fatal().Str("op", "cmd/serve").Err(err).Msg("Webhook setup failed")
		}
		router := server.NewRouter(server.Routes{
			WebhookPath: cfg.WebhookPath,
			Webhook:     bot.WebhookHandler(gctx),
			Metrics:     metrics.Handler(reg),
		})
		g.Go(func() error {
			defer bot.Wait()
			return server.Serve(gctx, fmt.Sprintf(":%d", cfg.Port), router)
		})
	} else {
		g.Go(func() error {
			return bot.Poll(gctx)
		})
	}

	log.Info().Str("op", "cmd/serve").Msg("Bot is running")
	if err := g.Wait(); err != nil {
		log.Fatal().Str("op", "cmd/serve").Err(err).Msg("Bot stopped with error")
	}
	log.Info().Str("op", "cmd/serve").Msg("Bot stopped")
}
