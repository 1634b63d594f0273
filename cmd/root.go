package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	relayhttp "github.com/tanq16/linkrelay/internal/downloaders/http"
	"github.com/tanq16/linkrelay/internal/router"
	"github.com/tanq16/linkrelay/internal/scheduler"
	"github.com/tanq16/linkrelay/internal/session"
	"github.com/tanq16/linkrelay/internal/utils"
)

var (
	debug   bool
	headers []string
)

var LinkRelayVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "linkrelay",
	Short:   "Linkrelay downloads direct links and relays the files back over Telegram",
	Version: LinkRelayVersion,
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runServe(cmd.Context())
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers for downloads (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newCleanCmd())
}

// loadConfig reads the environment and applies command line overrides. Failing to
// load is fatal for every command. quiet keeps info logs off the terminal unless --debug.
func loadConfig(quiet bool) (utils.Config, io.Closer) {
	cfg, err := utils.LoadConfig()
	if err != nil {
		utils.InitLogger("INFO", "")
		log.Fatal().Str("op", "cmd/root").Err(err).Msg("Invalid configuration")
	}
	if debug {
		cfg.LogLevel = "DEBUG"
	} else if quiet {
		cfg.LogLevel = "WARNING"
	}
	for k, v := range utils.ParseHeaderArgs(headers) {
		cfg.HTTP.Headers[k] = v
	}
	return cfg, utils.InitLogger(cfg.LogLevel, cfg.LogFile)
}

// newPipeline wires the session store, router, downloader and scheduler shared by
// serve and fetch. Only the long-running bot sweeps, since it owns the temp root.
func newPipeline(cfg utils.Config, rec scheduler.Recorder, sweep bool) *scheduler.Scheduler {
	sessions := session.NewManager(cfg.TempDir)
	if err := os.MkdirAll(sessions.Root(), 0755); err != nil {
		log.Fatal().Str("op", "cmd/root").Err(err).Msgf("Cannot create temp dir %s", sessions.Root())
	}
	if sweep {
		if _, err := sessions.Sweep(); err != nil {
			log.Warn().Str("op", "cmd/root").Err(err).Msg("Stale session sweep incomplete")
		}
	}

	downloader := relayhttp.NewDownloader(utils.NewRelayHTTPClient(cfg.HTTP), relayhttp.ConfigFrom(cfg))
	sched := scheduler.New(sessions, router.Default(), scheduler.Options{
		FileLimit:        cfg.TelegramFileLimit,
		ProgressInterval: cfg.ProgressInterval,
	})
	sched.Register(router.Direct, downloader)
	sched.SetRecorder(rec)
	return sched
}
