package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tanq16/linkrelay/internal/output"
	"github.com/tanq16/linkrelay/internal/router"
	"github.com/tanq16/linkrelay/internal/scheduler"
	"github.com/tanq16/linkrelay/internal/utils"
)

func newFetchCmd() *cobra.Command {
	var listFile string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "fetch [URL...] [--list FILE] [--output DIR]",
		Short: "Download links locally through the same pipeline the bot uses",
		Args:  cobra.ArbitraryArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, closer := loadConfig(true)
			defer closer.Close()

			raw := args
			if listFile != "" {
				entries, err := utils.ReadDownloadList(listFile)
				if err != nil {
					output.PrintError("Failed to read URL list file")
					os.Exit(1)
				}
				raw = append(raw, entries...)
			}
			if len(raw) == 0 {
				output.PrintError("No URL or URL list provided")
				os.Exit(1)
			}
			urls := router.ExtractURLs(strings.Join(raw, "\n"))
			if len(urls) == 0 {
				output.PrintError("No valid URLs found")
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sched := newPipeline(cfg, nil, false)
			transfer := output.NewLocalTransfer(outputDir)
			output.PrintHeader(fmt.Sprintf("Fetching %d URL(s)", len(urls)))
			report := sched.Run(ctx, urls, output.NewTerminal(os.Stdout), transfer)

			for _, o := range report.Outcomes {
				if !o.OK() {
					output.PrintWarning(fmt.Sprintf("%s %s", output.StyleSymbols["fail"], o.URL))
				}
			}
			if report.State != scheduler.StateDone {
				os.Exit(1)
			}
			for _, path := range transfer.Saved() {
				output.PrintSuccess(fmt.Sprintf("%s %s", output.StyleSymbols["pass"], path))
			}
		},
	}

	cmd.Flags().StringVarP(&listFile, "list", "l", "", "Path to YAML file listing links")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory the result is copied into")
	return cmd
}
