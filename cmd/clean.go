package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/linkrelay/internal/output"
	"github.com/tanq16/linkrelay/internal/session"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover session directories from TEMP_DIR",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, closer := loadConfig(true)
			defer closer.Close()
			removed, err := session.NewManager(cfg.TempDir).Sweep()
			if err != nil {
				output.PrintError("Error cleaning up temporary files")
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d session director(ies) from %s", removed, cfg.TempDir))
		},
	}
}
