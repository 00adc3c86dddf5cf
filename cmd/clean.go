package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangeload/internal/output"
	"github.com/tanq16/rangeload/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [DIR]",
		Short: "Remove leftover segment files from an output directory",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd, false)
			dir := cfg.Download.OutDir
			if len(args) > 0 {
				dir = args[0]
			}
			removed, err := utils.Clean(dir)
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up temporary files: %v", err))
				os.Exit(1)
			}
			if len(removed) == 0 {
				output.PrintWarning("No temporary segment files found in " + dir)
				return
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d temporary segment files", len(removed)))
		},
	}
}
