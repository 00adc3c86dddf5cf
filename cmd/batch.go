package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangeload/internal/output"
	"github.com/tanq16/rangeload/internal/utils"
)

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Download every link listed in a YAML file concurrently",
		Long: `Download every link listed in a YAML file concurrently.

The file is a list of entries with a link and an optional name:
  - link: https://example.com/file.iso
    name: file.iso
  - link: s3://bucket/path/archive.tar`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := utils.ReadDownloadList(args[0])
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if len(entries) == 0 {
				output.PrintError("No links found in the batch file")
				os.Exit(1)
			}
			if failed := runDownloads(cmd, entries); failed > 0 {
				fmt.Println()
				output.PrintError(fmt.Sprintf("%d of %d downloads failed", failed, len(entries)))
				os.Exit(1)
			}
		},
	}
}
