package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangeload/internal/output"
	"github.com/tanq16/rangeload/internal/utils"
)

var (
	configPath     string
	debug          bool
	outputDir      string
	tempDir        string
	connections    int
	bufferSize     int
	restarts       int
	timeout        time.Duration
	kaTimeout      time.Duration
	userAgent      string
	proxyURL       string
	proxyUsername  string
	proxyPassword  string
	headers        []string
	highThreadMode bool
	s3Profile      string
	s3Region       string
	s3Endpoint     string
)

var RangeloadVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "rangeload [URL]",
	Short:   "rangeload downloads files over concurrent byte ranges",
	Version: RangeloadVersion,
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			return
		}
		name, _ := cmd.Flags().GetString("output")
		entries := []utils.DownloadEntry{{URL: args[0], Name: name}}
		if failed := runDownloads(cmd, entries); failed > 0 {
			fmt.Println()
			output.PrintError("Encountered failed download(s)")
			os.Exit(1)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "d", ".", "Directory for downloaded files")
	rootCmd.PersistentFlags().StringVar(&tempDir, "temp-dir", "", "Directory for segment files (defaults to OUTPUT_DIR/"+utils.TempDirName+")")
	rootCmd.PersistentFlags().IntVarP(&connections, "connections", "c", 0, "Segments per download (defaults to the number of CPUs)")
	rootCmd.PersistentFlags().IntVar(&bufferSize, "buffer-size", utils.DefaultBufferSize, "Read buffer size per segment in bytes")
	rootCmd.PersistentFlags().IntVar(&restarts, "restarts", 0, "Restart failed segments up to this many times")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 60*time.Second, "Connection and response header timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for idle connections (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent (use 'randomize' for a random browser agent)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().BoolVar(&highThreadMode, "high-thread-mode", false, "Tune sockets for many concurrent connections")
	rootCmd.PersistentFlags().StringVar(&s3Profile, "s3-profile", "", "AWS profile for s3:// URLs")
	rootCmd.PersistentFlags().StringVar(&s3Region, "s3-region", "", "AWS region for s3:// URLs")
	rootCmd.PersistentFlags().StringVar(&s3Endpoint, "s3-endpoint", "", "Custom endpoint for S3-compatible stores")

	rootCmd.Flags().StringP("output", "o", "", "Output file name (inferred from the URL if not provided)")

	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCleanCmd())
}
