package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangeload/internal/api"
	"github.com/tanq16/rangeload/internal/downloader"
	"github.com/tanq16/rangeload/internal/output"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [--addr ADDR]",
		Short: "Run the HTTP control API for enqueueing and managing downloads",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd, false)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			m := downloader.NewManager(cfg.ManagerOptions(), newResolver(cfg), downloader.NewState(), nil)
			m.Start(ctx)
			defer m.Shutdown()
			output.PrintHeader("rangeload control API")
			output.PrintInfo("Listening on " + cfg.Server.Addr)
			if err := api.Serve(ctx, cfg.Server.Addr, m); err != nil {
				output.PrintError(err.Error())
				m.Shutdown()
				os.Exit(1)
			}
		},
	}
	cmd.Flags().String("addr", ":8080", "Listen address for the control API")
	return cmd
}
