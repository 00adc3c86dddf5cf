package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangeload/internal/config"
	"github.com/tanq16/rangeload/internal/downloader"
	"github.com/tanq16/rangeload/internal/output"
	"github.com/tanq16/rangeload/internal/source"
	"github.com/tanq16/rangeload/internal/utils"
)

// loadConfig merges the config file, environment and flags, then sets up
// logging. With a live display the log goes to a file.
func loadConfig(cmd *cobra.Command, live bool) *config.Config {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
	if live {
		logFile, err := utils.OpenLogFile(cfg.Log.File)
		if err != nil {
			output.PrintError(fmt.Sprintf("Error opening log file: %v", err))
			os.Exit(1)
		}
		utils.InitLogger(cfg.Log.Debug, logFile)
	} else {
		utils.InitLogger(cfg.Log.Debug, nil)
	}
	if cfg.HTTP.UserAgent == "randomize" {
		cfg.HTTP.UserAgent = utils.GetRandomUserAgent()
	}
	// Credentials embedded in the proxy URL
	parsedProxy, err := u.Parse(cfg.HTTP.Proxy)
	if err == nil && parsedProxy.User != nil && cfg.HTTP.ProxyUsername == "" {
		cfg.HTTP.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			cfg.HTTP.ProxyPassword = password
		}
		parsedProxy.User = nil
		cfg.HTTP.Proxy = parsedProxy.String()
	}
	return cfg
}

func newResolver(cfg *config.Config) *source.Factory {
	return source.NewFactory(utils.NewRangeHTTPClient(cfg.HTTPClient()), cfg.S3Client())
}

// runDownloads enqueues every entry, renders progress until all of them
// settled and returns the number of downloads that did not succeed.
func runDownloads(cmd *cobra.Command, entries []utils.DownloadEntry) int {
	cfg := loadConfig(cmd, true)
	log := utils.GetLogger("cli")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := downloader.NewState()
	display := output.NewDisplay(state, os.Stdout)
	m := downloader.NewManager(cfg.ManagerOptions(), newResolver(cfg), state, display)
	m.Start(ctx)
	display.Start()

	failed := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, entry := range entries {
		id, err := m.Enqueue(entry.URL, entry.Name)
		if err != nil {
			log.Error().Err(err).Str("url", entry.URL).Msg("Could not enqueue download")
			display.Notify(downloader.Notification{Level: downloader.NotifyError, Name: entry.URL, Segment: -1, Message: err.Error()})
			mu.Lock()
			failed++
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			row, err := awaitEntry(ctx, m, id, cfg.Download.Restarts)
			if err != nil || row.Status != downloader.StatusSucceeded {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	display.RequestRefresh()
	display.Stop()
	m.Shutdown()
	return failed
}

// awaitEntry waits for the entry to settle and restarts its failed segments
// up to maxRestarts times.
func awaitEntry(ctx context.Context, m *downloader.Manager, id downloader.EntryID, maxRestarts int) (downloader.Download, error) {
	log := utils.GetLogger("cli").With().Str("entry", id.Short()).Logger()
	attempt := 0
	for {
		row, err := m.State().WaitFor(ctx, id, func(d downloader.Download, ok bool) bool {
			return !ok || (d.Restarts == attempt && d.Status.Terminal())
		})
		if err != nil {
			return row, err
		}
		if row.Status != downloader.StatusPartiallyFailed || attempt >= maxRestarts {
			return row, nil
		}
		attempt++
		log.Info().Int("attempt", attempt).Int("failed", row.FailedSegments()).Msg("Restarting failed segments")
		if err := m.Restart(id); err != nil {
			return row, err
		}
	}
}
