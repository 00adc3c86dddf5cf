package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tanq16/rangeload/internal/utils"
)

// Serve runs the control API on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, d Downloads) error {
	log := utils.GetLogger("api")
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Control API listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
