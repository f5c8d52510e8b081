package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"driveshare/config"
	"driveshare/core/store"
	"driveshare/core/utils"
)

const shutdownTimeout = 15 * time.Second

// Run opens the database, applies migrations and serves until ctx is done.
func Run(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	rt, err := Compose(ctx, cfg, db, logger, Options{})
	if err != nil {
		return err
	}
	for _, w := range rt.Workers {
		if err := w.StartWithContext(ctx); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           rt.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, w := range rt.Workers {
		if err := w.StopWithContext(shutdownCtx); err != nil {
			logger.Errorf("stop worker: %v", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Printf("server stopped")
	return nil
}
