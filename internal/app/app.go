package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/YannKr/imgrestore"
	"github.com/YannKr/imgrestore/internal/cleanup"
	"github.com/YannKr/imgrestore/internal/config"
	"github.com/YannKr/imgrestore/internal/db"
	"github.com/YannKr/imgrestore/internal/diskstat"
	"github.com/YannKr/imgrestore/internal/handler"
)

func Run(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "runs"), 0755); err != nil {
		return err
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, imgrestore.MigrationFS); err != nil {
		return err
	}
	slog.Info("database ready")

	cleaner := &cleanup.Cleaner{
		DB:        database,
		DataDir:   cfg.DataDir,
		Interval:  cfg.CleanupInterval(),
		Retention: cfg.Retention(),
	}
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// Restoration is CPU bound: 6 requests/minute per client, burst of 3.
	restoreRL := handler.NewRateLimiter(rate.Limit(6.0/60.0), 3)
	defer restoreRL.Stop()

	diskCache := diskstat.New(cfg.DataDir, 60*time.Second)
	diskCache.Start()
	defer diskCache.Stop()

	h, err := handler.New(database, cfg)
	if err != nil {
		return err
	}
	h.DiskCache = diskCache

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h.Routes(restoreRL),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", cfg.ListenAddr, "wavelet", cfg.Wavelet, "level", cfg.WaveletLevel)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
