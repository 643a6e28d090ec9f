package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/journal-sync/internal/config"
	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/alexjbarnes/journal-sync/internal/logging"
	"github.com/alexjbarnes/journal-sync/internal/remote"
	"github.com/alexjbarnes/journal-sync/internal/session"
	"github.com/alexjbarnes/journal-sync/internal/syncer"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("journal-sync starting",
		slog.String("version", Version),
		slog.String("api", cfg.APIBaseURL),
		slog.String("root_folder", cfg.RootFolder),
		slog.Int("concurrency", cfg.SyncConcurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := journal.OpenAt(cfg.StateDB)
	if err != nil {
		return fmt.Errorf("opening entry store: %w", err)
	}
	defer store.Close()

	client := remote.NewClient(cfg.APIBaseURL, cfg.UploadBaseURL, nil)

	sess := session.New(cfg.AccessToken, func() {
		logger.Warn("session expired, set JOURNAL_ACCESS_TOKEN to a fresh token and send SIGHUP to resync")
	})

	orch := syncer.NewOrchestrator(
		store,
		syncer.NewUploader(client, cfg.RootFolder, logger),
		syncer.NewDownloader(client, cfg.RootFolder, cfg.SyncConcurrency, logger),
		sess,
		cfg.SaveDebounce,
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	if token, _ := sess.Token(); token != "" {
		// Login sync: reconcile the remote store before serving.
		g.Go(func() error {
			if err := orch.RunFullSync(gctx); err != nil {
				logger.Error("login sync failed", slog.String("error", err.Error()))
			}

			return nil
		})
	} else {
		logger.Info("no access token configured, starting offline")
	}

	// SIGHUP triggers a manual full sync.
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info("manual sync requested")

				if err := orch.RunFullSync(gctx); err != nil {
					logger.Error("manual sync failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	err = g.Wait()

	// Let any coalesced uploads finish before closing the store.
	orch.Flush()

	logger.Info("journal-sync stopped")

	return err
}
