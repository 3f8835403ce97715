package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/charmbracelet/log"

	"reelrelay/internal/adapters/apify"
	"reelrelay/internal/adapters/downloader"
	"reelrelay/internal/adapters/gdrive"
	"reelrelay/internal/adapters/localstorage"
	"reelrelay/internal/adapters/s3store"
	"reelrelay/internal/adapters/sqlite"
	"reelrelay/internal/adapters/ytdlp"
	"reelrelay/internal/config"
	"reelrelay/internal/core/ports"
	"reelrelay/internal/service"
)

func buildFeed(cfg *config.Config, logger *log.Logger) (ports.SourceFeed, error) {
	var pages apify.PageFetcher
	bin := cfg.Source.YtDlpPath
	if bin == "" {
		bin = "yt-dlp"
	}
	if _, err := exec.LookPath(bin); err == nil {
		pages = ytdlp.NewYtDlpDownloader(cfg.Source.YtDlpPath, cfg.Source.CookiesFile)
	} else {
		logger.Warn("yt-dlp not found, posts without a direct media URL will fail", "path", bin)
	}

	return apify.NewInstagramFeed(apify.Options{
		Token:             cfg.Source.ApifyToken,
		Actor:             cfg.Source.Actor,
		ResultsLimit:      cfg.Source.ResultsLimit,
		RequestsPerMinute: cfg.Source.RequestsPerMinute,
	}, downloader.NewHTTPDownloader(cfg.Source.DownloadTimeout), pages, logger.With("component", "apify"))
}

func buildStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (ports.ArtifactStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendDrive:
		return gdrive.New(ctx, cfg.Storage.Drive.CredentialsFile, logger.With("component", "drive"))
	case config.BackendS3:
		s3 := cfg.Storage.S3
		return s3store.New(ctx, s3store.Options{
			Bucket:        s3.Bucket,
			Prefix:        s3.Prefix,
			Region:        s3.Region,
			Endpoint:      s3.Endpoint,
			PublicBaseURL: s3.PublicBaseURL,
			PresignExpiry: s3.PresignExpiry,
			PublicRead:    s3.PublicRead,
		}, logger.With("component", "s3"))
	case config.BackendLocal:
		return localstorage.NewLocalStorage(cfg.Storage.Local.Dir, cfg.Storage.Local.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildProcessedOpener returns the runner's processed ledger opener and a
// closer for whatever it holds open.
func buildProcessedOpener(cfg *config.Config) (service.ProcessedOpener, io.Closer, error) {
	if cfg.Ledger.ProcessedBackend != config.LedgerSQLite {
		return service.OpenProcessedFile, nopCloser{}, nil
	}
	db, err := sqlite.Open(cfg.Ledger.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening processed database: %w", err)
	}
	return db.Opener(), db, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
