package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"reelrelay/internal/core/domain"
	"reelrelay/internal/core/ports"
	"reelrelay/internal/ledger"
)

// ErrLedgerInit wraps failures to open or load a niche's ledgers. The
// scheduler stops on it instead of risking silent data loss.
var ErrLedgerInit = errors.New("niche ledger initialization failed")

// ProcessedOpener returns the processed-id store of a niche.
type ProcessedOpener func(niche domain.NicheConfig) (ports.ProcessedStore, error)

// OpenProcessedFile is the default ProcessedOpener, backed by the niche's
// newline-delimited ledger file.
func OpenProcessedFile(niche domain.NicheConfig) (ports.ProcessedStore, error) {
	return ledger.OpenProcessed(niche.ProcessedPath)
}

// RunReport summarizes one niche run.
type RunReport struct {
	RunID      string
	Niche      string
	Candidates int
	PipelineStats
}

// Runner processes every new video post of one niche at a time.
type Runner struct {
	feed          ports.SourceFeed
	store         ports.ArtifactStore
	openProcessed ProcessedOpener
	policy        RetryPolicy
	logger        *log.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a Runner. A nil openProcessed uses OpenProcessedFile.
func NewRunner(
	feed ports.SourceFeed,
	store ports.ArtifactStore,
	openProcessed ProcessedOpener,
	policy RetryPolicy,
	logger *log.Logger,
) *Runner {
	if openProcessed == nil {
		openProcessed = OpenProcessedFile
	}
	return &Runner{
		feed:          feed,
		store:         store,
		openProcessed: openProcessed,
		policy:        policy,
		logger:        logger,
		sleep:         sleepCtx,
	}
}

// Run delivers the new video posts of niche. The report's Candidates is the
// number of posts handed to the pipeline, not the number delivered. A missing
// input list skips the niche without error.
func (r *Runner) Run(ctx context.Context, niche domain.NicheConfig) (RunReport, error) {
	runID := uuid.New().String()
	report := RunReport{RunID: runID, Niche: niche.Name}
	logger := r.logger.With("niche", niche.Name, "run", runID[:8])

	if _, err := os.Stat(niche.InputPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("input list missing, skipping niche", "path", niche.InputPath)
		} else {
			logger.Error("input list unreadable, skipping niche", "path", niche.InputPath, "err", err)
		}
		return report, nil
	}
	links, err := ledger.ReadProfiles(niche.InputPath)
	if err != nil {
		logger.Error("input list unreadable, skipping niche", "path", niche.InputPath, "err", err)
		return report, nil
	}

	store, err := r.openProcessed(niche)
	if err != nil {
		return report, fmt.Errorf("%w: %s: %w", ErrLedgerInit, niche.Name, err)
	}
	processed, err := LoadProcessedSet(ctx, store)
	if err != nil {
		return report, fmt.Errorf("%w: %s: %w", ErrLedgerInit, niche.Name, err)
	}
	output, err := ledger.OpenOutput(niche.OutputPath)
	if err != nil {
		return report, fmt.Errorf("%w: %s: %w", ErrLedgerInit, niche.Name, err)
	}
	failures, err := ledger.OpenFailures(niche.FailurePath)
	if err != nil {
		return report, fmt.Errorf("%w: %s: %w", ErrLedgerInit, niche.Name, err)
	}
	logger.Info("starting niche", "profiles", len(links), "already_processed", processed.Len())

	posts, err := r.collect(ctx, links, processed, logger)
	report.Candidates = len(posts)
	if err != nil {
		return report, err
	}
	logger.Info("collected new videos", "count", len(posts))

	pipeline := NewPipeline(r.feed, r.store, NewFolderCache(r.store), NewSequence(), output, failures, r.policy, logger)
	pipeline.sleep = r.sleep
	for _, post := range posts {
		if ctx.Err() != nil {
			break
		}
		pipeline.Process(ctx, post, niche, processed)
	}

	report.PipelineStats = pipeline.Stats()
	logger.Info("niche finished",
		"candidates", report.Candidates,
		"committed", report.Committed,
		"failed", report.Failed,
	)
	return report, ctx.Err()
}

// collect walks every profile and keeps unseen video posts in discovery
// order. A profile whose feed errors keeps the posts yielded before the error.
func (r *Runner) collect(ctx context.Context, links []string, processed *ProcessedSet, logger *log.Logger) ([]domain.Post, error) {
	var posts []domain.Post
	seen := make(map[string]struct{})

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return posts, err
		}
		handle := ledger.ProfileHandle(link)
		if handle == "" {
			logger.Warn("ignoring unparsable profile link", "link", link)
			continue
		}

		found := 0
		for post, err := range r.feed.FetchPosts(ctx, handle) {
			if err != nil {
				logger.Error("profile fetch failed", "profile", handle, "err", err)
				break
			}
			if !post.IsVideo || processed.Contains(post.ID) {
				continue
			}
			if _, dup := seen[post.ID]; dup {
				continue
			}
			if post.Owner == "" {
				post.Owner = handle
			}
			seen[post.ID] = struct{}{}
			posts = append(posts, post)
			found++
		}
		logger.Debug("profile scanned", "profile", handle, "new_videos", found)
	}
	return posts, nil
}
