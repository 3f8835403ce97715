package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"reelrelay/internal/core/domain"
	"reelrelay/internal/core/ports"
	"reelrelay/internal/textfmt"
)

const (
	DefaultAttempts = 3
	DefaultBackoff  = 2 * time.Second
)

// OutputAppender commits output records.
type OutputAppender interface {
	Append(rec domain.OutputRecord) error
}

// FailureAppender records posts that could not be delivered.
type FailureAppender interface {
	Append(rec domain.FailureRecord) error
}

// RetryPolicy bounds the attempts made for one post.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// PipelineStats counts what a pipeline did during one niche run.
type PipelineStats struct {
	Committed int
	Failed    int
	Skipped   int
}

// Pipeline delivers single posts: download, locate, upload, record, mark
// processed and clean up. One Pipeline serves one niche run and must not be
// used concurrently.
type Pipeline struct {
	feed     ports.SourceFeed
	store    ports.ArtifactStore
	folders  *FolderCache
	seq      *Sequence
	output   OutputAppender
	failures FailureAppender
	policy   RetryPolicy
	logger   *log.Logger

	sleep func(ctx context.Context, d time.Duration) error
	stats PipelineStats
}

// NewPipeline wires a pipeline for one niche run.
func NewPipeline(
	feed ports.SourceFeed,
	store ports.ArtifactStore,
	folders *FolderCache,
	seq *Sequence,
	output OutputAppender,
	failures FailureAppender,
	policy RetryPolicy,
	logger *log.Logger,
) *Pipeline {
	return &Pipeline{
		feed:     feed,
		store:    store,
		folders:  folders,
		seq:      seq,
		output:   output,
		failures: failures,
		policy:   policy.withDefaults(),
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Stats returns the counters accumulated so far.
func (p *Pipeline) Stats() PipelineStats {
	return p.stats
}

// Process delivers post. Failures are recorded in the failure ledger, never
// returned. If ctx is cancelled between attempts the post is left untouched
// so the next run picks it up again.
func (p *Pipeline) Process(ctx context.Context, post domain.Post, niche domain.NicheConfig, processed *ProcessedSet) {
	if processed.Contains(post.ID) {
		p.stats.Skipped++
		return
	}

	ordinal := p.seq.Next()
	logger := p.logger.With("post", post.ID, "owner", post.Owner, "ordinal", fmt.Sprintf("%03d", ordinal))

	var last domain.Outcome
	for attempt := 1; attempt <= p.policy.Attempts; attempt++ {
		if ctx.Err() != nil {
			logger.Warn("cancelled before attempt", "attempt", attempt)
			return
		}

		last = p.attempt(ctx, post, niche, ordinal, processed, logger)
		switch last.Kind {
		case domain.Success:
			p.stats.Committed++
			logger.Info("delivered", "file", last.Record.RemoteFilename, "url", last.Record.RemoteURL)
			return
		case domain.PermanentFailure:
			logger.Error("attempt failed permanently", "attempt", attempt, "err", last.Err)
		default:
			logger.Warn("attempt failed", "attempt", attempt, "of", p.policy.Attempts, "err", last.Err)
		}

		if ctx.Err() != nil {
			logger.Warn("cancelled after attempt", "attempt", attempt)
			return
		}
		if last.Kind == domain.PermanentFailure || attempt == p.policy.Attempts {
			break
		}
		if err := p.sleep(ctx, p.policy.Backoff); err != nil {
			logger.Warn("cancelled during backoff", "attempt", attempt)
			return
		}
	}

	p.stats.Failed++
	clearStaging(niche.StagingDir, logger)
	rec := domain.FailureRecord{Owner: post.Owner, PostID: post.ID, LastError: last.Err.Error()}
	if err := p.failures.Append(rec); err != nil {
		logger.Error("could not record failure", "err", err, "cause", last.Err)
		return
	}
	logger.Error("giving up", "err", last.Err)
}

// attempt runs one pass. The output append is the commit point: failures
// before it are returned for retry, failures after it are only logged.
func (p *Pipeline) attempt(
	ctx context.Context,
	post domain.Post,
	niche domain.NicheConfig,
	ordinal int,
	processed *ProcessedSet,
	logger *log.Logger,
) domain.Outcome {
	if err := os.MkdirAll(niche.StagingDir, 0755); err != nil {
		return domain.Failed(fmt.Errorf("create staging dir: %w", err))
	}
	// Leftovers from an earlier post or attempt must never be located as
	// this post's media.
	clearStaging(niche.StagingDir, logger)

	logger.Debug("downloading", "dir", niche.StagingDir)
	if err := p.feed.Download(ctx, post, niche.StagingDir); err != nil {
		return domain.Failed(fmt.Errorf("download: %w", err))
	}

	local, err := LocateArtifact(niche.StagingDir, post.ID)
	if err != nil {
		return domain.Failed(err)
	}

	folder, err := p.folders.Resolve(ctx, niche.StorageFolder)
	if err != nil {
		return domain.Failed(err)
	}

	remoteName := domain.RemoteName(ordinal, post.Owner, post.ID)
	logger.Debug("uploading", "local", local, "remote", remoteName)
	url, err := p.store.Upload(ctx, local, folder, remoteName)
	if err != nil {
		if errors.Is(err, ports.ErrFolderGone) {
			p.folders.Forget(niche.StorageFolder)
		}
		return domain.Failed(fmt.Errorf("upload: %w", err))
	}

	pub := textfmt.Format(post.Caption)
	rec := domain.OutputRecord{
		Ordinal:            ordinal,
		Owner:              post.Owner,
		Title:              textfmt.PlainTitle(post.Title, post.Caption),
		StorageFolder:      niche.StorageFolder,
		RemoteFilename:     remoteName,
		RemoteURL:          url,
		PublishTitle:       pub.Title,
		PublishDescription: pub.Description,
		PublishMediaURL:    url,
	}
	if err := p.output.Append(rec); err != nil {
		return domain.Failed(fmt.Errorf("commit output row: %w", err))
	}

	// Committed. A crash or error from here on means the post is delivered
	// again next run. Cancellation must not interrupt the mark.
	if err := processed.Add(context.WithoutCancel(ctx), post.ID); err != nil {
		logger.Error("committed but not marked processed; will be redelivered next run", "err", err)
	}
	if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
		logger.Warn("cleanup failed", "file", local, "err", err)
	}
	return domain.Succeeded(rec)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
