package ports

import (
	"context"
	"errors"
	"iter"

	"reelrelay/internal/core/domain"
)

// ErrFolderGone is returned by an ArtifactStore when a previously resolved
// folder no longer exists on the backend.
var ErrFolderGone = errors.New("storage folder no longer exists")

// SourceFeed defines the contract for discovering and materializing posts.
type SourceFeed interface {
	// FetchPosts lazily yields the posts of a profile in discovery order.
	// A non-nil error ends the sequence.
	FetchPosts(ctx context.Context, profile string) iter.Seq2[domain.Post, error]

	// Download writes the post's media into dir. The resulting filename is
	// not guaranteed to match the post ID.
	Download(ctx context.Context, post domain.Post, dir string) error
}

// Folder is a resolved storage location.
type Folder struct {
	Name string
	ID   string // backend handle: Drive folder ID, S3 key prefix, directory path
}

// ArtifactStore defines the contract for publishing local files.
type ArtifactStore interface {
	// ResolveOrCreateFolder looks up a non-deleted folder by exact name and
	// creates it if absent.
	ResolveOrCreateFolder(ctx context.Context, name string) (Folder, error)

	// Upload places localPath into folder as remoteName and returns a URL
	// that an unauthenticated client can fetch.
	Upload(ctx context.Context, localPath string, folder Folder, remoteName string) (string, error)
}

// ProcessedStore persists the ids of completed posts for one niche.
type ProcessedStore interface {
	// Load returns every id recorded so far.
	Load(ctx context.Context) (map[string]struct{}, error)

	// Mark durably records id as processed.
	Mark(ctx context.Context, id string) error
}
