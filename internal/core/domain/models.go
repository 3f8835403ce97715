package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
)

// ErrArtifactNotFound is returned when a download finished but no media file
// could be located in the staging directory.
var ErrArtifactNotFound = errors.New("artifact not found")

// Post is a single discovered post as produced by a SourceFeed.
type Post struct {
	ID       string `json:"id"` // shortcode
	Owner    string `json:"owner"`
	IsVideo  bool   `json:"is_video"`
	Title    string `json:"title,omitempty"`
	Caption  string `json:"caption,omitempty"`
	PageURL  string `json:"page_url,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
}

// NicheConfig describes one independently tracked batch of profiles.
type NicheConfig struct {
	Name          string `yaml:"name"`
	InputPath     string `yaml:"input"`
	OutputPath    string `yaml:"output"`
	ProcessedPath string `yaml:"processed"`
	FailurePath   string `yaml:"failures"`
	StorageFolder string `yaml:"storage_folder"`
	StagingDir    string `yaml:"staging_dir"`
}

// WithDefaults fills empty paths from the niche name. dataDir holds the
// per-niche ledgers and stagingRoot the per-niche download directories.
func (n NicheConfig) WithDefaults(dataDir, stagingRoot string) NicheConfig {
	base := filepath.Join(dataDir, n.Name)
	if n.InputPath == "" {
		n.InputPath = filepath.Join(base, "links.txt")
	}
	if n.OutputPath == "" {
		n.OutputPath = filepath.Join(base, "reels_links.csv")
	}
	if n.ProcessedPath == "" {
		n.ProcessedPath = filepath.Join(base, "processed_posts.txt")
	}
	if n.FailurePath == "" {
		n.FailurePath = filepath.Join(base, "failed_posts.txt")
	}
	if n.StorageFolder == "" {
		n.StorageFolder = n.Name + "_reels"
	}
	if n.StagingDir == "" {
		n.StagingDir = filepath.Join(stagingRoot, n.Name)
	}
	return n
}

// OutputRecord is one row of a niche's output table.
type OutputRecord struct {
	Ordinal            int
	Owner              string
	Title              string
	StorageFolder      string
	RemoteFilename     string
	RemoteURL          string
	PublishTitle       string
	PublishDescription string
	PublishLink        string // always empty
	PublishBoard       string // always empty
	PublishMediaURL    string
}

// Row returns the record in output table column order.
func (r OutputRecord) Row() []string {
	return []string{
		strconv.Itoa(r.Ordinal),
		r.Owner,
		r.Title,
		r.StorageFolder,
		r.RemoteFilename,
		r.RemoteURL,
		r.PublishTitle,
		r.PublishDescription,
		r.PublishLink,
		r.PublishBoard,
		r.PublishMediaURL,
	}
}

// OutputHeader is the fixed header of the output table.
var OutputHeader = []string{
	"No.",
	"Username",
	"Video Title",
	"Storage Folder",
	"Filename",
	"Remote Link",
	"Pinterest Title",
	"Pinterest Description",
	"Pinterest Link",
	"Pinterest Board",
	"Pinterest Media URL",
}

// FailureRecord is appended once a post has exhausted its retries.
type FailureRecord struct {
	Owner     string
	PostID    string
	LastError string
}

// RemoteName builds the deterministic object name for an uploaded post.
func RemoteName(ordinal int, owner, postID string) string {
	return fmt.Sprintf("%03d_%s_%s.mp4", ordinal, owner, postID)
}

// OutcomeKind tags the result of a single pipeline attempt.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	RetryableFailure
	PermanentFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable"
	case PermanentFailure:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one attempt. Record is set only on Success,
// Err only on failures.
type Outcome struct {
	Kind   OutcomeKind
	Record OutputRecord
	Err    error
}

// Succeeded wraps a committed record.
func Succeeded(rec OutputRecord) Outcome {
	return Outcome{Kind: Success, Record: rec}
}

// Failed classifies err as retryable unless it was marked permanent.
func Failed(err error) Outcome {
	if IsPermanent(err) {
		return Outcome{Kind: PermanentFailure, Err: err}
	}
	return Outcome{Kind: RetryableFailure, Err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the pipeline stops retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
