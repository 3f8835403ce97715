package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// YtDlpDownloader drives the local yt-dlp binary.
type YtDlpDownloader struct {
	binaryPath  string
	cookiesFile string
	timeout     time.Duration
}

// NewYtDlpDownloader creates a new downloader. An empty binaryPath looks for
// yt-dlp in the working directory, then on PATH.
func NewYtDlpDownloader(binaryPath, cookiesFile string) *YtDlpDownloader {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
		if _, err := os.Stat("yt-dlp.exe"); err == nil {
			binaryPath = ".\\yt-dlp.exe"
		}
	}
	return &YtDlpDownloader{
		binaryPath:  binaryPath,
		cookiesFile: cookiesFile,
		timeout:     10 * time.Minute,
	}
}

// DownloadArgs builds the yt-dlp arguments that save pageURL into dir as
// <id>.<ext>.
func (d *YtDlpDownloader) DownloadArgs(pageURL, dir string) []string {
	args := []string{
		"-f", "b[ext=mp4]/b",
		"--no-warnings",
		"--no-playlist",
		"--no-mtime",
		"--no-part",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
	}
	if d.cookiesFile != "" {
		args = append(args, "--cookies", d.cookiesFile)
	}
	return append(args, pageURL)
}

// DownloadTo saves the media of pageURL into dir. yt-dlp picks the file
// name; callers locate the result themselves.
func (d *YtDlpDownloader) DownloadTo(ctx context.Context, pageURL, dir string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.binaryPath, d.DownloadArgs(pageURL, dir)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
