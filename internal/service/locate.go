package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"reelrelay/internal/core/domain"
)

var videoExts = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".webm": true,
	".mkv":  true,
}

// LocateArtifact finds the downloaded media for postID in dir. It tries the
// expected <id>.mp4 name, then any video file whose name contains the id,
// then the most recently modified video file.
func LocateArtifact(dir, postID string) (string, error) {
	exact := filepath.Join(dir, postID+".mp4")
	if info, err := os.Stat(exact); err == nil && info.Mode().IsRegular() {
		return exact, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: read staging dir %s: %v", domain.ErrArtifactNotFound, dir, err)
	}

	var (
		matches   []string
		newest    string
		newestMod time.Time
	)
	for _, e := range entries {
		if !e.Type().IsRegular() || !videoExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		if strings.Contains(e.Name(), postID) {
			matches = append(matches, e.Name())
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = e.Name(), info.ModTime()
		}
	}

	if len(matches) > 0 {
		sort.Strings(matches)
		return filepath.Join(dir, matches[0]), nil
	}
	if newest != "" {
		return filepath.Join(dir, newest), nil
	}
	return "", fmt.Errorf("%w: no video for %s in %s", domain.ErrArtifactNotFound, postID, dir)
}

// clearStaging removes every regular file in dir. A niche's staging
// directory only ever holds the media of the post in flight.
func clearStaging(dir string, logger *log.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("could not clear staged file", "file", path, "err", err)
		}
	}
}
