package localstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"reelrelay/internal/core/ports"
)

// LocalStorage implements ports.ArtifactStore on a local directory tree,
// typically one served by a static file server.
type LocalStorage struct {
	BaseDir string
	// PublicBaseURL, when set, prefixes returned links instead of file:// URLs.
	PublicBaseURL string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir, publicBaseURL string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir, PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// ResolveOrCreateFolder creates the folder directory if absent.
func (s *LocalStorage) ResolveOrCreateFolder(_ context.Context, name string) (ports.Folder, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return ports.Folder{}, fmt.Errorf("invalid folder name %q", name)
	}
	path := filepath.Join(s.BaseDir, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return ports.Folder{}, fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return ports.Folder{Name: name, ID: path}, nil
}

// Upload copies localPath into folder as remoteName.
func (s *LocalStorage) Upload(_ context.Context, localPath string, folder ports.Folder, remoteName string) (string, error) {
	if _, err := os.Stat(folder.ID); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ports.ErrFolderGone, folder.ID)
		}
		return "", err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	dst := filepath.Join(folder.ID, remoteName)
	file, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", dst, err)
	}
	if _, err := io.Copy(file, src); err != nil {
		file.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return s.link(folder.Name, remoteName, dst)
}

func (s *LocalStorage) link(folder, name, path string) (string, error) {
	if s.PublicBaseURL != "" {
		return s.PublicBaseURL + "/" + url.PathEscape(folder) + "/" + url.PathEscape(name), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
