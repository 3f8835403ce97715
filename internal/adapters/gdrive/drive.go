package gdrive

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"reelrelay/internal/core/ports"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	videoMimeType  = "video/mp4"

	minPause = 2 * time.Second
	maxPause = 5 * time.Second
)

// DriveStore implements ports.ArtifactStore on Google Drive. Uploaded files
// are shared with anyone holding the link.
type DriveStore struct {
	svc    *drive.Service
	logger *log.Logger

	// pause runs after every upload to stay under Drive's write quota.
	pause func(ctx context.Context) error
}

// New authenticates with a service account or OAuth credentials file.
func New(ctx context.Context, credentialsFile string, logger *log.Logger) (*DriveStore, error) {
	if credentialsFile == "" {
		return nil, errors.New("drive credentials file not set")
	}
	if _, err := os.Stat(credentialsFile); err != nil {
		return nil, fmt.Errorf("drive credentials: %w", err)
	}
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return NewWithService(svc, logger), nil
}

// NewWithService wraps an existing Drive client.
func NewWithService(svc *drive.Service, logger *log.Logger) *DriveStore {
	return &DriveStore{svc: svc, logger: logger, pause: randomPause}
}

// ResolveOrCreateFolder returns the first non-trashed folder named name,
// creating one in the drive root if there is none.
func (d *DriveStore) ResolveOrCreateFolder(ctx context.Context, name string) (ports.Folder, error) {
	list, err := d.svc.Files.List().
		Q(FolderQuery(name)).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return ports.Folder{}, fmt.Errorf("search folder %q: %w", name, err)
	}
	if len(list.Files) > 0 {
		return ports.Folder{Name: name, ID: list.Files[0].Id}, nil
	}

	created, err := d.svc.Files.Create(&drive.File{Name: name, MimeType: folderMimeType}).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return ports.Folder{}, fmt.Errorf("create folder %q: %w", name, err)
	}
	d.logger.Info("created drive folder", "name", name, "id", created.Id)
	return ports.Folder{Name: name, ID: created.Id}, nil
}

// Upload stores localPath in folder and makes it publicly readable.
func (d *DriveStore) Upload(ctx context.Context, localPath string, folder ports.Folder, remoteName string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	file, err := d.svc.Files.Create(&drive.File{Name: remoteName, Parents: []string{folder.ID}}).
		Media(f, googleapi.ContentType(videoMimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify(err, folder)
	}

	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if _, err := d.svc.Permissions.Create(file.Id, perm).Context(ctx).Do(); err != nil {
		// An unshared file must not keep the final name.
		if derr := d.svc.Files.Delete(file.Id).Context(ctx).Do(); derr != nil {
			d.logger.Warn("could not remove unshared upload", "id", file.Id, "err", derr)
		}
		return "", fmt.Errorf("share %s: %w", remoteName, err)
	}

	if err := d.pause(ctx); err != nil {
		return "", err
	}
	return DownloadURL(file.Id), nil
}

// FolderQuery builds the Drive search expression for a folder name.
func FolderQuery(name string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(name)
	return fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escaped, folderMimeType)
}

// DownloadURL is the direct-download link of a shared file.
func DownloadURL(id string) string {
	return "https://drive.google.com/uc?export=download&id=" + id
}

func classify(err error, folder ports.Folder) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s (%s): %w", ports.ErrFolderGone, folder.Name, folder.ID, err)
	}
	return fmt.Errorf("upload: %w", err)
}

func randomPause(ctx context.Context) error {
	d := minPause + rand.N(maxPause-minPause)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
