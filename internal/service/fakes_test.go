package service

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"reelrelay/internal/core/domain"
	"reelrelay/internal/core/ports"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// fakeFeed serves fixed posts per profile and writes a small file on Download.
type fakeFeed struct {
	mu        sync.Mutex
	posts     map[string][]domain.Post
	fetchErr  map[string]error
	fileName  func(post domain.Post) string
	failTimes int   // Download fails this many times per post before succeeding
	failErr   error // error returned while failing; defaults to a transient one
	downloads map[string]int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		posts:     make(map[string][]domain.Post),
		fetchErr:  make(map[string]error),
		downloads: make(map[string]int),
	}
}

func (f *fakeFeed) FetchPosts(_ context.Context, profile string) iter.Seq2[domain.Post, error] {
	return func(yield func(domain.Post, error) bool) {
		for _, p := range f.posts[profile] {
			if !yield(p, nil) {
				return
			}
		}
		if err := f.fetchErr[profile]; err != nil {
			yield(domain.Post{}, err)
		}
	}
}

func (f *fakeFeed) Download(_ context.Context, post domain.Post, dir string) error {
	f.mu.Lock()
	f.downloads[post.ID]++
	n := f.downloads[post.ID]
	f.mu.Unlock()

	if n <= f.failTimes {
		if f.failErr != nil {
			return f.failErr
		}
		return errors.New("connection reset by peer")
	}
	name := post.ID + ".mp4"
	if f.fileName != nil {
		name = f.fileName(post)
	}
	if name == "" {
		return nil
	}
	return os.WriteFile(filepath.Join(dir, name), []byte("video:"+post.ID), 0644)
}

func (f *fakeFeed) totalDownloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.downloads {
		n += c
	}
	return n
}

type upload struct {
	local, folder, remote string
}

// fakeStore records folder resolutions and uploads.
type fakeStore struct {
	mu        sync.Mutex
	resolves  map[string]int
	uploads   []upload
	uploadErr []error // consumed one per Upload call
	delay     time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{resolves: make(map[string]int)}
}

func (s *fakeStore) ResolveOrCreateFolder(_ context.Context, name string) (ports.Folder, error) {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolves[name]++
	return ports.Folder{Name: name, ID: "id-" + name}, nil
}

func (s *fakeStore) Upload(_ context.Context, localPath string, folder ports.Folder, remoteName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.uploadErr) > 0 {
		err := s.uploadErr[0]
		s.uploadErr = s.uploadErr[1:]
		if err != nil {
			return "", err
		}
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	s.uploads = append(s.uploads, upload{local: localPath, folder: folder.ID, remote: remoteName})
	return "https://cdn.example.com/" + folder.Name + "/" + remoteName, nil
}

func (s *fakeStore) resolveCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolves[name]
}

// memProcessed is an in-memory ProcessedStore whose Mark can be made to fail.
type memProcessed struct {
	ids      []string
	markErr  error
	honorCtx bool // Mark fails on a cancelled context, like a database driver
}

func (m *memProcessed) Load(context.Context) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(m.ids))
	for _, id := range m.ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (m *memProcessed) Mark(ctx context.Context, id string) error {
	if m.markErr != nil {
		return m.markErr
	}
	if m.honorCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	m.ids = append(m.ids, id)
	return nil
}

type memOutput struct {
	rows     []domain.OutputRecord
	err      error
	onAppend func()
}

func (o *memOutput) Append(rec domain.OutputRecord) error {
	if o.err != nil {
		return o.err
	}
	o.rows = append(o.rows, rec)
	if o.onAppend != nil {
		o.onAppend()
	}
	return nil
}

type memFailures struct {
	rows []domain.FailureRecord
}

func (f *memFailures) Append(rec domain.FailureRecord) error {
	f.rows = append(f.rows, rec)
	return nil
}

// newNiche lays out a niche in a temp dir with the given input links. A nil
// links slice leaves the input list missing.
func newNiche(t *testing.T, name string, links []string) domain.NicheConfig {
	t.Helper()
	dir := t.TempDir()
	n := domain.NicheConfig{Name: name}.WithDefaults(filepath.Join(dir, "data"), filepath.Join(dir, "staging"))
	if links != nil {
		if err := os.MkdirAll(filepath.Dir(n.InputPath), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(n.InputPath, []byte(strings.Join(links, "\n")+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return n
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
