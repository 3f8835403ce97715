package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelrelay/internal/service"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestFormatCommand(t *testing.T) {
	out, err := execute(t, "format", "Great clip #fun #wow")
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if !strings.Contains(out, "Title:       Great clip") || !strings.Contains(out, "Description: #fun #wow") {
		t.Errorf("output = %q", out)
	}
}

func TestNichesCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	cfg := "data_dir: /srv/data\nstorage:\n  backend: local\nniches:\n  - name: cats\n"
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "niches", "--config", path)
	if err != nil {
		t.Fatalf("niches: %v", err)
	}
	for _, want := range []string{"cats", filepath.Join("/srv/data", "cats", "links.txt"), "cats_reels"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReports(t *testing.T) {
	var buf bytes.Buffer
	printReports(&buf, []service.RunReport{{
		RunID:         "0123456789abcdef",
		Niche:         "cats",
		Candidates:    4,
		PipelineStats: service.PipelineStats{Committed: 3, Failed: 1},
	}})
	out := buf.String()
	if !strings.Contains(out, "cats") || !strings.Contains(out, "01234567") || strings.Contains(out, "89abcdef") {
		t.Errorf("report table = %q", out)
	}
}

func TestFailuresCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	cfg := "data_dir: " + filepath.Join(dir, "data") + "\nstorage:\n  backend: local\nniches:\n  - name: cats\n  - name: dogs\n"
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	failures := filepath.Join(dir, "data", "cats", "failed_posts.txt")
	if err := os.MkdirAll(filepath.Dir(failures), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(failures, []byte("alice,AAA,upload: quota, retry later\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "failures", "--config", path)
	if err != nil {
		t.Fatalf("failures: %v", err)
	}
	for _, want := range []string{"cats", "alice", "AAA", "upload: quota, retry later"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
