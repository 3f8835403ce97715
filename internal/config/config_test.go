package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelrelay/internal/core/domain"
)

const sample = `
data_dir: /srv/relay
niche_delay: 30m
retry:
  attempts: 5
storage:
  backend: s3
  s3:
    bucket: reels
niches:
  - name: cats
  - name: dogs
    storage_folder: doggos
    input: /lists/dogs.txt
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.NicheDelay != 30*time.Minute {
		t.Errorf("NicheDelay = %v", cfg.NicheDelay)
	}
	if cfg.Retry.Attempts != 5 || cfg.Retry.Backoff != 2*time.Second {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.StagingDir != "downloads" {
		t.Errorf("StagingDir default lost: %q", cfg.StagingDir)
	}

	niches, err := cfg.ResolvedNiches()
	if err != nil {
		t.Fatal(err)
	}
	if len(niches) != 2 || niches[0].Name != "cats" {
		t.Fatalf("niches = %+v", niches)
	}
	cats := niches[0]
	if cats.InputPath != filepath.Join("/srv/relay", "cats", "links.txt") ||
		cats.StorageFolder != "cats_reels" ||
		cats.StagingDir != filepath.Join("downloads", "cats") {
		t.Errorf("cats = %+v", cats)
	}
	if niches[1].StorageFolder != "doggos" || niches[1].InputPath != "/lists/dogs.txt" {
		t.Errorf("dogs = %+v", niches[1])
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RELAY_NICHE_DELAY", "5s")
	t.Setenv("RELAY_STORAGE_BACKEND", "local")
	t.Setenv("APIFY_API_TOKEN", "tok")

	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NicheDelay != 5*time.Second || cfg.Storage.Backend != BackendLocal || cfg.Source.ApifyToken != "tok" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no niches", func(c *Config) { c.Niches = nil }, "no niches"},
		{"duplicate niche", func(c *Config) { c.Niches = append(c.Niches, c.Niches[0]) }, "twice"},
		{"zero attempts", func(c *Config) { c.Retry.Attempts = 0 }, "attempts"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, "storage backend"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = BackendS3 }, "bucket"},
		{"unknown ledger", func(c *Config) { c.Ledger.ProcessedBackend = "redis" }, "ledger backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Niches = append(cfg.Niches, nicheNamed("cats"))
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}

	cfg := Default()
	cfg.Niches = append(cfg.Niches, nicheNamed("cats"))
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults with one niche: %v", err)
	}
}

func TestResolvedNiches_Select(t *testing.T) {
	cfg := Default()
	cfg.Niches = append(cfg.Niches, nicheNamed("a"), nicheNamed("b"), nicheNamed("c"))

	got, err := cfg.ResolvedNiches("c", "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "c" {
		t.Errorf("got %+v, want a then c in configured order", got)
	}

	if _, err := cfg.ResolvedNiches("zzz"); err == nil {
		t.Error("expected error for unknown niche")
	}
}

func nicheNamed(name string) domain.NicheConfig {
	return domain.NicheConfig{Name: name}
}

func TestLoad_ZeroNicheDelayKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "niche_delay: 0s\nstorage:\n  backend: local\nniches:\n  - name: cats\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NicheDelay != 0 {
		t.Errorf("NicheDelay = %v, want 0 (no pause)", cfg.NicheDelay)
	}
}
