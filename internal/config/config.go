package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"reelrelay/internal/core/domain"
	"reelrelay/internal/service"
)

// DefaultPath is read when no config file is given and it exists.
const DefaultPath = "relay.yaml"

// Storage backends.
const (
	BackendDrive = "drive"
	BackendS3    = "s3"
	BackendLocal = "local"
)

// Processed ledger backends.
const (
	LedgerFile   = "file"
	LedgerSQLite = "sqlite"
)

// Config is the full relay configuration.
type Config struct {
	DataDir    string        `yaml:"data_dir"`
	StagingDir string        `yaml:"staging_dir"`
	NicheDelay time.Duration `yaml:"niche_delay"` // 0 disables the pause between niches

	Retry   RetryConfig   `yaml:"retry"`
	Log     LogConfig     `yaml:"log"`
	Source  SourceConfig  `yaml:"source"`
	Storage StorageConfig `yaml:"storage"`
	Ledger  LedgerConfig  `yaml:"ledger"`

	Niches []domain.NicheConfig `yaml:"niches"`
}

type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// SourceConfig configures the Apify profile feed and media downloaders.
type SourceConfig struct {
	ApifyToken        string        `yaml:"apify_token"`
	Actor             string        `yaml:"actor"`
	ResultsLimit      int           `yaml:"results_limit"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	YtDlpPath         string        `yaml:"ytdlp_path"`
	CookiesFile       string        `yaml:"cookies_file"`
	DownloadTimeout   time.Duration `yaml:"download_timeout"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Drive   DriveConfig `yaml:"drive"`
	S3      S3Config    `yaml:"s3"`
	Local   LocalConfig `yaml:"local"`
}

type DriveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

type S3Config struct {
	Bucket        string        `yaml:"bucket"`
	Prefix        string        `yaml:"prefix"`
	Region        string        `yaml:"region"`
	Endpoint      string        `yaml:"endpoint"`
	PublicBaseURL string        `yaml:"public_base_url"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
	PublicRead    bool          `yaml:"public_read"`
}

type LocalConfig struct {
	Dir           string `yaml:"dir"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type LedgerConfig struct {
	ProcessedBackend string `yaml:"processed_backend"`
	SQLitePath       string `yaml:"sqlite_path"`
}

// Default returns the configuration used for anything the file and the
// environment leave unset.
func Default() Config {
	return Config{
		DataDir:    "data",
		StagingDir: "downloads",
		NicheDelay: service.DefaultNicheDelay,
		Retry:      RetryConfig{Attempts: service.DefaultAttempts, Backoff: service.DefaultBackoff},
		Log:        LogConfig{Level: "info"},
		Source: SourceConfig{
			Actor:             "apify~instagram-scraper",
			ResultsLimit:      50,
			RequestsPerMinute: 6,
			DownloadTimeout:   30 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: BackendDrive,
			Drive:   DriveConfig{CredentialsFile: "credentials.json"},
			Local:   LocalConfig{Dir: "published"},
		},
		Ledger: LedgerConfig{ProcessedBackend: LedgerFile, SQLitePath: "data/relay.db"},
	}
}

// Load reads .env, then the YAML file at path, then RELAY_* overrides. An
// empty path reads DefaultPath when it exists.
func Load(path string) (*Config, error) {
	// It's okay if .env doesn't exist, variables might be set manually.
	_ = godotenv.Load()

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.DataDir = getenv("RELAY_DATA_DIR", c.DataDir)
	c.StagingDir = getenv("RELAY_STAGING_DIR", c.StagingDir)
	c.NicheDelay = getenvd("RELAY_NICHE_DELAY", c.NicheDelay)
	c.Retry.Attempts = getenvi("RELAY_RETRY_ATTEMPTS", c.Retry.Attempts)
	c.Retry.Backoff = getenvd("RELAY_RETRY_BACKOFF", c.Retry.Backoff)
	c.Log.Level = getenv("RELAY_LOG_LEVEL", c.Log.Level)
	c.Log.File = getenv("RELAY_LOG_FILE", c.Log.File)

	c.Source.ApifyToken = getenv("APIFY_API_TOKEN", c.Source.ApifyToken)
	c.Source.YtDlpPath = getenv("RELAY_YTDLP_PATH", c.Source.YtDlpPath)
	c.Source.CookiesFile = getenv("RELAY_COOKIES_FILE", c.Source.CookiesFile)

	c.Storage.Backend = getenv("RELAY_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Drive.CredentialsFile = getenv("GOOGLE_APPLICATION_CREDENTIALS", c.Storage.Drive.CredentialsFile)
	c.Storage.S3.Bucket = getenv("RELAY_S3_BUCKET", c.Storage.S3.Bucket)
	c.Storage.S3.Prefix = getenv("RELAY_S3_PREFIX", c.Storage.S3.Prefix)
	c.Storage.Local.Dir = getenv("RELAY_LOCAL_DIR", c.Storage.Local.Dir)

	c.Ledger.ProcessedBackend = getenv("RELAY_PROCESSED_BACKEND", c.Ledger.ProcessedBackend)
	c.Ledger.SQLitePath = getenv("RELAY_SQLITE_PATH", c.Ledger.SQLitePath)
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if len(c.Niches) == 0 {
		return errors.New("no niches configured")
	}
	seen := make(map[string]bool, len(c.Niches))
	for i, n := range c.Niches {
		if n.Name == "" {
			return fmt.Errorf("niche %d has no name", i+1)
		}
		if seen[n.Name] {
			return fmt.Errorf("niche %q configured twice", n.Name)
		}
		seen[n.Name] = true
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	if c.NicheDelay < 0 || c.Retry.Backoff < 0 {
		return errors.New("delays must not be negative")
	}

	switch c.Storage.Backend {
	case BackendDrive:
		if c.Storage.Drive.CredentialsFile == "" {
			return errors.New("storage.drive.credentials_file is required for the drive backend")
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for the s3 backend")
		}
	case BackendLocal:
		if c.Storage.Local.Dir == "" {
			return errors.New("storage.local.dir is required for the local backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Ledger.ProcessedBackend {
	case LedgerFile:
	case LedgerSQLite:
		if c.Ledger.SQLitePath == "" {
			return errors.New("ledger.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown processed ledger backend %q", c.Ledger.ProcessedBackend)
	}
	return nil
}

// ResolvedNiches returns the configured niches, in order, with derived paths
// filled in. A non-empty names restricts the result to those niches.
func (c *Config) ResolvedNiches(names ...string) ([]domain.NicheConfig, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []domain.NicheConfig
	for _, n := range c.Niches {
		if len(want) > 0 && !want[n.Name] {
			continue
		}
		delete(want, n.Name)
		out = append(out, n.WithDefaults(c.DataDir, c.StagingDir))
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for name := range want {
			missing = append(missing, name)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("unknown niche: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return def
}

func getenvd(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
