package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// minSyncConcurrency and maxSyncConcurrency bound the number of
	// in-flight remote downloads. The remote API rate-limits aggressive
	// clients and caps concurrent connections per client, so values
	// outside this range are clamped rather than rejected.
	minSyncConcurrency = 1
	maxSyncConcurrency = 16
)

// Config holds all environment-based configuration for journal-sync.
type Config struct {
	// Bearer token for the remote file store. Acquisition and renewal
	// happen outside this process; an empty token means start offline.
	AccessToken string `env:"JOURNAL_ACCESS_TOKEN"`

	// Base URL of the remote file-store API.
	APIBaseURL string `env:"JOURNAL_API_BASE_URL" envDefault:"https://www.googleapis.com/drive/v3"`

	// Content uploads use a separate URL space on Drive-style APIs.
	UploadBaseURL string `env:"JOURNAL_UPLOAD_BASE_URL" envDefault:"https://www.googleapis.com/upload/drive/v3"`

	// Name of the application root folder in the remote store.
	RootFolder string `env:"JOURNAL_ROOT_FOLDER" envDefault:"JournalApp"`

	// Path to the local entry database. Defaults to
	// ~/.journal-sync/journal.db when empty.
	StateDB string `env:"JOURNAL_STATE_DB"`

	// Maximum number of concurrently in-flight record downloads during
	// a reconciliation pass. Clamped to [1, 16].
	SyncConcurrency int `env:"JOURNAL_SYNC_CONCURRENCY" envDefault:"5"`

	// Delay between an editor save request and the local+remote save,
	// coalescing rapid keystroke-driven saves.
	SaveDebounce time.Duration `env:"JOURNAL_SAVE_DEBOUNCE" envDefault:"500ms"`

	// Environment controls log format.
	Environment string `env:"JOURNAL_ENV" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the access token to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.SyncConcurrency < minSyncConcurrency {
		cfg.SyncConcurrency = minSyncConcurrency
	}

	if cfg.SyncConcurrency > maxSyncConcurrency {
		cfg.SyncConcurrency = maxSyncConcurrency
	}

	if cfg.StateDB == "" {
		path, err := defaultDBPath()
		if err != nil {
			return nil, err
		}

		cfg.StateDB = path
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("JOURNAL_API_BASE_URL must not be empty")
	}

	if c.UploadBaseURL == "" {
		return fmt.Errorf("JOURNAL_UPLOAD_BASE_URL must not be empty")
	}

	if c.RootFolder == "" {
		return fmt.Errorf("JOURNAL_ROOT_FOLDER must not be empty")
	}

	if c.SaveDebounce < 0 {
		return fmt.Errorf("JOURNAL_SAVE_DEBOUNCE must not be negative")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// defaultDBPath returns ~/.journal-sync/journal.db.
func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".journal-sync", "journal.db"), nil
}
