package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the minimum environment for Load to succeed and
// isolates StateDB in a temp dir so tests never touch ~/.journal-sync.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JOURNAL_ACCESS_TOKEN", "ya29.test-token")
	t.Setenv("JOURNAL_STATE_DB", t.TempDir()+"/journal.db")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://www.googleapis.com/drive/v3", cfg.APIBaseURL)
	assert.Equal(t, "https://www.googleapis.com/upload/drive/v3", cfg.UploadBaseURL)
	assert.Equal(t, "JournalApp", cfg.RootFolder)
	assert.Equal(t, 5, cfg.SyncConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.SaveDebounce)
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JOURNAL_API_BASE_URL", "http://localhost:9999/drive")
	t.Setenv("JOURNAL_ROOT_FOLDER", "MyJournal")
	t.Setenv("JOURNAL_SYNC_CONCURRENCY", "3")
	t.Setenv("JOURNAL_SAVE_DEBOUNCE", "2s")
	t.Setenv("JOURNAL_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999/drive", cfg.APIBaseURL)
	assert.Equal(t, "MyJournal", cfg.RootFolder)
	assert.Equal(t, 3, cfg.SyncConcurrency)
	assert.Equal(t, 2*time.Second, cfg.SaveDebounce)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_ConcurrencyClamped(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "below minimum", value: "0", want: 1},
		{name: "negative", value: "-4", want: 1},
		{name: "above maximum", value: "64", want: 16},
		{name: "in range", value: "8", want: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv("JOURNAL_SYNC_CONCURRENCY", tt.value)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.SyncConcurrency)
		})
	}
}

func TestValidate_EmptyFieldsRejected(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "empty api base url", cfg: Config{UploadBaseURL: "u", RootFolder: "r"}},
		{name: "empty upload base url", cfg: Config{APIBaseURL: "a", RootFolder: "r"}},
		{name: "empty root folder", cfg: Config{APIBaseURL: "a", UploadBaseURL: "u"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.cfg.validate())
		})
	}
}

func TestLoad_NegativeDebounceRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JOURNAL_SAVE_DEBOUNCE", "-1s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOURNAL_SAVE_DEBOUNCE")
}

func TestLoad_EmptyTokenAllowed(t *testing.T) {
	// Offline start: no token yet, the orchestrator waits for login.
	t.Setenv("JOURNAL_ACCESS_TOKEN", "")
	t.Setenv("JOURNAL_STATE_DB", t.TempDir()+"/journal.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AccessToken)
}
