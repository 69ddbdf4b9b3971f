package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aboutus/listsync/internal/settle"
)

// isolate keeps the developer's own config out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "About Us", cfg.ListName)
	assert.Equal(t, BackendREST, cfg.Backend)
	assert.Equal(t, filepath.Join(".listsync", "journal.db"), cfg.Journal.Path)
	assert.Equal(t, time.Second, cfg.Settle.ResetPause)
	assert.Equal(t, 250*time.Millisecond, cfg.Settle.AddPause)
	assert.Equal(t, 3, cfg.Settle.Attempts)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Empty(t, cfg.Source)
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.toml")
	content := `
site_url = "https://contoso.sharepoint.com/sites/intranet"
list_name = "Who We Are"
exclude_names = ["Documents", "Site Pages"]

[settle]
reset_pause = "2s"
attempts = 5

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://contoso.sharepoint.com/sites/intranet", cfg.SiteURL)
	assert.Equal(t, "Who We Are", cfg.ListName)
	assert.Equal(t, []string{"Documents", "Site Pages"}, cfg.ExcludeNames)
	assert.Equal(t, 2*time.Second, cfg.Settle.ResetPause)
	assert.Equal(t, 250*time.Millisecond, cfg.Settle.AddPause, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.Settle.Attempts)
	assert.Equal(t, "debug", cfg.Logging().Level)
	assert.Equal(t, path, cfg.Source)
}

func TestLoadSearchesWorkingDirectory(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(FileName, []byte(`list_name = "Found"`), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Found", cfg.ListName)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("LISTSYNC_SITE_URL", "https://env.example.com/sites/a")
	t.Setenv("LISTSYNC_ACCESS_TOKEN", "secret")
	t.Setenv("LISTSYNC_LOCAL_PATH", "/tmp/site.db")
	t.Setenv("LISTSYNC_SETTLE_ADD_PAUSE", "10ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com/sites/a", cfg.SiteURL)
	assert.Equal(t, "secret", cfg.AccessToken)
	assert.Equal(t, "/tmp/site.db", cfg.Local.Path)
	assert.Equal(t, 10*time.Millisecond, cfg.Settle.AddPause)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SiteURL: "https://contoso.sharepoint.com",
			Backend: BackendREST,
			Local:   LocalConfig{Path: "site.db"},
			Settle:  SettleConfig{Attempts: 1},
		}
	}

	t.Run("valid rest", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})
	t.Run("rest needs site", func(t *testing.T) {
		cfg := valid()
		cfg.SiteURL = ""
		assert.Error(t, cfg.Validate())
	})
	t.Run("local ignores site", func(t *testing.T) {
		cfg := valid()
		cfg.SiteURL = ""
		cfg.Backend = BackendLocal
		assert.NoError(t, cfg.Validate())
	})
	t.Run("unknown backend", func(t *testing.T) {
		cfg := valid()
		cfg.Backend = "graph"
		assert.ErrorContains(t, cfg.Validate(), "unknown backend")
	})
	t.Run("attempts", func(t *testing.T) {
		cfg := valid()
		cfg.Settle.Attempts = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestPolicy(t *testing.T) {
	cfg := &Config{Settle: SettleConfig{ResetPause: 3 * time.Second, AddPause: 0, Attempts: 2}}
	p := cfg.Policy()

	assert.Equal(t, 3*time.Second, p.Rule(settle.OpViewFieldsReset).Pause)
	assert.Equal(t, time.Duration(0), p.Rule(settle.OpViewFieldAdd).Pause)
	assert.Equal(t, 2, p.Rule(settle.OpFieldCreate).Attempts)
	assert.Equal(t, 2, p.Rule(settle.OpKind("other")).Attempts)
}

func TestWriteThenLoad(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", FileName)

	want := &Config{
		SiteURL:     "https://contoso.sharepoint.com/sites/hr",
		AccessToken: "tok",
		ListName:    "About HR",
		Backend:     BackendREST,
		Local:       LocalConfig{Path: "site.db"},
		Journal:     JournalConfig{Path: "journal.db"},
		Log:         LogConfig{Level: "warn", MaxSizeMB: 5, MaxBackups: 1},
		Settle:      SettleConfig{ResetPause: 1500 * time.Millisecond, AddPause: 100 * time.Millisecond, Attempts: 4},
		Dashboard:   DashboardConfig{Port: 9090},
		HTTP:        HTTPConfig{Timeout: time.Minute},
	}
	require.NoError(t, Write(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	got.Source = ""
	got.ExcludeNames = nil
	assert.Equal(t, want, got)
}
