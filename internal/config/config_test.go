package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, 768, cfg.MobileBreakpoint)
	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.Equal(t, 365, cfg.ICS.HorizonDays)
	assert.Nil(t, cfg.BasicAuth)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Equal(t, filepath.Join(dir, "nested", "prefs.json"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(dir, "nested", "cache"), cfg.CacheDir)
	assert.Equal(t, filepath.Join(dir, "nested", "events.json"), cfg.EventsURL)
	assert.Equal(t, filepath.Join(dir, "nested", "clubs.json"), cfg.ClubsURL)
}

func TestResolveLeavesURLsAlone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventsURL = "https://example.org/events.json"
	cfg.ClubsURL = "file:///srv/clubs.json"
	cfg.Resolve("/etc/racecal")
	assert.Equal(t, "https://example.org/events.json", cfg.EventsURL)
	assert.Equal(t, "file:///srv/clubs.json", cfg.ClubsURL)

	cfg.EventsURL = "/data/events.ics"
	cfg.ClubsURL = ""
	cfg.Resolve("/etc/racecal")
	assert.Equal(t, "/data/events.ics", cfg.EventsURL)
	assert.Empty(t, cfg.ClubsURL)
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	original := DefaultConfig()
	original.EventsURL = "https://example.org/events.json"
	original.ClubsURL = "https://example.org/clubs.json"
	original.FetchTimeout = "3s"
	original.Store = StoreConfig{Driver: "sqlite", Path: "/var/lib/racecal/prefs.db"}
	original.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	original.CORSOrigins = []string{"https://a.example"}
	require.NoError(t, original.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original.EventsURL, loaded.EventsURL)
	assert.Equal(t, original.ClubsURL, loaded.ClubsURL)
	assert.Equal(t, 3*time.Second, loaded.Timeout())
	assert.Equal(t, "sqlite", loaded.Store.Driver)
	assert.Equal(t, "/var/lib/racecal/prefs.db", loaded.Store.Path)
	require.NotNil(t, loaded.BasicAuth)
	assert.Equal(t, "u", loaded.BasicAuth.Username)
	assert.Equal(t, []string{"https://a.example"}, loaded.CORSOrigins)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("events_url: events.json\nlog_level: DEBUG\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "events.json"), cfg.EventsURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "*/30 * * * *", cfg.RefreshCron)
	assert.Equal(t, 768, cfg.MobileBreakpoint)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("events_url: from-file.json\n"), 0o600))

	t.Setenv("RACECAL_EVENTS_URL", "https://env.example/events.json")
	t.Setenv("RACECAL_STORE__DRIVER", "memory")
	t.Setenv("RACECAL_MOBILE_BREAKPOINT", "600")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example/events.json", cfg.EventsURL)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 600, cfg.MobileBreakpoint)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	cfg := &Config{FetchTimeout: "soon", Store: StoreConfig{Driver: "redis"}, LogLevel: "loud", ICS: ICSConfig{BackfillDays: -4}}
	cfg.Normalize()
	assert.Equal(t, "10s", cfg.FetchTimeout)
	assert.Equal(t, "events.json", cfg.EventsURL)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "prefs.json", cfg.Store.Path)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.ICS.BackfillDays)
	assert.Equal(t, "racecal", cfg.CalendarName)
}

func TestEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
	assert.Error(t, Save("", DefaultConfig()))
}
