package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.SourceLanguage != "auto" {
		t.Fatalf("source language = %q, want auto", cfg.SourceLanguage)
	}
	if cfg.APIBaseURL == "" {
		t.Fatal("expected non-empty api base url")
	}
	if cfg.OutputDir == "" {
		t.Fatal("expected non-empty output dir")
	}
	if cfg.PollInterval() <= 0 || cfg.HistoryInterval() <= 0 {
		t.Fatalf("intervals = %v / %v, want positive", cfg.PollInterval(), cfg.HistoryInterval())
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.SourceLanguage != "auto" {
		t.Fatalf("source language = %q, want auto", got.SourceLanguage)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		APIBaseURL:        "https://api.example.test/api/v1",
		OutputDir:         "/out",
		CacheDir:          "/cache",
		SourceLanguage:    "en",
		TargetLanguage:    "es",
		Translate:         true,
		PollIntervalMs:    3000,
		HistoryIntervalMs: 10000,
		HistoryLimit:      50,
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreSaveDropsToken keeps credentials off disk.
func TestJSONStoreSaveDropsToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewJSONStore(path)
	cfg := DefaultSettings()
	cfg.Token = "secret"

	if err := store.Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Token != "" {
		t.Fatalf("token = %q, want empty", got.Token)
	}
}

// TestJSONStoreLoadFillsMissingFields checks partially written files.
func TestJSONStoreLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"outputDir":"/subs"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.OutputDir != "/subs" {
		t.Fatalf("output dir = %q, want /subs", got.OutputDir)
	}
	if got.PollIntervalMs != defaultPollIntervalMs {
		t.Fatalf("poll interval = %d, want %d", got.PollIntervalMs, defaultPollIntervalMs)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}

// TestApplyEnvOverrides checks environment overlay precedence.
func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvAPIURL:       "https://api.example.test/api/v1/",
		EnvToken:        "tok",
		EnvPollInterval: "1500",
	}
	got := applyEnv(DefaultSettings(), func(key string) string { return env[key] })

	if got.APIBaseURL != "https://api.example.test/api/v1" {
		t.Fatalf("api url = %q", got.APIBaseURL)
	}
	if got.Token != "tok" {
		t.Fatalf("token = %q, want tok", got.Token)
	}
	if got.PollIntervalMs != 1500 {
		t.Fatalf("poll interval = %d, want 1500", got.PollIntervalMs)
	}
}

// TestJSONStoreSaveReplacesWithoutLeftovers overwrites in place and cleans temp files.
func TestJSONStoreSaveReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(filepath.Join(dir, "settings.json"))

	first := DefaultSettings()
	first.OutputDir = "/first"
	second := DefaultSettings()
	second.OutputDir = "/second"
	for _, cfg := range []domain.Settings{first, second} {
		if err := store.Save(cfg); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	got, err := store.Load()
	if err != nil || got.OutputDir != "/second" {
		t.Fatalf("output dir = %q err = %v, want /second", got.OutputDir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir holds %d entries, want only settings.json", len(entries))
	}
}
