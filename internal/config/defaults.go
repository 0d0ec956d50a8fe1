package config

import (
	"os"
	"path/filepath"

	"github.com/baronglock/Site-legendas/internal/domain"
)

const (
	defaultAPIBaseURL        = "http://localhost:8000/api/v1"
	defaultPollIntervalMs    = 2500
	defaultHistoryIntervalMs = 5000
	defaultHistoryLimit      = 20
)

// AppDir returns the per-user directory holding settings, plans and cache.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".legendas")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		APIBaseURL:        defaultAPIBaseURL,
		OutputDir:         filepath.Join(homeDir, "Documents", "Subtitles"),
		CacheDir:          filepath.Join(AppDir(), "cache"),
		SourceLanguage:    "auto",
		TargetLanguage:    "pt",
		Translate:         true,
		PollIntervalMs:    defaultPollIntervalMs,
		HistoryIntervalMs: defaultHistoryIntervalMs,
		HistoryLimit:      defaultHistoryLimit,
	}
}

// Normalize fills zero fields from defaults so partially written files stay usable.
func Normalize(s domain.Settings) domain.Settings {
	d := DefaultSettings()
	if s.APIBaseURL == "" {
		s.APIBaseURL = d.APIBaseURL
	}
	if s.OutputDir == "" {
		s.OutputDir = d.OutputDir
	}
	if s.CacheDir == "" {
		s.CacheDir = d.CacheDir
	}
	if s.SourceLanguage == "" {
		s.SourceLanguage = d.SourceLanguage
	}
	if s.TargetLanguage == "" {
		s.TargetLanguage = d.TargetLanguage
	}
	if s.PollIntervalMs <= 0 {
		s.PollIntervalMs = d.PollIntervalMs
	}
	if s.HistoryIntervalMs <= 0 {
		s.HistoryIntervalMs = d.HistoryIntervalMs
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = d.HistoryLimit
	}
	return s
}
