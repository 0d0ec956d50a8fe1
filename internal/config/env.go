package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// Environment variables that override persisted settings.
const (
	EnvAPIURL       = "LEGENDAS_API_URL"
	EnvToken        = "LEGENDAS_TOKEN"
	EnvOutputDir    = "LEGENDAS_OUTPUT_DIR"
	EnvPollInterval = "LEGENDAS_POLL_INTERVAL_MS"
)

// LoadDotEnv reads .env files into the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// ApplyEnv overlays environment overrides onto settings.
func ApplyEnv(s domain.Settings) domain.Settings {
	return applyEnv(s, os.Getenv)
}

func applyEnv(s domain.Settings, getenv func(string) string) domain.Settings {
	if v := strings.TrimSpace(getenv(EnvAPIURL)); v != "" {
		s.APIBaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(getenv(EnvToken)); v != "" {
		s.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvOutputDir)); v != "" {
		s.OutputDir = v
	}
	if v := strings.TrimSpace(getenv(EnvPollInterval)); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			s.PollIntervalMs = ms
		}
	}
	return s
}
