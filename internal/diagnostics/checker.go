package diagnostics

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/baronglock/Site-legendas/internal/api"
	"github.com/baronglock/Site-legendas/internal/domain"
)

// Checker validates backend reachability, credentials and local directories.
type Checker struct {
	ping       func(ctx context.Context, baseURL string) error
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using the real backend and filesystem.
func NewChecker() *Checker {
	return &Checker{
		ping: func(ctx context.Context, baseURL string) error {
			return api.NewClient(baseURL).Ping(ctx)
		},
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkBackend(ctx, settings.APIBaseURL),
		c.checkToken(settings.Token),
		c.checkWritableDir("output_dir", "Output directory", settings.OutputDir,
			"Choose a writable directory for downloaded subtitles."),
		c.checkWritableDir("cache_dir", "Cache directory", settings.CacheDir,
			"Choose a writable directory for the local job history cache."),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkBackend verifies the API origin answers its health route.
func (c *Checker) checkBackend(ctx context.Context, baseURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "backend",
		Name: "Subtitle backend",
	}

	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "API base URL is empty."
		item.Hint = "Set the backend URL, for example http://localhost:8000/api/v1."
		return item
	}
	if u, err := url.Parse(trimmed); err != nil || u.Scheme == "" || u.Host == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("API base URL is not valid: %s", trimmed)
		item.Hint = "Use an absolute http or https URL."
		return item
	}

	if err := c.ping(ctx, trimmed); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Backend is not reachable: %v", err)
		item.Hint = "Check the URL and that the backend is running."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Backend reachable at %s", trimmed)
	return item
}

// checkToken verifies an access token is configured.
func (c *Checker) checkToken(token string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "token",
		Name: "Access token",
	}
	if strings.TrimSpace(token) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No access token configured."
		item.Hint = "Sign in on the website and paste your token in settings or LEGENDAS_TOKEN."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "Access token configured."
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		item.Hint = hint
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = hint
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	ping func(context.Context, string) error,
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		ping:       ping,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
