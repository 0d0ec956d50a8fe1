package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/baronglock/Site-legendas/internal/config"
	"github.com/baronglock/Site-legendas/internal/diagnostics"
	"github.com/baronglock/Site-legendas/internal/domain"
	"github.com/baronglock/Site-legendas/internal/history"
	"github.com/baronglock/Site-legendas/internal/jobs"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// Runtime event names pushed to the frontend.
const (
	EventJob            = "job:event"
	EventHistory        = "history:rows"
	EventSessionExpired = "session:expired"
)

const (
	diagnosticsTimeout = 10 * time.Second
	validateTimeout    = 10 * time.Second
)

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.mpeg;*.mp3;*.wav;*.m4a;*.aac;*.ogg;*.flac",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// ErrJobActive is returned when connection settings change while a job is tracked.
var ErrJobActive = errors.New("finish or cancel the current job before changing connection settings")

// EstimateView is what the frontend shows before the user confirms a submission.
type EstimateView struct {
	Input    domain.SubmissionInput `json:"input"`
	Estimate domain.CreditEstimate  `json:"estimate"`
}

// PreviewPosition is the scrubber state after a seek or step.
type PreviewPosition struct {
	Position float64         `json:"position"`
	Duration float64         `json:"duration"`
	Segment  *domain.Segment `json:"segment,omitempty"`
}

// App wires configuration, the job tracker, history and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	svcOpts     ServiceOptions

	mu          sync.Mutex
	services    *Services
	unsubscribe func()
	preview     *history.Preview
	lookups     map[string]domain.URLDescriptor
	runtimeCtx  context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	config.LoadDotEnv()

	store := config.NewJSONStore(filepath.Join(config.AppDir(), "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(settings)

	checker := diagnostics.NewChecker()
	ctx, cancel := context.WithTimeout(context.Background(), diagnosticsTimeout)
	report := checker.Run(ctx, settings)
	cancel()

	app := &App{
		Settings:    settings,
		Store:       store,
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
	}
	if err := app.connect(settings); err != nil {
		return nil, err
	}
	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Legendas",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and mounts the history view.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	svc := a.services
	a.mu.Unlock()

	if svc == nil {
		return
	}
	if _, err := svc.RefreshSession(ctx); err != nil {
		log.Printf("initial session refresh: %v", err)
	}
	svc.History.Start(ctx)
}

// Shutdown stops polling and releases the history cache.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	svc := a.services
	unsubscribe := a.unsubscribe
	a.services, a.unsubscribe = nil, nil
	a.runtimeCtx = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if svc != nil {
		svc.Close()
	}
}

// connect builds a fresh service stack for settings and forwards its events.
func (a *App) connect(settings domain.Settings) error {
	opts := a.svcOpts
	opts.Notify = true
	opts.HistoryOnChange = func(rows []history.Row) { a.emit(EventHistory, rows) }
	svc, err := NewServices(settings, opts)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	unsubscribe := svc.Tracker.Bus().Subscribe(func(event jobs.Event) {
		a.emit(EventJob, event)
		if event.Type == jobs.EventTypeResult {
			go a.reconcileBalance(svc)
		}
	})
	svc.Session.OnExpired(func() {
		a.emit(EventSessionExpired, nil)
	})

	a.mu.Lock()
	old, oldUnsubscribe := a.services, a.unsubscribe
	a.services, a.unsubscribe = svc, unsubscribe
	a.preview = nil
	ctx := a.runtimeCtx
	a.mu.Unlock()

	if oldUnsubscribe != nil {
		oldUnsubscribe()
	}
	if old != nil {
		old.Close()
	}
	if ctx != nil {
		svc.History.Start(ctx)
	}
	return nil
}

// reconcileBalance replaces the optimistic balance echo with the backend's figure.
func (a *App) reconcileBalance(svc *Services) {
	if _, err := svc.RefreshSession(a.callContext()); err != nil {
		log.Printf("refresh balance: %v", err)
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(settings)

	a.mu.Lock()
	if settings.Token == "" {
		settings.Token = a.Settings.Token
	}
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, reconnecting when the backend
// or token changed, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)

	a.mu.Lock()
	previous := a.Settings
	svc := a.services
	a.mu.Unlock()
	if normalized.Token == "" {
		normalized.Token = previous.Token
	}

	reconnect := connectionChanged(previous, normalized)
	if reconnect && svc != nil && svc.Tracker.Current().Phase.Active() {
		return domain.Settings{}, ErrJobActive
	}

	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	if reconnect {
		if err := a.connect(normalized); err != nil {
			return domain.Settings{}, err
		}
	}

	a.mu.Lock()
	a.Settings = normalized
	a.mu.Unlock()

	a.refreshDiagnostics(normalized)
	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns the checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.GetSettings()
	if err != nil {
		return domain.DiagnosticReport{}, err
	}
	return a.refreshDiagnostics(settings), nil
}

func (a *App) refreshDiagnostics(settings domain.Settings) domain.DiagnosticReport {
	if a.checker == nil {
		return a.GetDiagnostics()
	}
	ctx, cancel := context.WithTimeout(context.Background(), diagnosticsTimeout)
	defer cancel()
	report := a.checker.Run(ctx, settings)

	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report
}

// PickInputFile opens a native file dialog for media selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for subtitle downloads.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RefreshSession reloads plan and balance from the backend.
func (a *App) RefreshSession() (domain.Profile, error) {
	svc, err := a.current()
	if err != nil {
		return domain.Profile{}, err
	}
	return svc.RefreshSession(a.callContext())
}

// EstimateFile validates a local file and prices it without uploading.
func (a *App) EstimateFile(path, scope string) (EstimateView, error) {
	return a.estimate(path, scope)
}

// EstimateURL validates a video URL and prices it. When the platform lookup
// succeeds its duration replaces the provisional figure, here and on submit.
func (a *App) EstimateURL(rawURL, scope string) (EstimateView, error) {
	svc, err := a.current()
	if err != nil {
		return EstimateView{}, err
	}

	ctx, cancel := context.WithTimeout(a.callContext(), validateTimeout)
	desc, err := svc.Gateway.Validate(ctx, rawURL)
	cancel()
	if err == nil && desc.DurationSeconds > 0 {
		a.rememberLookup(strings.TrimSpace(rawURL), desc)
	}
	return a.estimate(rawURL, scope)
}

func (a *App) estimate(source, scope string) (EstimateView, error) {
	svc, in, err := a.input(source, scope)
	if err != nil {
		return EstimateView{}, err
	}
	est, prepared, err := svc.Tracker.Estimate(in)
	if err != nil {
		return EstimateView{Input: prepared}, err
	}
	return EstimateView{Input: prepared, Estimate: est}, nil
}

// SubmitFile uploads a local file and starts tracking the new job.
func (a *App) SubmitFile(path, scope string) (domain.JobHandle, error) {
	return a.submit(path, scope)
}

// SubmitURL submits a video URL and starts tracking the new job.
func (a *App) SubmitURL(rawURL, scope string) (domain.JobHandle, error) {
	return a.submit(rawURL, scope)
}

func (a *App) submit(source, scope string) (domain.JobHandle, error) {
	svc, in, err := a.input(source, scope)
	if err != nil {
		return domain.JobHandle{}, err
	}
	return svc.Tracker.Submit(a.callContext(), in)
}

// CancelJob stops tracking the current job and asks the backend to drop it
// when it is still queued.
func (a *App) CancelJob() error {
	svc, err := a.current()
	if err != nil {
		return err
	}

	current := svc.Tracker.Current()
	if err := svc.Tracker.Cancel(); err != nil {
		return err
	}
	if current.Job.ID != "" && current.Job.Status == domain.JobStatusQueued {
		if err := svc.Client.CancelJob(a.callContext(), current.Job.ID); err != nil {
			log.Printf("backend cancel of %s: %v", current.Job.ID, err)
		}
	}
	return nil
}

// RetryJob resets a failed job so it can be resubmitted with a fresh estimate.
func (a *App) RetryJob() (EstimateView, error) {
	svc, err := a.current()
	if err != nil {
		return EstimateView{}, err
	}
	in, est, err := svc.Tracker.Retry()
	if err != nil {
		return EstimateView{Input: in}, err
	}
	return EstimateView{Input: in, Estimate: est}, nil
}

// CurrentJob returns the tracked job and its phase.
func (a *App) CurrentJob() domain.TrackedJob {
	svc, err := a.current()
	if err != nil {
		return domain.TrackedJob{Phase: domain.PhaseIdle}
	}
	return svc.Tracker.Current()
}

// JobSnapshot returns the latest five-stage progress snapshot.
func (a *App) JobSnapshot() domain.StageSnapshot {
	svc, err := a.current()
	if err != nil {
		return domain.NewStageSnapshot("")
	}
	return svc.Tracker.Snapshot()
}

// JobOutcome returns the terminal outcome of the last job, or nil.
func (a *App) JobOutcome() *jobs.Outcome {
	svc, err := a.current()
	if err != nil {
		return nil
	}
	if out, ok := svc.Tracker.Outcome(); ok {
		return &out
	}
	return nil
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	svc, err := a.current()
	if err != nil {
		return nil
	}
	return svc.Tracker.Events(sinceSeq)
}

// ListHistory returns the last fetched job list.
func (a *App) ListHistory() []history.Row {
	svc, err := a.current()
	if err != nil {
		return nil
	}
	return svc.History.Rows()
}

// RefreshHistory fetches the job list now.
func (a *App) RefreshHistory() ([]history.Row, error) {
	svc, err := a.current()
	if err != nil {
		return nil, err
	}
	return svc.History.Refresh(a.callContext())
}

// DownloadArtifact saves one artifact of a job into the output directory.
func (a *App) DownloadArtifact(jobID, format string) (string, error) {
	svc, err := a.current()
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	dir := a.Settings.OutputDir
	a.mu.Unlock()
	return svc.History.Download(a.callContext(), jobID, domain.Format(strings.ToLower(format)), dir)
}

// EstimateTranslation prices translating the subtitles of a completed job.
func (a *App) EstimateTranslation(jobID string) (domain.CreditEstimate, error) {
	svc, err := a.ready()
	if err != nil {
		return domain.CreditEstimate{}, err
	}
	return svc.EstimateTranslation(a.callContext(), jobID)
}

// RequestTranslation asks the backend to translate a completed job once the
// plan and balance allow it.
func (a *App) RequestTranslation(jobID, targetLanguage string) (domain.CreditEstimate, error) {
	svc, err := a.ready()
	if err != nil {
		return domain.CreditEstimate{}, err
	}
	return svc.Translate(a.callContext(), jobID, targetLanguage)
}

// PreviewJob loads the segments of a job and resets the preview scrubber.
func (a *App) PreviewJob(jobID string) (*history.Preview, error) {
	svc, err := a.current()
	if err != nil {
		return nil, err
	}
	preview, err := svc.History.Preview(a.callContext(), jobID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.preview = preview
	a.mu.Unlock()
	return preview, nil
}

// PreviewSeek moves the preview playhead to seconds.
func (a *App) PreviewSeek(seconds float64) (PreviewPosition, error) {
	scrubber, err := a.scrubber()
	if err != nil {
		return PreviewPosition{}, err
	}
	scrubber.Seek(seconds)
	return position(scrubber), nil
}

// PreviewStep jumps delta segments forward or back.
func (a *App) PreviewStep(delta int) (PreviewPosition, error) {
	scrubber, err := a.scrubber()
	if err != nil {
		return PreviewPosition{}, err
	}
	scrubber.Step(delta)
	return position(scrubber), nil
}

func (a *App) scrubber() (*history.Scrubber, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.preview == nil {
		return nil, fmt.Errorf("no preview is open")
	}
	return a.preview.Scrubber, nil
}

func position(s *history.Scrubber) PreviewPosition {
	pos := PreviewPosition{Position: s.Position(), Duration: s.Duration()}
	if seg, ok := s.Current(); ok {
		pos.Segment = &seg
	}
	return pos
}

func (a *App) input(source, scope string) (*Services, domain.SubmissionInput, error) {
	svc, err := a.ready()
	if err != nil {
		return nil, domain.SubmissionInput{}, err
	}

	parsed := svc.DefaultScope()
	if strings.TrimSpace(scope) != "" {
		if parsed, err = ParseScope(scope); err != nil {
			return nil, domain.SubmissionInput{}, err
		}
	}
	in := svc.Input(source, parsed)
	if in.Mode == domain.ModeURL && in.URL != nil {
		if desc, ok := a.lookup(in.URL.URL); ok {
			in.URL.Title = desc.Title
			in.URL.DurationSeconds = desc.DurationSeconds
		}
	}
	return svc, in, nil
}

// ready returns the services once the session can authenticate and its
// plan and balance are loaded.
func (a *App) ready() (*Services, error) {
	svc, err := a.current()
	if err != nil {
		return nil, err
	}
	if err := svc.Session.Check(); err != nil {
		return nil, err
	}
	if !svc.Session.Loaded() {
		if _, err := svc.RefreshSession(a.callContext()); err != nil {
			return nil, fmt.Errorf("load account: %w", err)
		}
	}
	return svc, nil
}

func (a *App) rememberLookup(rawURL string, desc domain.URLDescriptor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lookups == nil {
		a.lookups = map[string]domain.URLDescriptor{}
	}
	a.lookups[rawURL] = desc
}

func (a *App) lookup(rawURL string) (domain.URLDescriptor, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	desc, ok := a.lookups[rawURL]
	return desc, ok
}

func (a *App) current() (*Services, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.services == nil {
		return nil, fmt.Errorf("application is shutting down")
	}
	return a.services, nil
}

// callContext returns the runtime context, or a background one before startup.
func (a *App) callContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return context.Background()
	}
	return a.runtimeCtx
}

// emit pushes a runtime event when the frontend is attached.
func (a *App) emit(name string, payload any) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, payload)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and fills defaults.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.APIBaseURL = strings.TrimRight(strings.TrimSpace(settings.APIBaseURL), "/")
	settings.Token = strings.TrimSpace(settings.Token)
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.CacheDir = strings.TrimSpace(settings.CacheDir)
	settings.SourceLanguage = strings.TrimSpace(settings.SourceLanguage)
	settings.TargetLanguage = strings.TrimSpace(settings.TargetLanguage)
	return config.Normalize(settings)
}

// connectionChanged reports whether the service stack must be rebuilt.
func connectionChanged(before, after domain.Settings) bool {
	return before.APIBaseURL != after.APIBaseURL ||
		before.Token != after.Token ||
		before.CacheDir != after.CacheDir ||
		before.PollIntervalMs != after.PollIntervalMs ||
		before.HistoryIntervalMs != after.HistoryIntervalMs ||
		before.HistoryLimit != after.HistoryLimit
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
