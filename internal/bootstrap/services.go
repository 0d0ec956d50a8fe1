package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/baronglock/Site-legendas/internal/api"
	"github.com/baronglock/Site-legendas/internal/config"
	"github.com/baronglock/Site-legendas/internal/credits"
	"github.com/baronglock/Site-legendas/internal/domain"
	"github.com/baronglock/Site-legendas/internal/history"
	"github.com/baronglock/Site-legendas/internal/jobs"
	"github.com/baronglock/Site-legendas/internal/session"
	"github.com/baronglock/Site-legendas/internal/submit"
)

const eventBufferSize = 1000

// Services is the client stack shared by the desktop app and the CLI.
type Services struct {
	Settings domain.Settings
	Plans    config.PlanCatalog
	Client   *api.Client
	Session  *session.Session
	Gateway  *submit.Gateway
	Tracker  *jobs.Tracker
	History  *history.View

	// Cache is nil when the history cache could not be opened.
	Cache *history.Cache
}

// ServiceOptions tunes optional parts of the stack.
type ServiceOptions struct {
	Notify          bool
	PlansPath       string
	HTTPClient      *http.Client
	HistoryOnChange func([]history.Row)
	GatewayOptions  []submit.Option
	Logf            func(format string, args ...any)
}

// NewServices wires the client, session, gateway, tracker and history view.
func NewServices(settings domain.Settings, opts ServiceOptions) (*Services, error) {
	settings = config.Normalize(settings)
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	if opts.PlansPath == "" {
		opts.PlansPath = filepath.Join(config.AppDir(), "plans.yaml")
	}

	plans, err := config.LoadPlans(opts.PlansPath)
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}

	sess := session.New(settings.Token)
	clientOpts := []api.Option{
		api.WithToken(sess.Token),
		api.WithUnauthorizedHandler(sess.Invalidate),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	client := api.NewClient(settings.APIBaseURL, clientOpts...)

	gateway := submit.NewGateway(client, plans, sess, opts.GatewayOptions...)
	tracker := jobs.NewTracker(gateway, client, sess, jobs.NewEventBus(eventBufferSize), client.DownloadURL, jobs.TrackerConfig{
		PollInterval: settings.PollInterval(),
		Notify:       opts.Notify,
		Logf:         opts.Logf,
	})

	cache, err := history.OpenCache(filepath.Join(settings.CacheDir, "history.db"))
	if err != nil {
		opts.Logf("history cache disabled: %v", err)
		cache = nil
	}
	view := history.NewView(client, history.Options{
		Interval: settings.HistoryInterval(),
		Limit:    settings.HistoryLimit,
		Cache:    cache,
		OnChange: opts.HistoryOnChange,
		Logf:     opts.Logf,
	})

	return &Services{
		Settings: settings,
		Plans:    plans,
		Client:   client,
		Session:  sess,
		Gateway:  gateway,
		Tracker:  tracker,
		History:  view,
		Cache:    cache,
	}, nil
}

// RefreshSession reloads plan and balance from the backend.
func (s *Services) RefreshSession(ctx context.Context) (domain.Profile, error) {
	return s.Session.Refresh(ctx, s.Client)
}

// EstimateTranslation prices a translation-only run of a completed job from
// the duration of its subtitles.
func (s *Services) EstimateTranslation(ctx context.Context, jobID string) (domain.CreditEstimate, error) {
	if err := s.Session.Check(); err != nil {
		return domain.CreditEstimate{}, err
	}
	if !s.Gateway.Limits().TranslationOnly {
		return domain.CreditEstimate{}, &submit.SubmissionError{Kind: submit.KindPlanRestriction, Reason: "translation-only requires a paid plan", Err: credits.ErrPlanRestriction}
	}
	preview, err := s.History.Preview(ctx, jobID)
	if err != nil {
		return domain.CreditEstimate{}, fmt.Errorf("load subtitles of %s: %w", jobID, err)
	}

	est, err := credits.EstimateTranslation(preview.Scrubber.Duration(), s.Gateway.Limits().TranslationOnly, s.Session.Balance())
	if errors.Is(err, credits.ErrPlanRestriction) {
		return domain.CreditEstimate{}, &submit.SubmissionError{Kind: submit.KindPlanRestriction, Reason: "translation-only requires a paid plan", Err: err}
	}
	return est, err
}

// Translate prices, gates and requests a translation of jobID's subtitles.
func (s *Services) Translate(ctx context.Context, jobID, targetLanguage string) (domain.CreditEstimate, error) {
	est, err := s.EstimateTranslation(ctx, jobID)
	if err != nil {
		return est, err
	}
	if err := credits.Check(est); err != nil {
		return est, &submit.SubmissionError{Kind: submit.KindInsufficientCredits, Reason: "not enough credits to translate", Err: err}
	}
	if err := s.History.RequestTranslation(ctx, jobID, targetLanguage); err != nil {
		return est, err
	}
	s.Session.Reserve(est.CostCredits)
	return est, nil
}

// Input builds a submission for a local path or a URL using the configured languages.
func (s *Services) Input(source string, scope domain.Scope) domain.SubmissionInput {
	source = strings.TrimSpace(source)
	var in domain.SubmissionInput
	if isURL(source) {
		in = domain.URLInput(source, scope)
	} else {
		in = domain.FileInput(source, scope)
	}
	in.SourceLanguage = s.Settings.SourceLanguage
	in.TargetLanguage = s.Settings.TargetLanguage
	return in
}

// DefaultScope derives the scope from the translate setting.
func (s *Services) DefaultScope() domain.Scope {
	if s.Settings.Translate {
		return domain.ScopeFull
	}
	return domain.ScopeTranscribe
}

// Close stops polling and releases the cache.
func (s *Services) Close() {
	s.Tracker.Close()
	s.History.Stop()
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			log.Printf("close history cache: %v", err)
		}
	}
}

// ParseScope maps a user-facing scope name onto a Scope. Empty means full.
func ParseScope(raw string) (domain.Scope, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "full":
		return domain.ScopeFull, nil
	case "transcribe", "transcription":
		return domain.ScopeTranscribe, nil
	case "translate", "translation":
		return domain.ScopeTranslateOnly, nil
	default:
		return "", fmt.Errorf("unknown scope %q (want full, transcribe or translate)", raw)
	}
}

func isURL(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
