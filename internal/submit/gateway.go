package submit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/baronglock/Site-legendas/internal/api"
	"github.com/baronglock/Site-legendas/internal/config"
	"github.com/baronglock/Site-legendas/internal/domain"
)

// Backend is the part of the REST client the gateway needs.
type Backend interface {
	UploadFile(ctx context.Context, req api.UploadRequest) (string, error)
	SubmitURL(ctx context.Context, req api.URLRequest) (string, error)
}

// PlanSource reports the current user's plan.
type PlanSource interface {
	Plan() domain.Plan
}

// Gateway validates inputs and sends each accepted one to the backend once.
type Gateway struct {
	backend  Backend
	plans    config.PlanCatalog
	planSrc  PlanSource
	lookups  map[string]VideoLookup
	inFlight atomic.Bool
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithVideoLookup replaces the advisory metadata lookup of one platform.
func WithVideoLookup(platform string, lookup VideoLookup) Option {
	return func(g *Gateway) { g.lookups[platform] = lookup }
}

// NewGateway creates a gateway bound to a backend and plan catalog.
func NewGateway(backend Backend, plans config.PlanCatalog, planSrc PlanSource, opts ...Option) *Gateway {
	g := &Gateway{
		backend: backend,
		plans:   plans,
		planSrc: planSrc,
		lookups: map[string]VideoLookup{PlatformYouTube: youtubeLookup},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limits returns the limits of the current plan.
func (g *Gateway) Limits() config.PlanLimits {
	return g.plans.Lookup(g.planSrc.Plan())
}

// InFlight reports whether a submission is currently being sent.
func (g *Gateway) InFlight() bool {
	return g.inFlight.Load()
}

// Prepare validates in without any network call and fills in its
// descriptor (file name, size and type; url platform). Translation-only
// never applies to new media; it is requested on a completed job instead.
func (g *Gateway) Prepare(in domain.SubmissionInput) (domain.SubmissionInput, error) {
	if in.Scope == domain.ScopeTranslateOnly {
		if !g.Limits().TranslationOnly {
			return in, &SubmissionError{Kind: KindPlanRestriction, Reason: "translation-only requires a paid plan"}
		}
		return in, &SubmissionError{Kind: KindScopeMismatch, Reason: "translation-only applies to the subtitles of a completed job, not to new media"}
	}
	switch in.Mode {
	case domain.ModeFile:
		if in.File == nil || strings.TrimSpace(in.File.Path) == "" {
			return in, rejectFile("no file selected")
		}
		file, err := g.describeFile(in.File.Path)
		if err != nil {
			return in, err
		}
		in.File = &file
		in.URL = nil
		return in, nil
	case domain.ModeURL:
		if in.URL == nil {
			return in, &SubmissionError{Kind: KindUnsupportedPlatform, Reason: "url is empty"}
		}
		desc, err := describeURL(in.URL.URL)
		if err != nil {
			return in, err
		}
		desc.Title = in.URL.Title
		desc.DurationSeconds = in.URL.DurationSeconds
		in.URL = &desc
		in.File = nil
		return in, nil
	default:
		return in, fmt.Errorf("unknown submission mode %q", in.Mode)
	}
}

// describeFile checks the size ceiling before sniffing content.
func (g *Gateway) describeFile(path string) (domain.FileDescriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.FileDescriptor{}, rejectFile("cannot read file: %v", err)
	}
	if info.IsDir() {
		return domain.FileDescriptor{}, rejectFile("%s is a directory", info.Name())
	}
	if info.Size() == 0 {
		return domain.FileDescriptor{}, rejectFile("%s is empty", info.Name())
	}

	limits := g.Limits()
	if info.Size() > limits.MaxFileBytes() {
		return domain.FileDescriptor{}, rejectFile("file exceeds the %d MB limit of your plan", limits.MaxFileMB)
	}

	mime, err := detectMIME(path)
	if err != nil {
		return domain.FileDescriptor{}, err
	}
	return domain.FileDescriptor{
		Path:      path,
		Name:      filepath.Base(path),
		SizeBytes: info.Size(),
		MIME:      mime,
	}, nil
}

// Validate is the optional advisory round-trip for URLs: it resolves title
// and duration where the platform allows it. Callers must not block on its error.
func (g *Gateway) Validate(ctx context.Context, rawURL string) (domain.URLDescriptor, error) {
	desc, err := describeURL(rawURL)
	if err != nil {
		return desc, err
	}
	lookup, ok := g.lookups[desc.Platform]
	if !ok {
		return desc, nil
	}

	title, seconds, err := lookup(ctx, desc.URL)
	if err != nil {
		return desc, err
	}
	desc.Title = title
	desc.DurationSeconds = seconds
	return desc, nil
}

// Submit validates in and makes exactly one backend call for it. A second
// call while one is outstanding fails with ErrSubmissionInFlight.
func (g *Gateway) Submit(ctx context.Context, in domain.SubmissionInput, onUpload func(float64)) (domain.JobHandle, error) {
	if !g.inFlight.CompareAndSwap(false, true) {
		return domain.JobHandle{}, ErrSubmissionInFlight
	}
	defer g.inFlight.Store(false)

	in, err := g.Prepare(in)
	if err != nil {
		return domain.JobHandle{}, err
	}

	var jobID string
	switch in.Mode {
	case domain.ModeFile:
		jobID, err = g.backend.UploadFile(ctx, api.UploadRequest{
			Path:           in.File.Path,
			Name:           in.File.Name,
			ContentType:    in.File.MIME,
			SourceLanguage: in.SourceLanguage,
			TargetLanguage: in.TargetLanguage,
			Translate:      in.Translate(),
			OnProgress:     onUpload,
		})
	case domain.ModeURL:
		jobID, err = g.backend.SubmitURL(ctx, api.URLRequest{
			URL:            in.URL.URL,
			SourceLanguage: in.SourceLanguage,
			TargetLanguage: in.TargetLanguage,
			Translate:      in.Translate(),
		})
	}
	if err != nil {
		return domain.JobHandle{}, &SubmissionError{Kind: KindTransport, Reason: "submission failed", Err: err}
	}
	if strings.TrimSpace(jobID) == "" {
		return domain.JobHandle{}, &SubmissionError{Kind: KindTransport, Reason: "backend returned no job id"}
	}
	return domain.JobHandle{ID: jobID, Mode: in.Mode}, nil
}
