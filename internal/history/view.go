// Package history lists the user's past jobs independently of the
// single-job tracker.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/baronglock/Site-legendas/internal/domain"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultLimit    = 20
)

// Source is the slice of the backend client the view needs.
type Source interface {
	ListJobs(ctx context.Context, limit int) ([]domain.JobSummary, error)
	Translate(ctx context.Context, jobID, targetLanguage string) error
	Download(ctx context.Context, jobID string, format domain.Format, w io.Writer) error
}

// Badge is the coarse status shown next to a history row.
type Badge string

const (
	BadgePending Badge = "pending"
	BadgeWorking Badge = "working"
	BadgeDone    Badge = "done"
	BadgeFailed  Badge = "failed"
)

// BadgeFor maps a wire status onto a badge.
func BadgeFor(status domain.JobStatus) Badge {
	switch status {
	case domain.JobStatusProcessing, domain.JobStatusTranscribing, domain.JobStatusTranslating:
		return BadgeWorking
	case domain.JobStatusCompleted:
		return BadgeDone
	case domain.JobStatusFailed:
		return BadgeFailed
	default:
		return BadgePending
	}
}

// Row is one job of the list with its badge.
type Row struct {
	domain.JobSummary
	Badge Badge `json:"badge"`
}

// Options configures a View.
type Options struct {
	Interval time.Duration
	Limit    int
	Cache    *Cache
	OnChange func([]Row)
	Logf     func(format string, args ...any)
}

// View polls the job list while it is started.
type View struct {
	src      Source
	cache    *Cache
	interval time.Duration
	limit    int
	onChange func([]Row)
	logf     func(format string, args ...any)

	// fetch keeps at most one list request in flight.
	fetch sync.Mutex

	mu        sync.Mutex
	rows      []Row
	updatedAt time.Time
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewView creates a stopped view over src.
func NewView(src Source, opts Options) *View {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	return &View{
		src:      src,
		cache:    opts.Cache,
		interval: opts.Interval,
		limit:    opts.Limit,
		onChange: opts.OnChange,
		logf:     opts.Logf,
	}
}

// Start begins periodic refreshes. Calling Start on a running view is a no-op.
func (v *View) Start(ctx context.Context) {
	v.mu.Lock()
	if v.cancel != nil {
		v.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	v.cancel, v.done = cancel, done
	needsCache := len(v.rows) == 0 && v.cache != nil
	v.mu.Unlock()

	if needsCache {
		v.loadCache(runCtx)
	}
	go v.run(runCtx, done)
}

// Stop halts refreshes and waits for the loop to exit. Safe to call twice.
func (v *View) Stop() {
	v.mu.Lock()
	cancel, done := v.cancel, v.done
	v.cancel, v.done = nil, nil
	v.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the view is started.
func (v *View) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancel != nil
}

func (v *View) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		if _, err := v.Refresh(ctx); err != nil && ctx.Err() == nil {
			v.logf("history refresh failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh fetches the list now. A response arriving after ctx ends is dropped.
func (v *View) Refresh(ctx context.Context) ([]Row, error) {
	v.fetch.Lock()
	defer v.fetch.Unlock()

	jobs, err := v.src.ListJobs(ctx, v.limit)
	if ctx.Err() != nil {
		return v.Rows(), ctx.Err()
	}
	if err != nil {
		v.mu.Lock()
		v.lastErr = err
		v.mu.Unlock()
		return v.Rows(), fmt.Errorf("list jobs: %w", err)
	}

	rows := toRows(jobs)
	v.mu.Lock()
	v.rows = rows
	v.updatedAt = time.Now()
	v.lastErr = nil
	v.mu.Unlock()

	if v.cache != nil {
		if err := v.cache.Save(ctx, jobs); err != nil {
			v.logf("history cache write failed: %v", err)
		}
	}
	if v.onChange != nil {
		v.onChange(cloneRows(rows))
	}
	return cloneRows(rows), nil
}

func (v *View) loadCache(ctx context.Context) {
	jobs, err := v.cache.Load(ctx)
	if err != nil {
		v.logf("history cache read failed: %v", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	v.mu.Lock()
	if len(v.rows) == 0 {
		v.rows = toRows(jobs)
	}
	v.mu.Unlock()
}

// Rows returns the latest list, newest first as the backend ordered it.
func (v *View) Rows() []Row {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneRows(v.rows)
}

// Filter returns the rows carrying badge.
func (v *View) Filter(badge Badge) []Row {
	return lo.Filter(v.Rows(), func(row Row, _ int) bool {
		return row.Badge == badge
	})
}

// Find returns the row with id.
func (v *View) Find(id string) (Row, bool) {
	return lo.Find(v.Rows(), func(row Row) bool {
		return row.ID == id
	})
}

// UpdatedAt returns when the list was last fetched successfully.
func (v *View) UpdatedAt() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updatedAt
}

// LastError returns the error of the most recent failed refresh, if any.
func (v *View) LastError() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

// RequestTranslation asks the backend to translate a finished transcript.
// The result only shows up in later refreshes.
func (v *View) RequestTranslation(ctx context.Context, jobID, targetLanguage string) error {
	jobID = strings.TrimSpace(jobID)
	targetLanguage = strings.TrimSpace(targetLanguage)
	if jobID == "" {
		return errors.New("job id is required")
	}
	if targetLanguage == "" {
		return errors.New("target language is required")
	}

	if err := v.src.Translate(ctx, jobID, targetLanguage); err != nil {
		return fmt.Errorf("request translation of %s: %w", jobID, err)
	}
	v.logf("translation of %s to %s requested", jobID, targetLanguage)
	return nil
}

func toRows(jobs []domain.JobSummary) []Row {
	return lo.Map(jobs, func(job domain.JobSummary, _ int) Row {
		return Row{JobSummary: job, Badge: BadgeFor(job.Status)}
	})
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}
