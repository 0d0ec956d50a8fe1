package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baronglock/Site-legendas/internal/api"
	"github.com/baronglock/Site-legendas/internal/domain"
)

const (
	// DefaultPollInterval is the period between status requests.
	DefaultPollInterval = 2500 * time.Millisecond

	// DefaultMaxBackoff caps the wait between requests after transport errors.
	DefaultMaxBackoff = 30 * time.Second

	// DefaultMaxConsecutiveErrors ends polling after this many failed requests in a row.
	DefaultMaxConsecutiveErrors = 10
)

// ErrPollingAbandoned is reported when the status endpoint kept failing.
var ErrPollingAbandoned = errors.New("job status unavailable, polling abandoned")

// ErrJobNotFound is reported when the backend no longer knows the job.
var ErrJobNotFound = errors.New("job not found")

// StatusSource is the part of the REST client the poller needs.
type StatusSource interface {
	JobStatus(ctx context.Context, jobID string) (domain.StatusReport, error)
}

// PollerConfig tunes one poller.
type PollerConfig struct {
	Interval             time.Duration
	MaxBackoff           time.Duration
	MaxConsecutiveErrors int
	UploadFraction       float64
	Initial              domain.StageSnapshot

	// OnSnapshot runs after every accepted response, terminal ones included.
	OnSnapshot func(snap domain.StageSnapshot, report domain.StatusReport)
	// OnTerminal runs exactly once when polling ends on its own. err is nil
	// for a backend-reported completed or failed status.
	OnTerminal func(snap domain.StageSnapshot, report domain.StatusReport, err error)
	// OnError runs for every failed request that will be retried.
	OnError func(err error, consecutive int)
	Logf    func(format string, args ...any)
}

// Poller is a cancellable task bound to one job id. It issues at most one
// status request at a time.
type Poller struct {
	jobID  string
	source StatusSource
	cfg    PollerConfig

	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
	started atomic.Bool
	done    chan struct{}
	once    sync.Once

	mu   sync.Mutex
	snap domain.StageSnapshot
}

// NewPoller creates a poller for jobID. Nothing runs until Start.
func NewPoller(parent context.Context, source StatusSource, jobID string, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = cfg.Interval
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}

	snap := cfg.Initial
	if snap.Stages[0].Name == "" {
		snap = domain.NewStageSnapshot(jobID)
	}

	ctx, cancel := context.WithCancel(parent)
	return &Poller{
		jobID:  jobID,
		source: source,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		snap:   snap,
	}
}

// JobID returns the job this poller is bound to.
func (p *Poller) JobID() string {
	return p.jobID
}

// Start launches the polling goroutine. The first request is sent immediately.
func (p *Poller) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run()
}

// Stop cancels polling without waiting. It is safe to call more than once.
func (p *Poller) Stop() {
	p.stopped.Store(true)
	p.cancel()
	if p.started.CompareAndSwap(false, true) {
		close(p.done)
	}
}

// Stopped reports whether the poller was stopped or finished.
func (p *Poller) Stopped() bool {
	return p.stopped.Load()
}

// Done is closed when the polling goroutine has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Snapshot returns the last mapped snapshot.
func (p *Poller) Snapshot() domain.StageSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Poller) run() {
	defer close(p.done)
	defer p.cancel()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	failures := 0
	skip := 0
	for {
		if skip > 0 {
			skip--
		} else if p.tick(&failures) {
			return
		} else if failures > 0 {
			skip = p.backoffTicks(failures)
		}

		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick issues one request and reports whether polling is over.
func (p *Poller) tick(failures *int) bool {
	if p.stopped.Load() {
		return true
	}

	report, err := p.source.JobStatus(p.ctx, p.jobID)
	if p.stopped.Load() || p.ctx.Err() != nil {
		return true
	}

	if err != nil {
		return p.handleError(err, failures)
	}
	*failures = 0

	if !report.Status.Valid() {
		p.cfg.Logf("poll %s: ignoring unknown status %q", p.jobID, report.Status)
		return false
	}

	p.mu.Lock()
	next := MapStatus(p.snap, p.jobID, report.Status, p.cfg.UploadFraction)
	changed := next != p.snap
	p.snap = next
	p.mu.Unlock()

	if changed || report.Status.IsTerminal() {
		p.emitSnapshot(next, report)
	}
	if report.Status.IsTerminal() {
		p.finish(next, report, nil)
		return true
	}
	return false
}

func (p *Poller) handleError(err error, failures *int) bool {
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		p.finish(p.Snapshot(), domain.StatusReport{}, err)
		return true
	case errors.Is(err, api.ErrNotFound):
		p.mu.Lock()
		p.snap = MapStatus(p.snap, p.jobID, domain.JobStatusFailed, p.cfg.UploadFraction)
		snap := p.snap
		p.mu.Unlock()
		report := domain.StatusReport{Status: domain.JobStatusFailed, Error: ErrJobNotFound.Error()}
		p.emitSnapshot(snap, report)
		p.finish(snap, report, ErrJobNotFound)
		return true
	}

	*failures++
	p.cfg.Logf("poll %s: attempt %d failed: %v", p.jobID, *failures, err)
	if *failures >= p.cfg.MaxConsecutiveErrors {
		p.finish(p.Snapshot(), domain.StatusReport{}, fmt.Errorf("%w: %v", ErrPollingAbandoned, err))
		return true
	}
	if p.cfg.OnError != nil {
		p.cfg.OnError(err, *failures)
	}
	return false
}

// backoffTicks returns how many ticks to skip after n consecutive failures:
// the wait doubles per failure up to MaxBackoff.
func (p *Poller) backoffTicks(n int) int {
	maxTicks := int(p.cfg.MaxBackoff / p.cfg.Interval)
	ticks := 1
	for i := 1; i < n && ticks < maxTicks; i++ {
		ticks *= 2
	}
	if ticks > maxTicks {
		ticks = maxTicks
	}
	return ticks - 1
}

func (p *Poller) emitSnapshot(snap domain.StageSnapshot, report domain.StatusReport) {
	if p.cfg.OnSnapshot != nil && !p.stopped.Load() {
		p.cfg.OnSnapshot(snap, report)
	}
}

// finish marks the poller stopped and runs OnTerminal once.
func (p *Poller) finish(snap domain.StageSnapshot, report domain.StatusReport, err error) {
	p.once.Do(func() {
		if p.stopped.Swap(true) {
			return
		}
		if p.cfg.OnTerminal != nil {
			p.cfg.OnTerminal(snap, report, err)
		}
	})
}
