package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baronglock/Site-legendas/internal/api"
	"github.com/baronglock/Site-legendas/internal/config"
	"github.com/baronglock/Site-legendas/internal/credits"
	"github.com/baronglock/Site-legendas/internal/domain"
	"github.com/baronglock/Site-legendas/internal/submit"
)

// ErrTrackerClosed is returned by Submit after Close.
var ErrTrackerClosed = errors.New("tracker closed")

// ErrSubmissionCancelled is returned when Cancel interrupts a submission.
var ErrSubmissionCancelled = errors.New("submission cancelled")

// ErrNothingToRetry is returned by Retry when the last attempt did not fail.
var ErrNothingToRetry = errors.New("nothing to retry")

// Gateway validates and submits inputs.
type Gateway interface {
	Prepare(in domain.SubmissionInput) (domain.SubmissionInput, error)
	Submit(ctx context.Context, in domain.SubmissionInput, onUpload func(float64)) (domain.JobHandle, error)
	Limits() config.PlanLimits
}

// Wallet is the session surface the tracker reads and echoes into.
type Wallet interface {
	Balance() domain.UserBalance
	Reserve(cost float64)
	Invalidate()
}

// TrackerConfig tunes polling and notifications.
type TrackerConfig struct {
	PollInterval         time.Duration
	MaxBackoff           time.Duration
	MaxConsecutiveErrors int
	Notify               bool
	Logf                 func(format string, args ...any)
}

// Tracker drives one submission at a time from estimate to terminal outcome.
type Tracker struct {
	gateway Gateway
	status  StatusSource
	wallet  Wallet
	manager *Manager
	bus     *EventBus
	sink    *Sink
	cfg     TrackerConfig

	mu           sync.Mutex
	closed       bool
	attempt      string
	poller       *Poller
	cancelSubmit context.CancelFunc
	snapshot     domain.StageSnapshot
	estimate     domain.CreditEstimate
	lastInput    domain.SubmissionInput
	outcome      *Outcome
}

// NewTracker wires a tracker. artifactURL builds download links for the sink.
func NewTracker(gateway Gateway, status StatusSource, wallet Wallet, bus *EventBus, artifactURL func(string, domain.Format) string, cfg TrackerConfig) *Tracker {
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	if bus == nil {
		bus = NewEventBus(0)
	}
	return &Tracker{
		gateway:  gateway,
		status:   status,
		wallet:   wallet,
		manager:  NewManager(),
		bus:      bus,
		sink:     NewSink(bus, artifactURL, cfg.Notify),
		cfg:      cfg,
		snapshot: domain.NewStageSnapshot(""),
	}
}

// Estimate validates in locally and prices it against the current balance.
// It returns the prepared input so callers can show file size or platform.
func (t *Tracker) Estimate(in domain.SubmissionInput) (domain.CreditEstimate, domain.SubmissionInput, error) {
	prepared, err := t.gateway.Prepare(in)
	if err != nil {
		return domain.CreditEstimate{}, in, err
	}

	est, err := credits.Estimate(prepared, credits.Options{
		Scope:                  prepared.Scope,
		TranslationOnlyAllowed: t.gateway.Limits().TranslationOnly,
	}, t.wallet.Balance())
	if errors.Is(err, credits.ErrPlanRestriction) {
		return domain.CreditEstimate{}, prepared, &submit.SubmissionError{Kind: submit.KindPlanRestriction, Reason: "translation-only requires a paid plan", Err: err}
	}
	if err != nil {
		return domain.CreditEstimate{}, prepared, err
	}
	return est, prepared, nil
}

// Submit estimates in, blocks it when unaffordable, sends it and starts
// polling the new job. A tracked job is superseded and its poller stopped.
func (t *Tracker) Submit(ctx context.Context, in domain.SubmissionInput) (domain.JobHandle, error) {
	est, prepared, err := t.Estimate(in)
	if err == nil {
		if checkErr := credits.Check(est); checkErr != nil {
			err = &submit.SubmissionError{Kind: submit.KindInsufficientCredits, Reason: "not enough credits for this file", Err: checkErr}
		}
	}
	if err != nil {
		t.publishRejection(err)
		return domain.JobHandle{}, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.JobHandle{}, ErrTrackerClosed
	}
	attemptID := uuid.NewString()
	if err := t.manager.Start(attemptID, prepared); err != nil {
		t.mu.Unlock()
		return domain.JobHandle{}, err
	}
	t.stopPollerLocked()
	subCtx, cancel := context.WithCancel(ctx)
	t.attempt = attemptID
	t.cancelSubmit = cancel
	t.snapshot = UploadSnapshot(0)
	t.estimate = est
	t.lastInput = in
	t.outcome = nil
	snap := t.snapshot
	t.mu.Unlock()
	defer cancel()

	t.bus.Publish(Event{Type: EventTypeStatus, Phase: domain.PhaseSubmitting, Message: "submitting " + prepared.Source(), Estimate: &est})
	t.bus.Publish(Event{Type: EventTypeSnapshot, Phase: domain.PhaseSubmitting, Snapshot: &snap})

	handle, err := t.gateway.Submit(subCtx, prepared, func(fraction float64) {
		t.uploadProgress(attemptID, fraction)
	})

	t.mu.Lock()
	if t.attempt != attemptID {
		t.mu.Unlock()
		return domain.JobHandle{}, ErrSubmissionCancelled
	}
	t.cancelSubmit = nil
	if err != nil {
		t.attempt = ""
		t.snapshot = domain.NewStageSnapshot("")
		t.manager.Reset()
		t.mu.Unlock()
		t.publishRejection(err)
		return domain.JobHandle{}, err
	}

	if err := t.manager.Bind(attemptID, handle); err != nil {
		t.mu.Unlock()
		return domain.JobHandle{}, err
	}
	t.wallet.Reserve(est.CostCredits)

	first := MapStatus(UploadSnapshot(1), handle.ID, domain.JobStatusQueued, 1)
	t.snapshot = first
	p := t.newPollerLocked(handle.ID, first)
	t.poller = p
	t.mu.Unlock()

	t.bus.Publish(Event{JobID: handle.ID, Type: EventTypeStatus, Phase: domain.PhaseTracking, Status: domain.JobStatusQueued, Message: "job accepted"})
	t.bus.Publish(Event{JobID: handle.ID, Type: EventTypeSnapshot, Phase: domain.PhaseTracking, Status: domain.JobStatusQueued, Snapshot: &first})
	p.Start()
	return handle, nil
}

// newPollerLocked builds a poller whose callbacks are ignored once it is no
// longer the tracker's active poller.
func (t *Tracker) newPollerLocked(jobID string, initial domain.StageSnapshot) *Poller {
	var p *Poller
	p = NewPoller(context.Background(), t.status, jobID, PollerConfig{
		Interval:             t.cfg.PollInterval,
		MaxBackoff:           t.cfg.MaxBackoff,
		MaxConsecutiveErrors: t.cfg.MaxConsecutiveErrors,
		UploadFraction:       1,
		Initial:              initial,
		Logf:                 t.cfg.Logf,
		OnSnapshot: func(snap domain.StageSnapshot, report domain.StatusReport) {
			t.onSnapshot(p, snap, report)
		},
		OnTerminal: func(snap domain.StageSnapshot, report domain.StatusReport, err error) {
			t.onTerminal(p, snap, report, err)
		},
		OnError: func(err error, consecutive int) {
			t.bus.Publish(Event{JobID: jobID, Type: EventTypeLog, Message: fmt.Sprintf("status check failed (%d), retrying: %v", consecutive, err)})
		},
	})
	return p
}

func (t *Tracker) onSnapshot(p *Poller, snap domain.StageSnapshot, report domain.StatusReport) {
	t.mu.Lock()
	if t.poller != p {
		t.mu.Unlock()
		return
	}
	t.snapshot = snap
	current, _ := t.manager.Observe(p.JobID(), report)
	t.mu.Unlock()

	t.bus.Publish(Event{
		JobID:    p.JobID(),
		Type:     EventTypeSnapshot,
		Phase:    current.Phase,
		Status:   snap.Status,
		Message:  report.Progress,
		Snapshot: &snap,
	})
}

func (t *Tracker) onTerminal(p *Poller, snap domain.StageSnapshot, report domain.StatusReport, err error) {
	t.mu.Lock()
	if t.poller != p {
		t.mu.Unlock()
		return
	}
	t.poller = nil
	t.attempt = ""
	t.snapshot = snap

	detail := report.Error
	if errors.Is(err, api.ErrUnauthorized) {
		detail = "session expired, sign in again"
	}
	if err != nil {
		_ = t.manager.Fail(firstNonEmpty(detail, err.Error()))
	}
	job := t.manager.Current().Job
	t.mu.Unlock()

	var outcome Outcome
	switch {
	case err == nil && report.Status == domain.JobStatusCompleted:
		outcome = t.sink.Complete(job)
	default:
		outcome = t.sink.Fail(job, detail, err)
	}

	t.mu.Lock()
	if t.attempt == "" && t.manager.Current().Job.ID == job.ID {
		t.outcome = &outcome
	}
	t.mu.Unlock()

	if errors.Is(err, api.ErrUnauthorized) {
		t.wallet.Invalidate()
	}
}

// uploadProgress publishes upload snapshots for the current attempt only,
// and only while its request is still in flight.
func (t *Tracker) uploadProgress(attemptID string, fraction float64) {
	snap := UploadSnapshot(fraction)

	t.mu.Lock()
	if t.attempt != attemptID || t.manager.Current().Phase != domain.PhaseSubmitting ||
		t.snapshot.Stages[domain.StageUpload] == snap.Stages[domain.StageUpload] {
		t.mu.Unlock()
		return
	}
	t.snapshot = snap
	t.mu.Unlock()

	t.bus.Publish(Event{Type: EventTypeSnapshot, Phase: domain.PhaseSubmitting, Snapshot: &snap})
}

// Cancel stops the current submission or poller. A response arriving later is dropped.
func (t *Tracker) Cancel() error {
	t.mu.Lock()
	if err := t.manager.Cancel(); err != nil {
		t.mu.Unlock()
		return err
	}
	t.stopPollerLocked()
	jobID := t.manager.Current().Job.ID
	t.attempt = ""
	t.mu.Unlock()

	t.bus.Publish(Event{JobID: jobID, Type: EventTypeStatus, Phase: domain.PhaseCancelled, Message: "tracking cancelled"})
	return nil
}

// Retry resets a failed or cancelled attempt to pre-submission state with a
// fresh estimate. The old job id is never resumed.
func (t *Tracker) Retry() (domain.SubmissionInput, domain.CreditEstimate, error) {
	t.mu.Lock()
	phase := t.manager.Current().Phase
	if phase != domain.PhaseFailed && phase != domain.PhaseCancelled {
		t.mu.Unlock()
		return domain.SubmissionInput{}, domain.CreditEstimate{}, ErrNothingToRetry
	}
	t.stopPollerLocked()
	t.manager.Reset()
	t.attempt = ""
	t.snapshot = domain.NewStageSnapshot("")
	t.outcome = nil
	in := t.lastInput
	t.mu.Unlock()

	est, prepared, err := t.Estimate(in)
	if err != nil {
		t.publishRejection(err)
		return in, domain.CreditEstimate{}, err
	}

	t.mu.Lock()
	t.estimate = est
	t.mu.Unlock()

	t.bus.Publish(Event{Type: EventTypeStatus, Phase: domain.PhaseIdle, Message: "ready to resubmit " + prepared.Source(), Estimate: &est})
	return in, est, nil
}

// Close stops all background work. Later submissions fail with ErrTrackerClosed.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.attempt = ""
	t.stopPollerLocked()
}

func (t *Tracker) stopPollerLocked() {
	if t.poller != nil {
		t.poller.Stop()
		t.poller = nil
	}
	if t.cancelSubmit != nil {
		t.cancelSubmit()
		t.cancelSubmit = nil
	}
}

func (t *Tracker) publishRejection(err error) {
	kind := submit.KindOf(err)
	if kind == "" && errors.Is(err, submit.ErrSubmissionInFlight) {
		return
	}
	t.bus.Publish(Event{
		Type:      EventTypeError,
		Phase:     domain.PhaseIdle,
		Message:   err.Error(),
		ErrorKind: string(kind),
	})
}

// Current returns the tracked job and its phase.
func (t *Tracker) Current() domain.TrackedJob {
	return t.manager.Current()
}

// Snapshot returns the latest stage snapshot.
func (t *Tracker) Snapshot() domain.StageSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

// LastEstimate returns the estimate of the current or last attempt.
func (t *Tracker) LastEstimate() domain.CreditEstimate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.estimate
}

// Outcome returns the terminal outcome of the last job, if any.
func (t *Tracker) Outcome() (Outcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outcome == nil {
		return Outcome{}, false
	}
	return *t.outcome, true
}

// Events returns tracker events with sequence greater than since.
func (t *Tracker) Events(since int64) []Event {
	return t.bus.Since(since)
}

// Bus exposes the event bus for subscribers.
func (t *Tracker) Bus() *EventBus {
	return t.bus
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
