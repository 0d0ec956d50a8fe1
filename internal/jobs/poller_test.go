package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/baronglock/Site-legendas/internal/api"
	"github.com/baronglock/Site-legendas/internal/domain"
)

type scriptedStatus struct {
	mu      sync.Mutex
	calls   int
	script  []domain.JobStatus
	errs    map[int]error
	blockOn int
	release chan struct{}
}

func (s *scriptedStatus) JobStatus(ctx context.Context, jobID string) (domain.StatusReport, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	if s.blockOn == n {
		<-s.release
	}
	if err, ok := s.errs[n]; ok {
		return domain.StatusReport{}, err
	}

	idx := n - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	status := s.script[idx]
	report := domain.StatusReport{Status: status}
	if status == domain.JobStatusFailed {
		report.Error = "decoder crashed"
	}
	return report, nil
}

func (s *scriptedStatus) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type terminalRecord struct {
	mu     sync.Mutex
	count  int
	snap   domain.StageSnapshot
	report domain.StatusReport
	err    error
	snaps  []domain.StageSnapshot
}

func (r *terminalRecord) config(interval time.Duration) PollerConfig {
	return PollerConfig{
		Interval:       interval,
		UploadFraction: 1,
		Logf:           func(string, ...any) {},
		OnSnapshot: func(snap domain.StageSnapshot, _ domain.StatusReport) {
			r.mu.Lock()
			r.snaps = append(r.snaps, snap)
			r.mu.Unlock()
		},
		OnTerminal: func(snap domain.StageSnapshot, report domain.StatusReport, err error) {
			r.mu.Lock()
			r.count++
			r.snap, r.report, r.err = snap, report, err
			r.mu.Unlock()
		},
	}
}

func (r *terminalRecord) get() (int, domain.StageSnapshot, domain.StatusReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count, r.snap, r.report, r.err
}

func waitDone(t *testing.T, p *Poller) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not finish")
	}
}

// TestPollerStopsAtTerminalStatus checks that no request follows completed.
func TestPollerStopsAtTerminalStatus(t *testing.T) {
	src := &scriptedStatus{script: []domain.JobStatus{
		domain.JobStatusQueued,
		domain.JobStatusProcessing,
		domain.JobStatusTranscribing,
		domain.JobStatusTranslating,
		domain.JobStatusCompleted,
	}}
	rec := &terminalRecord{}
	p := NewPoller(context.Background(), src, "X", rec.config(2*time.Millisecond))
	p.Start()
	waitDone(t, p)

	calls := src.Calls()
	time.Sleep(20 * time.Millisecond)
	if src.Calls() != calls || calls != 5 {
		t.Fatalf("calls = %d then %d, want 5 and no more", calls, src.Calls())
	}

	count, snap, _, err := rec.get()
	if count != 1 || err != nil {
		t.Fatalf("terminal count = %d err = %v, want 1/nil", count, err)
	}
	if snap.OverallPercent != 100 {
		t.Fatalf("final percent = %d, want 100", snap.OverallPercent)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := 1; i < len(rec.snaps); i++ {
		if rec.snaps[i].OverallPercent < rec.snaps[i-1].OverallPercent {
			t.Fatalf("percent regressed at %d: %d -> %d", i, rec.snaps[i-1].OverallPercent, rec.snaps[i].OverallPercent)
		}
	}
}

// TestPollerFailedStatusKeepsCompletedStages covers processing then failed.
func TestPollerFailedStatusKeepsCompletedStages(t *testing.T) {
	src := &scriptedStatus{script: []domain.JobStatus{domain.JobStatusProcessing, domain.JobStatusFailed}}
	rec := &terminalRecord{}
	p := NewPoller(context.Background(), src, "X", rec.config(2*time.Millisecond))
	p.Start()
	waitDone(t, p)

	count, snap, report, err := rec.get()
	if count != 1 || err != nil {
		t.Fatalf("terminal count = %d err = %v", count, err)
	}
	if report.Error != "decoder crashed" {
		t.Fatalf("error detail = %q", report.Error)
	}
	if snap.Stages[domain.StageUpload].Status != domain.StageStatusCompleted ||
		snap.Stages[domain.StageAudioExtraction].Status != domain.StageStatusError ||
		snap.Stages[domain.StageTranscription].Status != domain.StageStatusPending {
		t.Fatalf("stages = %v", stageStatuses(snap))
	}
	if src.Calls() != 2 {
		t.Fatalf("calls = %d, want 2", src.Calls())
	}
}

// TestPollerStopDropsLateResponse discards a response resolved after Stop.
func TestPollerStopDropsLateResponse(t *testing.T) {
	src := &scriptedStatus{
		script:  []domain.JobStatus{domain.JobStatusCompleted},
		blockOn: 1,
		release: make(chan struct{}),
	}
	rec := &terminalRecord{}
	p := NewPoller(context.Background(), src, "X", rec.config(time.Millisecond))
	p.Start()

	deadline := time.Now().Add(time.Second)
	for src.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	p.Stop()
	p.Stop()
	close(src.release)
	waitDone(t, p)

	count, _, _, _ := rec.get()
	rec.mu.Lock()
	snaps := len(rec.snaps)
	rec.mu.Unlock()
	if count != 0 || snaps != 0 {
		t.Fatalf("terminal = %d snapshots = %d, want nothing applied", count, snaps)
	}
	if p.Snapshot().Status != "" {
		t.Fatalf("snapshot status = %s, want untouched", p.Snapshot().Status)
	}
}

// TestPollerStopBeforeStart closes Done without running.
func TestPollerStopBeforeStart(t *testing.T) {
	src := &scriptedStatus{script: []domain.JobStatus{domain.JobStatusQueued}}
	p := NewPoller(context.Background(), src, "X", PollerConfig{Interval: time.Millisecond})
	p.Stop()
	p.Start()
	waitDone(t, p)
	if src.Calls() != 0 {
		t.Fatalf("calls = %d, want 0", src.Calls())
	}
}

// TestPollerAbandonsAfterConsecutiveErrors bounds retries on transport errors.
func TestPollerAbandonsAfterConsecutiveErrors(t *testing.T) {
	boom := errors.New("connection reset")
	src := &scriptedStatus{
		script: []domain.JobStatus{domain.JobStatusQueued},
		errs:   map[int]error{1: boom, 2: boom, 3: boom},
	}
	rec := &terminalRecord{}
	cfg := rec.config(time.Millisecond)
	cfg.MaxBackoff = 4 * time.Millisecond
	cfg.MaxConsecutiveErrors = 3
	var retried []int
	cfg.OnError = func(_ error, n int) { retried = append(retried, n) }

	p := NewPoller(context.Background(), src, "X", cfg)
	p.Start()
	waitDone(t, p)

	count, _, _, err := rec.get()
	if count != 1 || !errors.Is(err, ErrPollingAbandoned) {
		t.Fatalf("terminal = %d err = %v, want abandoned", count, err)
	}
	if src.Calls() != 3 {
		t.Fatalf("calls = %d, want 3", src.Calls())
	}
	if len(retried) != 2 {
		t.Fatalf("retries reported = %v, want 2", retried)
	}
}

// TestPollerRecoversAfterTransientErrors resets the error streak on success.
func TestPollerRecoversAfterTransientErrors(t *testing.T) {
	boom := errors.New("timeout")
	src := &scriptedStatus{
		script: []domain.JobStatus{domain.JobStatusProcessing, domain.JobStatusProcessing, domain.JobStatusProcessing, domain.JobStatusCompleted},
		errs:   map[int]error{2: boom, 3: boom},
	}
	rec := &terminalRecord{}
	cfg := rec.config(time.Millisecond)
	cfg.MaxConsecutiveErrors = 3
	p := NewPoller(context.Background(), src, "X", cfg)
	p.Start()
	waitDone(t, p)

	count, snap, _, err := rec.get()
	if count != 1 || err != nil || snap.Status != domain.JobStatusCompleted {
		t.Fatalf("terminal = %d err = %v status = %s", count, err, snap.Status)
	}
}

// TestPollerUnauthorizedStopsImmediately ends on an invalid session.
func TestPollerUnauthorizedStopsImmediately(t *testing.T) {
	src := &scriptedStatus{
		script: []domain.JobStatus{domain.JobStatusQueued},
		errs:   map[int]error{1: &api.StatusError{Code: 401}},
	}
	rec := &terminalRecord{}
	p := NewPoller(context.Background(), src, "X", rec.config(time.Millisecond))
	p.Start()
	waitDone(t, p)

	_, _, _, err := rec.get()
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if src.Calls() != 1 {
		t.Fatalf("calls = %d, want 1", src.Calls())
	}
}

// TestPollerNotFoundIsTerminalFailure maps a vanished job onto failed.
func TestPollerNotFoundIsTerminalFailure(t *testing.T) {
	src := &scriptedStatus{
		script: []domain.JobStatus{domain.JobStatusQueued},
		errs:   map[int]error{1: &api.StatusError{Code: 404, Detail: "Job not found"}},
	}
	rec := &terminalRecord{}
	p := NewPoller(context.Background(), src, "X", rec.config(time.Millisecond))
	p.Start()
	waitDone(t, p)

	_, snap, report, err := rec.get()
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if snap.Status != domain.JobStatusFailed || report.Error == "" {
		t.Fatalf("snapshot = %+v report = %+v", snap, report)
	}
}

// TestPollerBackoffTicks checks the doubling schedule and its cap.
func TestPollerBackoffTicks(t *testing.T) {
	p := NewPoller(context.Background(), &scriptedStatus{}, "X", PollerConfig{
		Interval:   time.Second,
		MaxBackoff: 10 * time.Second,
	})
	want := map[int]int{1: 0, 2: 1, 3: 3, 4: 7, 5: 9, 20: 9}
	for n, skip := range want {
		if got := p.backoffTicks(n); got != skip {
			t.Fatalf("backoffTicks(%d) = %d, want %d", n, got, skip)
		}
	}
}

// TestPollerNeverOverlapsRequests holds the first request across many
// intervals and checks no second request is sent until it returns.
func TestPollerNeverOverlapsRequests(t *testing.T) {
	src := &scriptedStatus{
		script: []domain.JobStatus{
			domain.JobStatusProcessing,
			domain.JobStatusProcessing,
			domain.JobStatusCompleted,
		},
		blockOn: 1,
		release: make(chan struct{}),
	}
	rec := &terminalRecord{}
	p := NewPoller(context.Background(), src, "X", rec.config(time.Millisecond))
	p.Start()

	deadline := time.Now().Add(time.Second)
	for src.Calls() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	hold := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(hold) {
		if n := src.Calls(); n != 1 {
			close(src.release)
			t.Fatalf("calls = %d while the first request is in flight, want 1", n)
		}
		time.Sleep(time.Millisecond)
	}

	close(src.release)
	waitDone(t, p)

	if src.Calls() != 3 {
		t.Fatalf("calls = %d, want 3", src.Calls())
	}
	count, snap, _, err := rec.get()
	if count != 1 || err != nil || snap.Status != domain.JobStatusCompleted {
		t.Fatalf("terminal = %d/%v/%s, want 1/nil/completed", count, err, snap.Status)
	}
}
