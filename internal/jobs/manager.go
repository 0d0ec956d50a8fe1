package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// ErrJobAlreadyRunning is returned when a submission is started while another is being sent.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = errors.New("no running job")

// Manager tracks the single active job and its local lifecycle phase.
type Manager struct {
	mu      sync.RWMutex
	current domain.TrackedJob
	now     func() time.Time
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.TrackedJob{Phase: domain.PhaseIdle},
		now:     time.Now,
	}
}

// Start opens a new submission attempt. A tracked job is superseded; a
// submission still being sent is not.
func (m *Manager) Start(attemptID string, in domain.SubmissionInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Phase == domain.PhaseSubmitting {
		return ErrJobAlreadyRunning
	}
	if !isValidTransition(m.current.Phase, domain.PhaseSubmitting) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Phase, domain.PhaseSubmitting)
	}

	m.current = domain.TrackedJob{
		AttemptID: attemptID,
		Phase:     domain.PhaseSubmitting,
		Job: domain.Job{
			Mode:      in.Mode,
			Source:    in.Source(),
			SizeBytes: in.Size(),
		},
		StartedAt: m.now().UTC(),
	}
	return nil
}

// Bind attaches the backend job id to the submitting attempt.
func (m *Manager) Bind(attemptID string, handle domain.JobHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.AttemptID != attemptID || m.current.Phase != domain.PhaseSubmitting {
		return fmt.Errorf("attempt %s is no longer submitting", attemptID)
	}

	m.current.Job.ID = handle.ID
	m.current.Job.Mode = handle.Mode
	m.current.Job.Status = domain.JobStatusQueued
	m.current.Job.CreatedAt = m.now().UTC()
	m.current.Phase = domain.PhaseTracking
	return nil
}

// Observe folds one status report into the tracked job. Reports for other
// jobs, after a terminal phase, or ranking below the current status are ignored.
func (m *Manager) Observe(jobID string, report domain.StatusReport) (domain.TrackedJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Job.ID != jobID || m.current.Phase != domain.PhaseTracking {
		return m.current, false
	}
	if report.Status.Rank() < m.current.Job.Status.Rank() {
		return m.current, false
	}

	job := &m.current.Job
	job.Status = report.Status
	if report.DetectedLanguage != "" {
		job.DetectedLanguage = report.DetectedLanguage
	}
	if len(report.DownloadURLs) > 0 {
		job.DownloadArtifacts = report.DownloadURLs
	}
	if report.Error != "" {
		job.ErrorDetail = report.Error
	}

	switch report.Status {
	case domain.JobStatusCompleted:
		m.current.Phase = domain.PhaseCompleted
	case domain.JobStatusFailed:
		m.current.Phase = domain.PhaseFailed
	}
	return m.current, true
}

// Transition validates and applies phase transitions for the current attempt.
func (m *Manager) Transition(phase domain.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(phase)
}

// Fail moves the current attempt to failed with detail.
func (m *Manager) Fail(detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked(domain.PhaseFailed); err != nil {
		return err
	}
	if detail != "" {
		m.current.Job.ErrorDetail = detail
	}
	if m.current.Job.ID != "" {
		m.current.Job.Status = domain.JobStatusFailed
	}
	return nil
}

func (m *Manager) transitionLocked(phase domain.Phase) error {
	if m.current.AttemptID == "" && phase != domain.PhaseIdle {
		return fmt.Errorf("cannot transition without an active job")
	}
	if phase == m.current.Phase {
		return nil
	}
	if !isValidTransition(m.current.Phase, phase) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Phase, phase)
	}
	m.current.Phase = phase
	return nil
}

// Current returns a snapshot of the current attempt.
func (m *Manager) Current() domain.TrackedJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.current
	if out.Job.DownloadArtifacts != nil {
		artifacts := make(map[domain.Format]string, len(out.Job.DownloadArtifacts))
		for k, v := range out.Job.DownloadArtifacts {
			artifacts[k] = v
		}
		out.Job.DownloadArtifacts = artifacts
	}
	return out
}

// Reset clears job metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.TrackedJob{Phase: domain.PhaseIdle}
}

// IsRunning reports whether a submission is being sent or a job is tracked.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Phase)
}

// Cancel moves an active attempt to cancelled state.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isRunning(m.current.Phase) {
		return ErrNoRunningJob
	}
	m.current.Phase = domain.PhaseCancelled
	return nil
}

// isRunning checks if a phase still expects backend activity.
func isRunning(phase domain.Phase) bool {
	return phase == domain.PhaseSubmitting || phase == domain.PhaseTracking
}

// isValidTransition enforces the allowed lifecycle edges.
func isValidTransition(from, to domain.Phase) bool {
	switch from {
	case domain.PhaseIdle:
		return to == domain.PhaseSubmitting
	case domain.PhaseSubmitting:
		return to == domain.PhaseTracking || to == domain.PhaseFailed || to == domain.PhaseCancelled || to == domain.PhaseIdle
	case domain.PhaseTracking:
		return to == domain.PhaseCompleted || to == domain.PhaseFailed || to == domain.PhaseCancelled || to == domain.PhaseSubmitting
	case domain.PhaseCompleted, domain.PhaseFailed, domain.PhaseCancelled:
		return to == domain.PhaseSubmitting || to == domain.PhaseIdle
	default:
		return false
	}
}
