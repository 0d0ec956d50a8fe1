package jobs

import (
	"github.com/samber/lo"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// Outcome is what the sink exposes once a job reaches a terminal state.
type Outcome struct {
	JobID          string                   `json:"jobId"`
	Status         domain.JobStatus         `json:"status"`
	Artifacts      map[domain.Format]string `json:"artifacts,omitempty"`
	ErrorDetail    string                   `json:"errorDetail,omitempty"`
	RetryAvailable bool                     `json:"retryAvailable"`
	Err            error                    `json:"-"`
}

// Sink turns terminal poll results into result, error and notification events.
type Sink struct {
	bus         *EventBus
	artifactURL func(jobID string, format domain.Format) string
	notify      bool
}

// NewSink creates a sink publishing to bus. artifactURL builds download links
// for formats the backend did not list.
func NewSink(bus *EventBus, artifactURL func(string, domain.Format) string, notify bool) *Sink {
	return &Sink{bus: bus, artifactURL: artifactURL, notify: notify}
}

// Complete exposes the artifacts of a completed job.
func (s *Sink) Complete(job domain.Job) Outcome {
	artifacts := s.artifacts(job.ID, job.DownloadArtifacts)
	out := Outcome{
		JobID:     job.ID,
		Status:    domain.JobStatusCompleted,
		Artifacts: artifacts,
	}

	s.bus.Publish(Event{
		JobID:     job.ID,
		Type:      EventTypeResult,
		Phase:     domain.PhaseCompleted,
		Status:    domain.JobStatusCompleted,
		Message:   "subtitles ready",
		Artifacts: artifacts,
	})
	if s.notify {
		s.bus.Publish(Event{
			JobID:   job.ID,
			Type:    EventTypeNotification,
			Status:  domain.JobStatusCompleted,
			Message: notificationText(job),
			Action:  ActionView,
		})
	}
	return out
}

// Fail exposes the error detail of a failed job with a retry affordance.
func (s *Sink) Fail(job domain.Job, detail string, err error) Outcome {
	if detail == "" && err != nil {
		detail = err.Error()
	}
	if detail == "" {
		detail = "processing failed"
	}

	out := Outcome{
		JobID:          job.ID,
		Status:         domain.JobStatusFailed,
		ErrorDetail:    detail,
		RetryAvailable: true,
		Err:            err,
	}
	s.bus.Publish(Event{
		JobID:          job.ID,
		Type:           EventTypeError,
		Phase:          domain.PhaseFailed,
		Status:         domain.JobStatusFailed,
		Message:        detail,
		Action:         ActionRetry,
		Persistent:     true,
		RetryAvailable: true,
	})
	return out
}

// artifacts guarantees an entry for every format, keeping backend-supplied links.
func (s *Sink) artifacts(jobID string, given map[domain.Format]string) map[domain.Format]string {
	out := lo.Assign(map[domain.Format]string{}, given)
	for _, format := range domain.ArtifactFormats {
		if out[format] == "" && s.artifactURL != nil {
			out[format] = s.artifactURL(jobID, format)
		}
	}
	return out
}

func notificationText(job domain.Job) string {
	if job.Source == "" {
		return "Your subtitles are ready"
	}
	return "Subtitles for " + job.Source + " are ready"
}
