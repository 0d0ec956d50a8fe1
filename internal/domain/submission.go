package domain

import "time"

// FileDescriptor describes a local media file chosen for upload.
type FileDescriptor struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	MIME      string `json:"mime,omitempty"`
}

// URLDescriptor describes a remote video page chosen for ingestion.
type URLDescriptor struct {
	URL             string  `json:"url"`
	Platform        string  `json:"platform,omitempty"`
	Title           string  `json:"title,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// SubmissionInput is a tagged variant: Mode selects which of File or URL is set.
type SubmissionInput struct {
	Mode           Mode            `json:"mode"`
	File           *FileDescriptor `json:"file,omitempty"`
	URL            *URLDescriptor  `json:"url,omitempty"`
	Scope          Scope           `json:"scope"`
	SourceLanguage string          `json:"sourceLanguage"`
	TargetLanguage string          `json:"targetLanguage"`
}

// FileInput builds a file-mode submission for path.
func FileInput(path string, scope Scope) SubmissionInput {
	return SubmissionInput{Mode: ModeFile, File: &FileDescriptor{Path: path}, Scope: scope}
}

// URLInput builds a url-mode submission for rawURL.
func URLInput(rawURL string, scope Scope) SubmissionInput {
	return SubmissionInput{Mode: ModeURL, URL: &URLDescriptor{URL: rawURL}, Scope: scope}
}

// Translate reports whether the backend should run the translation phase.
func (in SubmissionInput) Translate() bool {
	return in.Scope != ScopeTranscribe
}

// Source returns a short display string for the submitted media.
func (in SubmissionInput) Source() string {
	switch {
	case in.Mode == ModeFile && in.File != nil:
		if in.File.Name != "" {
			return in.File.Name
		}
		return in.File.Path
	case in.Mode == ModeURL && in.URL != nil:
		return in.URL.URL
	default:
		return ""
	}
}

// Size returns the file size for file mode and zero otherwise.
func (in SubmissionInput) Size() int64 {
	if in.Mode == ModeFile && in.File != nil {
		return in.File.SizeBytes
	}
	return 0
}

// Phase is the local lifecycle state of the tracker.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseTracking   Phase = "tracking"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// Active reports whether a submission or its polling is in progress.
func (p Phase) Active() bool {
	return p == PhaseSubmitting || p == PhaseTracking
}

// TrackedJob pairs the local lifecycle phase with the job it concerns.
type TrackedJob struct {
	AttemptID string    `json:"attemptId,omitempty"`
	Phase     Phase     `json:"phase"`
	Job       Job       `json:"job"`
	StartedAt time.Time `json:"startedAt,omitempty"`
}
