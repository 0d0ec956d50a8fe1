package domain

import "time"

// JobStatus is the server-authoritative status of one backend job.
type JobStatus string

const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusProcessing   JobStatus = "processing"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusTranslating  JobStatus = "translating"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
)

// Valid reports whether s is one of the wire values.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusTranscribing,
		JobStatusTranslating, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further polling should happen.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Rank orders the non-failed statuses along the pipeline. Unknown and
// empty statuses rank below queued; failed ranks with completed.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusTranscribing:
		return 2
	case JobStatusTranslating:
		return 3
	case JobStatusCompleted, JobStatusFailed:
		return 4
	default:
		return -1
	}
}

// Mode is the input modality of a submission.
type Mode string

const (
	ModeFile Mode = "file"
	ModeURL  Mode = "url"
)

// Scope is the requested processing scope, which sets the credit multiplier.
type Scope string

const (
	ScopeFull          Scope = "full"
	ScopeTranscribe    Scope = "transcribe"
	ScopeTranslateOnly Scope = "translate"
)

// Plan names a billing plan as reported by the session collaborator.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"
)

// Format is a downloadable subtitle artifact format.
type Format string

const (
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatJSON Format = "json"
)

// ArtifactFormats lists the formats every completed job exposes.
var ArtifactFormats = []Format{FormatSRT, FormatVTT, FormatJSON}

// Valid reports whether f is a known artifact format.
func (f Format) Valid() bool {
	return f == FormatSRT || f == FormatVTT || f == FormatJSON
}

// Job is the tracker's view of one backend job.
type Job struct {
	ID                string            `json:"id"`
	Mode              Mode              `json:"mode"`
	Source            string            `json:"source"`
	SizeBytes         int64             `json:"sizeBytes,omitempty"`
	Status            JobStatus         `json:"status"`
	CreatedAt         time.Time         `json:"createdAt"`
	DetectedLanguage  string            `json:"detectedLanguage,omitempty"`
	DownloadArtifacts map[Format]string `json:"downloadArtifacts,omitempty"`
	ErrorDetail       string            `json:"errorDetail,omitempty"`
}

// JobHandle is what a successful submission yields.
type JobHandle struct {
	ID   string `json:"id"`
	Mode Mode   `json:"mode"`
}

// StatusReport is one decoded response of the job-status endpoint.
type StatusReport struct {
	Status           JobStatus         `json:"status"`
	Progress         string            `json:"progress,omitempty"`
	DetectedLanguage string            `json:"detectedLanguage,omitempty"`
	DownloadURLs     map[Format]string `json:"downloadUrls,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// JobSummary is one row of the user's job list.
type JobSummary struct {
	ID               string            `json:"id"`
	Filename         string            `json:"filename,omitempty"`
	Status           JobStatus         `json:"status"`
	Progress         string            `json:"progress,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	DetectedLanguage string            `json:"detectedLanguage,omitempty"`
	DownloadURLs     map[Format]string `json:"downloadUrls,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Segment is one timed subtitle line from the json artifact.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Settings contains user-selectable client configuration.
type Settings struct {
	APIBaseURL        string `json:"apiBaseUrl"`
	Token             string `json:"token,omitempty"`
	OutputDir         string `json:"outputDir"`
	CacheDir          string `json:"cacheDir"`
	SourceLanguage    string `json:"sourceLanguage"`
	TargetLanguage    string `json:"targetLanguage"`
	Translate         bool   `json:"translate"`
	PollIntervalMs    int    `json:"pollIntervalMs"`
	HistoryIntervalMs int    `json:"historyIntervalMs"`
	HistoryLimit      int    `json:"historyLimit"`
}

// PollInterval returns the per-job polling period.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// HistoryInterval returns the job list refresh period.
func (s Settings) HistoryInterval() time.Duration {
	return time.Duration(s.HistoryIntervalMs) * time.Millisecond
}
