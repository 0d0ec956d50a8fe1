package domain

// StageStatus is the local status of one of the five progress stages.
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusProcessing StageStatus = "processing"
	StageStatusCompleted  StageStatus = "completed"
	StageStatusError      StageStatus = "error"
)

// Stage indexes into StageSnapshot.Stages.
const (
	StageUpload = iota
	StageAudioExtraction
	StageTranscription
	StageTranslation
	StageFinalization
	StageCount
)

// StageNames holds the display names in pipeline order.
var StageNames = [StageCount]string{
	"Upload",
	"Audio Extraction",
	"Transcription",
	"Translation",
	"Finalization",
}

// Stage is one animated progress step.
type Stage struct {
	Name    string      `json:"name"`
	Percent int         `json:"percent"`
	Status  StageStatus `json:"status"`
}

// StageSnapshot is the derived progress model for one job. It is replaced
// wholesale on every poll tick.
type StageSnapshot struct {
	JobID          string            `json:"jobId,omitempty"`
	Status         JobStatus         `json:"status,omitempty"`
	Stages         [StageCount]Stage `json:"stages"`
	OverallPercent int               `json:"overallPercent"`
}

// NewStageSnapshot returns a snapshot with every stage pending.
func NewStageSnapshot(jobID string) StageSnapshot {
	snap := StageSnapshot{JobID: jobID}
	for i := range snap.Stages {
		snap.Stages[i] = Stage{Name: StageNames[i], Status: StageStatusPending}
	}
	return snap
}

// CreditEstimate is the client-side cost guess computed before submission.
type CreditEstimate struct {
	EstimatedMinutes int64   `json:"estimatedMinutes"`
	Multiplier       float64 `json:"multiplier"`
	CostCredits      float64 `json:"costCredits"`
	Sufficient       bool    `json:"sufficient"`
	Provisional      bool    `json:"provisional,omitempty"`
}

// UserBalance is the remaining and total minute allowance of the user.
type UserBalance struct {
	MinutesRemaining float64 `json:"minutesRemaining"`
	MinutesTotal     float64 `json:"minutesTotal"`
}

// Profile is the authenticated user as reported by the backend.
type Profile struct {
	UserID  string      `json:"userId"`
	Email   string      `json:"email,omitempty"`
	Plan    Plan        `json:"plan"`
	Balance UserBalance `json:"balance"`
}
