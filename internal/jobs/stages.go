package jobs

import (
	"math"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// activeStagePercent is shown for a stage the backend is working on; the
// backend reports no finer progress than the phase name.
const activeStagePercent = 50

// stageBaseline is the row of the mapping table for one backend status.
type stageBaseline struct {
	completed int // stages [0, completed) are done
	active    int // index of the processing stage, or -1
	percent   int
}

var baselines = map[domain.JobStatus]stageBaseline{
	domain.JobStatusQueued:       {completed: 1, active: -1, percent: 0},
	domain.JobStatusProcessing:   {completed: 1, active: domain.StageAudioExtraction, percent: 30},
	domain.JobStatusTranscribing: {completed: 2, active: domain.StageTranscription, percent: 60},
	domain.JobStatusTranslating:  {completed: 3, active: domain.StageTranslation, percent: 80},
	domain.JobStatusCompleted:    {completed: domain.StageCount, active: -1, percent: 100},
}

// UploadSnapshot is the progress shown while a file is still being sent and
// no job id exists yet. fraction is clamped to [0, 1].
func UploadSnapshot(fraction float64) domain.StageSnapshot {
	fraction = clampFraction(fraction)
	snap := domain.NewStageSnapshot("")
	snap.Stages[domain.StageUpload].Status = domain.StageStatusProcessing
	snap.Stages[domain.StageUpload].Percent = int(math.Round(fraction * 100))
	snap.OverallPercent = uploadPercent(fraction)
	return snap
}

// MapStatus recomputes the whole snapshot for status. prev is only consulted
// to keep the output monotonic: stale statuses return prev unchanged, a
// completed stage never regresses and the aggregate never decreases. A
// terminal prev is final. uploadFraction scales the queued aggregate (0–20).
func MapStatus(prev domain.StageSnapshot, jobID string, status domain.JobStatus, uploadFraction float64) domain.StageSnapshot {
	if prev.JobID != "" && prev.JobID != jobID {
		prev = domain.NewStageSnapshot(jobID)
	}
	if prev.Status.IsTerminal() {
		return prev
	}
	if !status.Valid() || status.Rank() < prev.Status.Rank() {
		return prev
	}

	if status == domain.JobStatusFailed {
		return failSnapshot(prev, jobID)
	}

	base := baselines[status]
	next := domain.NewStageSnapshot(jobID)
	next.Status = status
	for i := range next.Stages {
		switch {
		case i < base.completed:
			next.Stages[i].Status = domain.StageStatusCompleted
			next.Stages[i].Percent = 100
		case i == base.active:
			next.Stages[i].Status = domain.StageStatusProcessing
			next.Stages[i].Percent = activeStagePercent
		}
		if prev.Stages[i].Status == domain.StageStatusCompleted && next.Stages[i].Status != domain.StageStatusCompleted {
			next.Stages[i] = prev.Stages[i]
		}
	}

	next.OverallPercent = base.percent
	if status == domain.JobStatusQueued {
		next.OverallPercent = uploadPercent(clampFraction(uploadFraction))
	}
	if next.OverallPercent < prev.OverallPercent {
		next.OverallPercent = prev.OverallPercent
	}
	return next
}

// failSnapshot keeps completed stages, flips processing stages to error and
// keeps the aggregate.
func failSnapshot(prev domain.StageSnapshot, jobID string) domain.StageSnapshot {
	next := prev
	next.JobID = jobID
	next.Status = domain.JobStatusFailed
	for i := range next.Stages {
		if next.Stages[i].Name == "" {
			next.Stages[i].Name = domain.StageNames[i]
			next.Stages[i].Status = domain.StageStatusPending
		}
		if next.Stages[i].Status == domain.StageStatusProcessing {
			next.Stages[i].Status = domain.StageStatusError
		}
	}
	return next
}

func uploadPercent(fraction float64) int {
	return int(math.Round(fraction * 20))
}

func clampFraction(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
