package devserver

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/baronglock/Site-legendas/internal/domain"
)

var sampleSegments = []domain.Segment{
	{Start: 0.0, End: 2.4, Text: "Welcome back to the channel."},
	{Start: 2.6, End: 5.1, Text: "Today we are looking at subtitles."},
	{Start: 5.4, End: 8.0, Text: "Let's get started."},
}

var progressText = map[domain.JobStatus]string{
	domain.JobStatusQueued:       "Waiting in queue",
	domain.JobStatusProcessing:   "Extracting audio",
	domain.JobStatusTranscribing: "Transcribing",
	domain.JobStatusTranslating:  "Translating",
	domain.JobStatusCompleted:    "Done",
}

type statusView struct {
	JobID            string            `json:"job_id"`
	Status           string            `json:"status"`
	Progress         string            `json:"progress,omitempty"`
	DetectedLanguage string            `json:"detected_language,omitempty"`
	Result           *resultView       `json:"result,omitempty"`
	DownloadURLs     map[string]string `json:"download_urls,omitempty"`
	Error            string            `json:"error,omitempty"`
}

type resultView struct {
	DetectedLanguage string `json:"detected_language"`
}

// pipeline lists the statuses a job walks through.
func pipeline(j job) []domain.JobStatus {
	steps := []domain.JobStatus{
		domain.JobStatusQueued,
		domain.JobStatusProcessing,
		domain.JobStatusTranscribing,
	}
	if j.Translate {
		steps = append(steps, domain.JobStatusTranslating)
	}
	return append(steps, domain.JobStatusCompleted)
}

// statusOf derives the wire status of j from elapsed time.
func (s *Server) statusOf(j job) string {
	if j.Cancelled {
		return "cancelled"
	}

	steps := pipeline(j)
	idx := int(s.opts.Now().Sub(j.Created) / s.opts.StepEvery)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(steps) {
		idx = len(steps) - 1
	}
	for i := 0; i <= idx; i++ {
		if s.opts.FailAt != "" && steps[i] == s.opts.FailAt {
			return string(domain.JobStatusFailed)
		}
	}
	return string(steps[idx])
}

func (s *Server) render(j job) statusView {
	status := s.statusOf(j)
	view := statusView{
		JobID:    j.ID,
		Status:   status,
		Progress: progressText[domain.JobStatus(status)],
	}

	switch status {
	case string(domain.JobStatusFailed):
		view.Error = fmt.Sprintf("processing failed while %s", s.opts.FailAt)
	case "cancelled":
		view.Error = "Job cancelled by user"
	case string(domain.JobStatusCompleted):
		lang := j.SourceLanguage
		if lang == "" || lang == "auto" {
			lang = "en"
		}
		view.DetectedLanguage = lang
		view.Result = &resultView{DetectedLanguage: lang}
		view.DownloadURLs = map[string]string{
			"original": "/api/v1/download/" + j.ID + "/srt",
			"vtt":      "/api/v1/download/" + j.ID + "/vtt",
			"json":     "/api/v1/download/" + j.ID + "/json",
		}
	}
	return view
}

// renderArtifact formats segments as one downloadable artifact.
func renderArtifact(segments []domain.Segment, format domain.Format) ([]byte, string) {
	var buf bytes.Buffer
	switch format {
	case domain.FormatSRT:
		for i, seg := range segments {
			fmt.Fprintf(&buf, "%d\n%s --> %s\n%s\n\n", i+1, timestamp(seg.Start, ','), timestamp(seg.End, ','), seg.Text)
		}
		return buf.Bytes(), "application/x-subrip; charset=utf-8"
	case domain.FormatVTT:
		buf.WriteString("WEBVTT\n\n")
		for _, seg := range segments {
			fmt.Fprintf(&buf, "%s --> %s\n%s\n\n", timestamp(seg.Start, '.'), timestamp(seg.End, '.'), seg.Text)
		}
		return buf.Bytes(), "text/vtt; charset=utf-8"
	default:
		data, _ := json.MarshalIndent(segments, "", "  ")
		return data, "application/json"
	}
}

// timestamp renders seconds as HH:MM:SS plus milliseconds after sep.
func timestamp(seconds float64, sep byte) string {
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}
