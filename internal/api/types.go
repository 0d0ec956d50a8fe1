package api

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// URLRequest is the body of a remote video submission.
type URLRequest struct {
	URL            string `json:"url"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	Translate      bool   `json:"translate"`
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type statusResponse struct {
	JobID            string            `json:"job_id"`
	Status           string            `json:"status"`
	Progress         json.RawMessage   `json:"progress"`
	DetectedLanguage string            `json:"detected_language"`
	DownloadURLs     map[string]string `json:"download_urls"`
	Error            string            `json:"error"`
	Result           struct {
		DetectedLanguage string `json:"detected_language"`
	} `json:"result"`
}

func (r statusResponse) report() domain.StatusReport {
	status, detail := normalizeStatus(r.Status, r.Error)
	lang := r.DetectedLanguage
	if lang == "" {
		lang = r.Result.DetectedLanguage
	}
	return domain.StatusReport{
		Status:           status,
		Progress:         flexString(r.Progress),
		DetectedLanguage: lang,
		DownloadURLs:     normalizeDownloads(r.DownloadURLs),
		Error:            detail,
	}
}

type listResponse struct {
	Jobs   []jobRow `json:"jobs"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

type jobRow struct {
	ID               string            `json:"id"`
	JobID            string            `json:"job_id"`
	Filename         string            `json:"filename"`
	Status           string            `json:"status"`
	CreatedAt        json.RawMessage   `json:"created_at"`
	Progress         json.RawMessage   `json:"progress"`
	Error            string            `json:"error"`
	DownloadURLs     map[string]string `json:"download_urls"`
	DetectedLanguage string            `json:"detected_language"`
}

func (r jobRow) summary() domain.JobSummary {
	id := r.ID
	if id == "" {
		id = r.JobID
	}
	status, detail := normalizeStatus(r.Status, r.Error)
	return domain.JobSummary{
		ID:               id,
		Filename:         r.Filename,
		Status:           status,
		Progress:         flexString(r.Progress),
		CreatedAt:        flexTime(r.CreatedAt),
		DetectedLanguage: r.DetectedLanguage,
		DownloadURLs:     normalizeDownloads(r.DownloadURLs),
		Error:            detail,
	}
}

type meResponse struct {
	ID          json.RawMessage `json:"id"`
	Email       string          `json:"email"`
	Plan        string          `json:"plan"`
	CurrentPlan string          `json:"current_plan"`
	Usage       struct {
		MinutesUsed      float64  `json:"minutes_used"`
		MinutesLimit     float64  `json:"minutes_limit"`
		MinutesAvailable *float64 `json:"minutes_available"`
	} `json:"usage"`
}

func (r meResponse) profile() domain.Profile {
	plan := r.Plan
	if plan == "" {
		plan = r.CurrentPlan
	}
	if plan == "" {
		plan = string(domain.PlanFree)
	}

	remaining := r.Usage.MinutesLimit - r.Usage.MinutesUsed
	if r.Usage.MinutesAvailable != nil {
		remaining = *r.Usage.MinutesAvailable
	}
	remaining = math.Max(remaining, 0)

	return domain.Profile{
		UserID: flexString(r.ID),
		Email:  r.Email,
		Plan:   domain.Plan(strings.ToLower(plan)),
		Balance: domain.UserBalance{
			MinutesRemaining: remaining,
			MinutesTotal:     r.Usage.MinutesLimit,
		},
	}
}

// normalizeStatus folds backend-only statuses onto the wire enum. Unknown
// values pass through so callers can ignore them.
func normalizeStatus(raw, detail string) (domain.JobStatus, string) {
	status := domain.JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case "cancelled", "canceled":
		if detail == "" {
			detail = "job cancelled"
		}
		return domain.JobStatusFailed, detail
	case "error":
		return domain.JobStatusFailed, detail
	}
	return status, detail
}

// normalizeDownloads maps backend artifact keys onto formats; "original" is the srt.
func normalizeDownloads(raw map[string]string) map[domain.Format]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[domain.Format]string, len(raw))
	for key, value := range raw {
		if value == "" {
			continue
		}
		format := domain.Format(strings.ToLower(key))
		if key == "original" {
			format = domain.FormatSRT
		}
		if !format.Valid() {
			continue
		}
		if _, taken := out[format]; taken && key == "original" {
			continue
		}
		out[format] = value
	}
	return out
}

// flexString renders a JSON string or number as text.
func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return string(raw)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// flexTime accepts epoch seconds or an ISO timestamp. Unparseable values yield zero.
func flexTime(raw json.RawMessage) time.Time {
	text := flexString(raw)
	if text == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseFloat(text, 64); err == nil {
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC()
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
