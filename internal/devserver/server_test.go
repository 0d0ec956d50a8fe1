package devserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baronglock/Site-legendas/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestServer(opts Options) (*Server, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	opts.Now = clock.Now
	opts.StepEvery = time.Second
	opts.Quiet = true
	if opts.Token == "" {
		opts.Token = "secret"
	}
	return New(opts), clock
}

func call(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func submitURL(t *testing.T, s *Server, translate bool) string {
	t.Helper()
	body := `{"url":"https://youtu.be/abc","translate":` + map[bool]string{true: "true", false: "false"}[translate] + `}`
	code, out := call(t, s, http.MethodPost, "/api/v1/subtitle/url", body)
	if code != http.StatusOK {
		t.Fatalf("submit code = %d body = %v", code, out)
	}
	id, _ := out["job_id"].(string)
	if id == "" {
		t.Fatalf("submit body = %v, want job_id", out)
	}
	return id
}

// TestHealthNeedsNoToken answers the origin check without auth.
func TestHealthNeedsNoToken(t *testing.T) {
	s, _ := newTestServer(Options{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health code = %d, want 200", rec.Code)
	}
}

// TestAPIRequiresBearerToken rejects missing and wrong tokens.
func TestAPIRequiresBearerToken(t *testing.T) {
	s, _ := newTestServer(Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/user/jobs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token code = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/jobs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "detail") {
		t.Fatalf("wrong token code = %d body = %s", rec.Code, rec.Body.String())
	}
}

// TestJobAdvancesOneStepPerInterval walks the whole pipeline.
func TestJobAdvancesOneStepPerInterval(t *testing.T) {
	s, clock := newTestServer(Options{})
	id := submitURL(t, s, true)

	want := []string{"queued", "processing", "transcribing", "translating", "completed", "completed"}
	for i, status := range want {
		code, out := call(t, s, http.MethodGet, "/api/v1/subtitle/job/"+id, "")
		if code != http.StatusOK || out["status"] != status {
			t.Fatalf("step %d: code = %d status = %v, want %s", i, code, out["status"], status)
		}
		clock.Advance(time.Second)
	}

	_, out := call(t, s, http.MethodGet, "/api/v1/subtitle/job/"+id, "")
	urls, _ := out["download_urls"].(map[string]any)
	if urls["original"] == nil || urls["vtt"] == nil || urls["json"] == nil {
		t.Fatalf("download_urls = %v", out["download_urls"])
	}
	if s.Requests("GET /api/v1/subtitle/job/:id") != 7 {
		t.Fatalf("status requests = %d, want 7", s.Requests("GET /api/v1/subtitle/job/:id"))
	}
}

// TestJobWithoutTranslationSkipsTranslating goes straight to completed.
func TestJobWithoutTranslationSkipsTranslating(t *testing.T) {
	s, clock := newTestServer(Options{})
	id := submitURL(t, s, false)
	clock.Advance(3 * time.Second)
	if _, out := call(t, s, http.MethodGet, "/api/v1/subtitle/job/"+id, ""); out["status"] != "completed" {
		t.Fatalf("status = %v, want completed", out["status"])
	}
}

// TestFailAtStopsPipeline reports failed with an error detail.
func TestFailAtStopsPipeline(t *testing.T) {
	s, clock := newTestServer(Options{FailAt: domain.JobStatusTranscribing})
	id := submitURL(t, s, true)

	clock.Advance(time.Second)
	if _, out := call(t, s, http.MethodGet, "/api/v1/subtitle/job/"+id, ""); out["status"] != "processing" {
		t.Fatalf("status = %v, want processing", out["status"])
	}
	clock.Advance(10 * time.Second)
	_, out := call(t, s, http.MethodGet, "/api/v1/subtitle/job/"+id, "")
	if out["status"] != "failed" || out["error"] == "" {
		t.Fatalf("body = %v, want failed with error", out)
	}
}

// TestUnknownJobIs404 uses the backend's detail message.
func TestUnknownJobIs404(t *testing.T) {
	s, _ := newTestServer(Options{})
	code, out := call(t, s, http.MethodGet, "/api/v1/subtitle/job/nope", "")
	if code != http.StatusNotFound || out["detail"] != "Job not found" {
		t.Fatalf("code = %d body = %v", code, out)
	}
}

// TestCancelOnlyWhileQueued refuses jobs that already started.
func TestCancelOnlyWhileQueued(t *testing.T) {
	s, clock := newTestServer(Options{})
	first := submitURL(t, s, true)
	if code, _ := call(t, s, http.MethodDelete, "/api/v1/subtitle/job/"+first, ""); code != http.StatusOK {
		t.Fatalf("cancel queued code = %d", code)
	}
	if _, out := call(t, s, http.MethodGet, "/api/v1/subtitle/job/"+first, ""); out["status"] != "cancelled" {
		t.Fatalf("status = %v, want cancelled", out["status"])
	}

	second := submitURL(t, s, true)
	clock.Advance(time.Second)
	if code, _ := call(t, s, http.MethodDelete, "/api/v1/subtitle/job/"+second, ""); code != http.StatusConflict {
		t.Fatalf("cancel started code = %d, want 409", code)
	}
}

// TestTranslateNeedsFinishedTranscript records requested languages.
func TestTranslateNeedsFinishedTranscript(t *testing.T) {
	s, clock := newTestServer(Options{})
	id := submitURL(t, s, false)

	if code, _ := call(t, s, http.MethodPost, "/api/v1/subtitle/translate/"+id+"?target_language=es", ""); code != http.StatusConflict {
		t.Fatalf("early translate code = %d, want 409", code)
	}
	clock.Advance(time.Minute)
	if code, _ := call(t, s, http.MethodPost, "/api/v1/subtitle/translate/"+id+"?target_language=es", ""); code != http.StatusOK {
		t.Fatalf("translate code = %d, want 200", code)
	}
	if got := s.Translations(id); len(got) != 1 || got[0] != "es" {
		t.Fatalf("translations = %v", got)
	}
}

// TestListJobsNewestFirst honours the limit and reports the total.
func TestListJobsNewestFirst(t *testing.T) {
	s, clock := newTestServer(Options{})
	submitURL(t, s, false)
	clock.Advance(time.Millisecond)
	newest := submitURL(t, s, false)

	_, out := call(t, s, http.MethodGet, "/api/v1/user/jobs?limit=1", "")
	jobs, _ := out["jobs"].([]any)
	if len(jobs) != 1 || out["total"] != float64(2) {
		t.Fatalf("body = %v", out)
	}
	if row := jobs[0].(map[string]any); row["id"] != newest {
		t.Fatalf("first row = %v, want %s", row["id"], newest)
	}
}

// TestDownloadRendersFormats serves srt, vtt and json only once completed.
func TestDownloadRendersFormats(t *testing.T) {
	s, clock := newTestServer(Options{})
	id := submitURL(t, s, false)

	if code, _ := call(t, s, http.MethodGet, "/api/v1/download/"+id+"/srt", ""); code != http.StatusNotFound {
		t.Fatalf("early download code = %d, want 404", code)
	}
	clock.Advance(time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/download/"+id+"/srt", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "1\n00:00:00,000 --> 00:00:02,400\n") {
		t.Fatalf("srt code = %d body = %q", rec.Code, rec.Body.String())
	}

	if code, _ := call(t, s, http.MethodGet, "/api/v1/download/"+id+"/docx", ""); code != http.StatusBadRequest {
		t.Fatalf("bad format code = %d, want 400", code)
	}
}

// TestMeChargesSubmittedMinutes lowers availability as jobs are created.
func TestMeChargesSubmittedMinutes(t *testing.T) {
	s, _ := newTestServer(Options{Plan: domain.PlanPro, MinutesLimit: 100})
	submitURL(t, s, false)

	_, out := call(t, s, http.MethodGet, "/api/v1/auth/me", "")
	usage, _ := out["usage"].(map[string]any)
	if out["plan"] != "pro" || usage["minutes_available"] != float64(90) {
		t.Fatalf("me = %v", out)
	}
}

// TestTimestamp formats hours, minutes and milliseconds.
func TestTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		sep     byte
		want    string
	}{
		{0, ',', "00:00:00,000"},
		{2.4, ',', "00:00:02,400"},
		{3661.5, '.', "01:01:01.500"},
	}
	for _, tc := range cases {
		if got := timestamp(tc.seconds, tc.sep); got != tc.want {
			t.Fatalf("timestamp(%v) = %s, want %s", tc.seconds, got, tc.want)
		}
	}
}
