package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baronglock/Site-legendas/internal/devserver"
	"github.com/baronglock/Site-legendas/internal/domain"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBackend(t *testing.T, opts devserver.Options, clientOpts ...Option) (*Client, *devserver.Server, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Unix(1700000000, 0)}
	opts.Now = clock.Now
	opts.StepEvery = time.Second
	opts.Token = "secret"
	opts.Quiet = true

	server := devserver.New(opts)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	clientOpts = append([]Option{WithToken(func() string { return "secret" })}, clientOpts...)
	return NewClient(srv.URL+"/api/v1/", clientOpts...), server, clock
}

// TestJobStatusNormalizesCompletedJob maps "original" onto srt.
func TestJobStatusNormalizesCompletedJob(t *testing.T) {
	client, _, clock := newBackend(t, devserver.Options{})
	ctx := context.Background()

	id, err := client.SubmitURL(ctx, URLRequest{URL: "https://youtu.be/abc", Translate: true})
	if err != nil || id == "" {
		t.Fatalf("submit id = %q err = %v", id, err)
	}

	report, err := client.JobStatus(ctx, id)
	if err != nil || report.Status != domain.JobStatusQueued {
		t.Fatalf("report = %+v err = %v", report, err)
	}

	clock.Advance(time.Minute)
	report, err = client.JobStatus(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Status != domain.JobStatusCompleted || report.DetectedLanguage != "en" {
		t.Fatalf("report = %+v", report)
	}
	if !strings.HasSuffix(report.DownloadURLs[domain.FormatSRT], "/"+id+"/srt") || report.DownloadURLs[domain.FormatJSON] == "" {
		t.Fatalf("downloads = %v", report.DownloadURLs)
	}
}

// TestCancelledJobReadsAsFailed folds cancelled onto the wire enum.
func TestCancelledJobReadsAsFailed(t *testing.T) {
	client, _, _ := newBackend(t, devserver.Options{})
	ctx := context.Background()

	id, err := client.SubmitURL(ctx, URLRequest{URL: "https://vimeo.com/1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := client.CancelJob(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	report, err := client.JobStatus(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Status != domain.JobStatusFailed || report.Error == "" {
		t.Fatalf("report = %+v, want failed with detail", report)
	}
}

// TestUnauthorizedRunsHook reports 401 through the sentinel and the hook.
func TestUnauthorizedRunsHook(t *testing.T) {
	var hits int
	client, _, _ := newBackend(t, devserver.Options{}, WithToken(func() string { return "stale" }), WithUnauthorizedHandler(func() { hits++ }))

	_, err := client.Me(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if hits != 1 {
		t.Fatalf("hook hits = %d, want 1", hits)
	}
}

// TestMissingJobIsNotFound keeps the backend detail.
func TestMissingJobIsNotFound(t *testing.T) {
	client, _, _ := newBackend(t, devserver.Options{})

	_, err := client.JobStatus(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Detail != "Job not found" {
		t.Fatalf("err = %#v", err)
	}
}

// TestUploadFileReportsProgress streams the file and charges its minutes.
func TestUploadFileReportsProgress(t *testing.T) {
	client, _, _ := newBackend(t, devserver.Options{MinutesLimit: 60})
	path := filepath.Join(t.TempDir(), "talk.mp4")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, 3*1024*1024), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	var (
		mu        sync.Mutex
		fractions []float64
	)
	id, err := client.UploadFile(context.Background(), UploadRequest{
		Path:           path,
		ContentType:    "video/mp4",
		SourceLanguage: "en",
		TargetLanguage: "pt",
		Translate:      true,
		OnProgress: func(f float64) {
			mu.Lock()
			fractions = append(fractions, f)
			mu.Unlock()
		},
	})
	if err != nil || id == "" {
		t.Fatalf("upload id = %q err = %v", id, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fractions) == 0 || fractions[len(fractions)-1] != 1 {
		t.Fatalf("fractions = %v, want ending at 1", fractions)
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("progress went backwards: %v", fractions)
		}
	}

	profile, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if profile.Balance.MinutesRemaining != 58 || profile.Balance.MinutesTotal != 60 {
		t.Fatalf("balance = %+v, want 58 of 60", profile.Balance)
	}
}

// TestListJobsParsesRows reads ids, filenames and epoch timestamps.
func TestListJobsParsesRows(t *testing.T) {
	client, _, _ := newBackend(t, devserver.Options{})
	ctx := context.Background()
	id, err := client.SubmitURL(ctx, URLRequest{URL: "https://www.tiktok.com/@a/video/1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	jobs, err := client.ListJobs(ctx, 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != id || jobs[0].Status != domain.JobStatusQueued {
		t.Fatalf("jobs = %+v", jobs)
	}
	if !jobs[0].CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("createdAt = %v", jobs[0].CreatedAt)
	}
}

// TestDownloadAndTranslate fetches an artifact and triggers a translation.
func TestDownloadAndTranslate(t *testing.T) {
	client, server, clock := newBackend(t, devserver.Options{})
	ctx := context.Background()
	id, err := client.SubmitURL(ctx, URLRequest{URL: "https://youtu.be/abc"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	clock.Advance(time.Minute)

	var buf bytes.Buffer
	if err := client.Download(ctx, id, domain.FormatVTT, &buf); err != nil {
		t.Fatalf("download: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "WEBVTT") {
		t.Fatalf("vtt = %q", buf.String())
	}
	if err := client.Download(ctx, id, "docx", &buf); err == nil {
		t.Fatal("expected error for unknown format")
	}

	if err := client.Translate(ctx, id, "es"); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got := server.Translations(id); len(got) != 1 || got[0] != "es" {
		t.Fatalf("translations = %v", got)
	}
}

// TestPingHitsOrigin checks the health route outside /api/v1.
func TestPingHitsOrigin(t *testing.T) {
	client, server, _ := newBackend(t, devserver.Options{})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if server.Requests("GET /") != 1 {
		t.Fatalf("health requests = %d, want 1", server.Requests("GET /"))
	}
}

// TestFlexTimeLayouts accepts epoch and Python isoformat timestamps.
func TestFlexTimeLayouts(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	cases := []string{
		`1709296200`,
		`"1709296200"`,
		`"2024-03-01T12:30:00Z"`,
		`"2024-03-01T12:30:00.000000"`,
		`"2024-03-01 12:30:00"`,
	}
	for _, raw := range cases {
		if got := flexTime(json.RawMessage(raw)); !got.Equal(want) {
			t.Fatalf("flexTime(%s) = %v, want %v", raw, got, want)
		}
	}
	if got := flexTime(json.RawMessage(`"yesterday"`)); !got.IsZero() {
		t.Fatalf("flexTime(yesterday) = %v, want zero", got)
	}
}

// TestReadDetailShapes extracts messages from FastAPI, echo and plain bodies.
func TestReadDetailShapes(t *testing.T) {
	cases := map[string]string{
		`{"detail":"Job not found"}`:            "Job not found",
		`{"message":"Unauthorized"}`:            "Unauthorized",
		`{"detail":[{"msg":"field required"}]}`: `[{"msg":"field required"}]`,
		"  upstream timeout \n":                 "upstream timeout",
	}
	for body, want := range cases {
		if got := readDetail(strings.NewReader(body)); got != want {
			t.Fatalf("readDetail(%q) = %q, want %q", body, got, want)
		}
	}
}

// TestNormalizeDownloadsPrefersExplicitSRT ignores unknown formats.
func TestNormalizeDownloadsPrefersExplicitSRT(t *testing.T) {
	got := normalizeDownloads(map[string]string{
		"original": "/a/original",
		"srt":      "/a/srt",
		"docx":     "/a/docx",
	})
	if got[domain.FormatSRT] != "/a/srt" || len(got) != 1 {
		t.Fatalf("downloads = %v", got)
	}
}
