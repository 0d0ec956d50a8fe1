// Package devserver is a local stand-in for the subtitle backend. Jobs
// advance through the pipeline on a clock instead of doing real work.
package devserver

import (
	"context"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/baronglock/Site-legendas/internal/domain"
)

const (
	DefaultStepEvery  = 2 * time.Second
	urlMinutes        = 10
	bytesPerMinute    = 2 * 1024 * 1024
	defaultListLimit  = 20
	defaultTargetLang = "pt"
)

// Options configures the fake backend.
type Options struct {
	// Token is the accepted bearer token. Empty accepts any bearer token.
	Token string
	// StepEvery is how long a job stays in each status.
	StepEvery time.Duration
	// FailAt makes every job fail when it would enter this status.
	FailAt domain.JobStatus
	Now    func() time.Time

	Email        string
	Plan         domain.Plan
	MinutesLimit float64
	MinutesUsed  float64

	Segments []domain.Segment
	Quiet    bool
}

type job struct {
	ID             string
	Filename       string
	URL            string
	SourceLanguage string
	TargetLanguage string
	Translate      bool
	Created        time.Time
	Cancelled      bool
	Translations   []string
}

// Server serves the /api/v1 contract from memory.
type Server struct {
	opts Options
	echo *echo.Echo

	mu       sync.Mutex
	jobs     map[string]*job
	used     float64
	requests map[string]int
}

// New builds a server with routes registered.
func New(opts Options) *Server {
	if opts.StepEvery <= 0 {
		opts.StepEvery = DefaultStepEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Plan == "" {
		opts.Plan = domain.PlanFree
	}
	if opts.MinutesLimit == 0 {
		opts.MinutesLimit = 60
	}
	if opts.Email == "" {
		opts.Email = "dev@localhost"
	}
	if len(opts.Segments) == 0 {
		opts.Segments = sampleSegments
	}

	s := &Server{
		opts:     opts,
		jobs:     map[string]*job{},
		used:     opts.MinutesUsed,
		requests: map[string]int{},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if !opts.Quiet {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())
	e.Use(s.countRequests)

	e.GET("/", s.health)

	api := e.Group("/api/v1", s.requireAuth)
	api.POST("/subtitle/upload", s.upload)
	api.POST("/subtitle/url", s.submitURL)
	api.GET("/subtitle/job/:id", s.jobStatus)
	api.DELETE("/subtitle/job/:id", s.cancelJob)
	api.POST("/subtitle/translate/:id", s.translate)
	api.GET("/user/jobs", s.listJobs)
	api.GET("/download/:id/:format", s.download)
	api.GET("/auth/me", s.me)

	s.echo = e
	return s
}

// Handler exposes the router, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Requests returns how often a route was hit, keyed as "GET /api/v1/user/jobs".
func (s *Server) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

// Translations returns the target languages requested for a job.
func (s *Server) Translations(jobID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		return append([]string(nil), j.Translations...)
	}
	return nil
}

func (s *Server) countRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		s.requests[c.Request().Method+" "+c.Path()]++
		s.mu.Unlock()
		return next(c)
	}
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return detail(c, http.StatusUnauthorized, "Not authenticated")
		}
		if s.opts.Token != "" && token != s.opts.Token {
			return detail(c, http.StatusUnauthorized, "Invalid token")
		}
		return next(c)
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "online",
		"service": "legendas-devserver",
	})
}

func (s *Server) upload(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return detail(c, http.StatusBadRequest, "file is required")
	}
	f, err := header.Open()
	if err != nil {
		return detail(c, http.StatusBadRequest, "failed to read file")
	}
	defer f.Close()

	size, err := io.Copy(io.Discard, f)
	if err != nil {
		return detail(c, http.StatusBadRequest, "failed to read file")
	}
	if size == 0 {
		return detail(c, http.StatusBadRequest, "file is empty")
	}

	translate, _ := strconv.ParseBool(c.FormValue("translate"))
	j := s.create(&job{
		Filename:       header.Filename,
		SourceLanguage: c.FormValue("source_language"),
		TargetLanguage: c.FormValue("target_language"),
		Translate:      translate,
	}, math.Ceil(float64(size)/bytesPerMinute))

	return c.JSON(http.StatusOK, map[string]string{
		"job_id":  j.ID,
		"status":  string(domain.JobStatusQueued),
		"message": "upload received",
	})
}

type urlRequest struct {
	URL            string `json:"url"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Translate      bool   `json:"translate"`
}

func (s *Server) submitURL(c echo.Context) error {
	var req urlRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.URL) == "" {
		return detail(c, http.StatusBadRequest, "url is required")
	}

	j := s.create(&job{
		Filename:       req.URL,
		URL:            req.URL,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Translate:      req.Translate,
	}, urlMinutes)

	return c.JSON(http.StatusOK, map[string]string{
		"job_id": j.ID,
		"status": string(domain.JobStatusQueued),
	})
}

func (s *Server) create(j *job, minutes float64) *job {
	j.ID = uuid.NewString()
	j.Created = s.opts.Now()

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.used += minutes
	s.mu.Unlock()
	return j
}

func (s *Server) lookup(id string) (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return job{}, false
	}
	return *j, true
}

func (s *Server) jobStatus(c echo.Context) error {
	j, ok := s.lookup(c.Param("id"))
	if !ok {
		return detail(c, http.StatusNotFound, "Job not found")
	}
	return c.JSON(http.StatusOK, s.render(j))
}

func (s *Server) cancelJob(c echo.Context) error {
	s.mu.Lock()
	j, ok := s.jobs[c.Param("id")]
	var status string
	if ok {
		status = s.statusOf(*j)
		if status == string(domain.JobStatusQueued) {
			j.Cancelled = true
		}
	}
	s.mu.Unlock()

	switch {
	case !ok:
		return detail(c, http.StatusNotFound, "Job not found")
	case status != string(domain.JobStatusQueued):
		return detail(c, http.StatusConflict, "Job already started")
	}
	return c.JSON(http.StatusOK, map[string]string{"job_id": j.ID, "status": "cancelled"})
}

func (s *Server) translate(c echo.Context) error {
	target := c.QueryParam("target_language")
	if target == "" {
		target = defaultTargetLang
	}

	s.mu.Lock()
	j, ok := s.jobs[c.Param("id")]
	var status string
	if ok {
		status = s.statusOf(*j)
		if status == string(domain.JobStatusCompleted) {
			j.Translations = append(j.Translations, target)
		}
	}
	s.mu.Unlock()

	switch {
	case !ok:
		return detail(c, http.StatusNotFound, "Job not found")
	case status != string(domain.JobStatusCompleted):
		return detail(c, http.StatusConflict, "Transcript not ready")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"job_id":          j.ID,
		"status":          "translating",
		"target_language": target,
	})
}

func (s *Server) listJobs(c echo.Context) error {
	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	s.mu.Lock()
	all := make([]job, 0, len(s.jobs))
	for _, j := range s.jobs {
		all = append(all, *j)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, k int) bool {
		if all[i].Created.Equal(all[k].Created) {
			return all[i].ID < all[k].ID
		}
		return all[i].Created.After(all[k].Created)
	})
	total := len(all)
	if len(all) > limit {
		all = all[:limit]
	}

	rows := make([]map[string]any, 0, len(all))
	for _, j := range all {
		view := s.render(j)
		rows = append(rows, map[string]any{
			"id":                j.ID,
			"filename":          j.Filename,
			"status":            view.Status,
			"progress":          view.Progress,
			"created_at":        float64(j.Created.UnixMilli()) / 1000,
			"detected_language": view.DetectedLanguage,
			"download_urls":     view.DownloadURLs,
			"error":             view.Error,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"jobs":   rows,
		"total":  total,
		"limit":  limit,
		"offset": 0,
	})
}

func (s *Server) download(c echo.Context) error {
	format := domain.Format(c.Param("format"))
	if !format.Valid() {
		return detail(c, http.StatusBadRequest, "Unsupported format")
	}
	j, ok := s.lookup(c.Param("id"))
	if !ok || s.statusOf(j) != string(domain.JobStatusCompleted) {
		return detail(c, http.StatusNotFound, "File not found")
	}

	body, contentType := renderArtifact(s.opts.Segments, format)
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+j.ID+"."+string(format)+`"`)
	return c.Blob(http.StatusOK, contentType, body)
}

func (s *Server) me(c echo.Context) error {
	s.mu.Lock()
	used := s.used
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]any{
		"id":    1,
		"email": s.opts.Email,
		"plan":  string(s.opts.Plan),
		"usage": map[string]float64{
			"minutes_used":      used,
			"minutes_limit":     s.opts.MinutesLimit,
			"minutes_available": math.Max(s.opts.MinutesLimit-used, 0),
		},
	})
}

func detail(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"detail": msg})
}
