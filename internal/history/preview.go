package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// Preview is the segment list of a job with its own timeline.
type Preview struct {
	JobID    string           `json:"jobId"`
	Segments []domain.Segment `json:"segments"`
	Scrubber *Scrubber        `json:"-"`
}

// Preview fetches the json artifact of jobID.
func (v *View) Preview(ctx context.Context, jobID string) (*Preview, error) {
	var buf bytes.Buffer
	if err := v.src.Download(ctx, jobID, domain.FormatJSON, &buf); err != nil {
		return nil, fmt.Errorf("fetch transcript of %s: %w", jobID, err)
	}

	segments, err := ParseSegments(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return &Preview{JobID: jobID, Segments: segments, Scrubber: NewScrubber(segments)}, nil
}

// ParseSegments decodes a json artifact, either a bare segment array or an
// object with a segments field, sorted by start time.
func ParseSegments(data []byte) ([]domain.Segment, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty transcript")
	}

	var segments []domain.Segment
	if data[0] == '[' {
		if err := json.Unmarshal(data, &segments); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
	} else {
		var wrapped struct {
			Segments []domain.Segment `json:"segments"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
		segments = wrapped.Segments
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
	return segments, nil
}

// Scrubber is a playhead over a segment list.
type Scrubber struct {
	mu       sync.Mutex
	segments []domain.Segment
	duration float64
	position float64
}

// NewScrubber creates a scrubber positioned at zero.
func NewScrubber(segments []domain.Segment) *Scrubber {
	s := &Scrubber{segments: segments}
	for _, seg := range segments {
		if seg.End > s.duration {
			s.duration = seg.End
		}
	}
	return s
}

// Duration returns the end of the last segment in seconds.
func (s *Scrubber) Duration() float64 {
	return s.duration
}

// Position returns the playhead in seconds.
func (s *Scrubber) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Seek moves the playhead to t, clamped to the timeline.
func (s *Scrubber) Seek(t float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = s.clamp(t)
	return s.position
}

// Step jumps delta segments from the current one and returns the segment
// landed on.
func (s *Scrubber) Step(delta int) (domain.Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.segments) == 0 {
		return domain.Segment{}, false
	}

	idx, inside := s.indexAt(s.position)
	if !inside && delta > 0 {
		// Between segments, the next one is already one step ahead.
		delta--
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.segments) {
		idx = len(s.segments) - 1
	}

	s.position = s.segments[idx].Start
	return s.segments[idx], true
}

// Current returns the segment under the playhead.
func (s *Scrubber) Current() (domain.Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, inside := s.indexAt(s.position)
	if !inside {
		return domain.Segment{}, false
	}
	return s.segments[idx], true
}

// indexAt returns the first segment ending after t and whether t falls
// inside it. Past the last segment it returns len(segments).
func (s *Scrubber) indexAt(t float64) (int, bool) {
	idx := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].End > t
	})
	if idx == len(s.segments) {
		return idx, false
	}
	return idx, s.segments[idx].Start <= t
}

func (s *Scrubber) clamp(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > s.duration {
		return s.duration
	}
	return t
}
