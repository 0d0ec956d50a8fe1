package submit

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// Supported platform names.
const (
	PlatformYouTube = "youtube"
	PlatformVimeo   = "vimeo"
	PlatformTwitter = "twitter"
	PlatformTikTok  = "tiktok"
)

type platformPattern struct {
	name     string
	patterns []*regexp.Regexp
}

var platforms = []platformPattern{
	{PlatformYouTube, compileAll(
		`^https?://(?:www\.)?youtube\.com/watch\?v=[\w-]+`,
		`^https?://youtu\.be/[\w-]+`,
		`^https?://m\.youtube\.com/watch\?v=[\w-]+`,
	)},
	{PlatformVimeo, compileAll(
		`^https?://(?:www\.)?vimeo\.com/\d+`,
		`^https?://player\.vimeo\.com/video/\d+`,
		`^https?://vimeo\.com/channels/[\w-]+/\d+`,
		`^https?://vimeo\.com/groups/[\w-]+/videos/\d+`,
	)},
	{PlatformTwitter, compileAll(
		`^https?://(?:www\.)?twitter\.com/\w+/status/\d+`,
		`^https?://(?:www\.)?x\.com/\w+/status/\d+`,
	)},
	{PlatformTikTok, compileAll(
		`^https?://(?:www\.)?tiktok\.com/@[\w.]+/video/\d+`,
		`^https?://vm\.tiktok\.com/[\w-]+`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[i] = regexp.MustCompile(expr)
	}
	return out
}

// MatchPlatform returns the platform rawURL belongs to.
func MatchPlatform(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	for _, p := range platforms {
		for _, re := range p.patterns {
			if re.MatchString(rawURL) {
				return p.name, true
			}
		}
	}
	return "", false
}

// Platforms lists the supported platform names.
func Platforms() []string {
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = p.name
	}
	return out
}

// VideoLookup resolves title and duration of a remote video.
type VideoLookup func(ctx context.Context, rawURL string) (title string, durationSeconds float64, err error)

// youtubeLookup reads public metadata through the YouTube player API.
func youtubeLookup(ctx context.Context, rawURL string) (string, float64, error) {
	id, err := youtube.ExtractVideoID(rawURL)
	if err != nil {
		return "", 0, fmt.Errorf("extract video id: %w", err)
	}

	client := youtube.Client{}
	video, err := client.GetVideoContext(ctx, id)
	if err != nil {
		return "", 0, fmt.Errorf("lookup video: %w", err)
	}
	return video.Title, video.Duration.Seconds(), nil
}

// describeURL validates rawURL locally and returns its descriptor.
func describeURL(rawURL string) (domain.URLDescriptor, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return domain.URLDescriptor{}, &SubmissionError{Kind: KindUnsupportedPlatform, Reason: "url is empty"}
	}
	platform, ok := MatchPlatform(rawURL)
	if !ok {
		return domain.URLDescriptor{}, &SubmissionError{
			Kind:   KindUnsupportedPlatform,
			Reason: fmt.Sprintf("supported platforms are %s", strings.Join(Platforms(), ", ")),
		}
	}
	return domain.URLDescriptor{URL: rawURL, Platform: platform}, nil
}
