package sources

import (
	"fmt"
	"regexp"
	"strings"
)

var videoIDTokenRE = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)

// videoIDPatterns are tried in order; the first capture that validates wins.
// Each capture must end at a non-token character so longer tokens are not truncated.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|[?&])v=([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`),
	regexp.MustCompile(`/embed/([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`),
	regexp.MustCompile(`/shorts/([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`),
	regexp.MustCompile(`/live/([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`),
	regexp.MustCompile(`/v/([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`),
	regexp.MustCompile(`/([0-9A-Za-z_-]{11})(?:[/?#&]|$)`),
}

// IsValidVideoID reports whether s is exactly an 11-character video token.
func IsValidVideoID(s string) bool {
	return videoIDTokenRE.MatchString(s)
}

// ResolveVideoID extracts a video id from a raw id or a YouTube URL.
// Watch, youtu.be, embed, shorts, live and /v/ links are understood, as is a bare
// v=<id> query fragment.
func ResolveVideoID(input string) (VideoID, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	if IsValidVideoID(s) {
		return VideoID(s), true
	}
	for _, re := range videoIDPatterns {
		m := re.FindStringSubmatch(s)
		if len(m) < 2 {
			continue
		}
		if IsValidVideoID(m[1]) {
			return VideoID(m[1]), true
		}
	}
	return "", false
}

// ParseVideoID is ResolveVideoID for callers that want an error.
func ParseVideoID(input string) (VideoID, error) {
	id, ok := ResolveVideoID(input)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidVideoID, strings.TrimSpace(input))
	}
	return id, nil
}
