// Package toolutil provides helpers shared by the MCP tools and the CLI.
package toolutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go_tube/internal/engine/rag"
	"github.com/anatolykoptev/go_tube/internal/engine/session"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
)

// WatchURL returns the canonical watch page for id.
func WatchURL(id sources.VideoID) string {
	return "https://www.youtube.com/watch?v=" + string(id)
}

// ResolveVideo turns a URL or bare id into a video id.
func ResolveVideo(input string) (sources.VideoID, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("a YouTube URL or video id is required")
	}
	return sources.ParseVideoID(input)
}

// Explain rewrites pipeline errors into guidance a user can act on.
// The original error stays in the chain.
func Explain(err error) error {
	var ibe *rag.IndexBuildError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sources.ErrInvalidVideoID):
		return fmt.Errorf("not a valid YouTube URL or video id: %w", err)
	case errors.Is(err, sources.ErrTemporarilyBlocked):
		return fmt.Errorf("YouTube is throttling caption requests; wait a few minutes and load the video again: %w", err)
	case errors.Is(err, sources.ErrNoCaptionsAvailable):
		return fmt.Errorf("this video has no usable captions; try another video: %w", err)
	case errors.As(err, &ibe):
		return fmt.Errorf("the transcript could not be indexed (%s ranker); check the embedding credentials: %w", ibe.Ranker, err)
	case errors.Is(err, session.ErrUnknownSession), errors.Is(err, session.ErrSessionClosed):
		return fmt.Errorf("session not found; call video_load without session_id to start a new one: %w", err)
	}
	return err
}

// FormatMetadata renders transcript metadata on one line.
func FormatMetadata(m sources.Metadata) string {
	lang := m.Language
	if lang == "" {
		lang = m.LanguageCode
	}
	s := fmt.Sprintf("%s | %s (%s) | %d segments | %d chars | %s",
		m.VideoID, lang, m.LanguageCode, m.TotalSegments, m.TotalLength, rag.FormatTimestamp(m.Duration))
	if m.IsGenerated {
		s += " | auto-generated"
	}
	return s + " | " + m.Method
}
