package sources

import (
	"context"
	"errors"
	"strings"
)

// VideoID is a canonical 11-character YouTube video identifier.
type VideoID string

// Segment is one caption cue. Start and Duration are in seconds.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the time the cue stops being displayed.
func (s Segment) End() float64 { return s.Start + s.Duration }

// Track describes one caption track offered for a video.
type Track struct {
	VideoID        VideoID `json:"video_id"`
	Language       string  `json:"language"`
	LanguageCode   string  `json:"language_code"`
	IsGenerated    bool    `json:"is_generated"`
	IsTranslatable bool    `json:"is_translatable"`
	BaseURL        string  `json:"-"`
	TranslatedFrom string  `json:"translated_from,omitempty"`
}

// How a transcript was obtained.
const (
	MethodManual     = "manual_transcript"
	MethodGenerated  = "auto_generated"
	MethodTranslated = "translated"
	MethodFallback   = "fallback"
)

// Metadata describes a fetched transcript. Informational only.
type Metadata struct {
	VideoID       VideoID `json:"video_id"`
	Language      string  `json:"language"`
	LanguageCode  string  `json:"language_code"`
	IsGenerated   bool    `json:"is_generated"`
	TotalSegments int     `json:"total_segments"`
	TotalLength   int     `json:"total_length"`
	Method        string  `json:"method"`
	Duration      float64 `json:"duration"`
}

// Transcript is a time-ordered list of segments plus metadata.
type Transcript struct {
	Segments []Segment `json:"segments"`
	Metadata Metadata  `json:"metadata"`
}

// Text joins the non-empty segment texts with single spaces.
func (t *Transcript) Text() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		if text := strings.Join(strings.Fields(s.Text), " "); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Errors crossing the fetch boundary. Callers match them with errors.Is.
var (
	ErrInvalidVideoID      = errors.New("invalid YouTube video id")
	ErrNoCaptionsAvailable = errors.New("no captions available for this video")
	ErrTemporarilyBlocked  = errors.New("YouTube is temporarily blocking caption requests, try again later")
)

// Failure modes reported by a CaptionService.
var (
	ErrBlocked          = errors.New("rate limited or bot check")
	ErrCaptionsDisabled = errors.New("captions are disabled for this video")
	ErrVideoUnavailable = errors.New("video unavailable")
	ErrNotTranslatable  = errors.New("track is not translatable")
)

// CaptionService lists and downloads caption tracks.
type CaptionService interface {
	ListTracks(ctx context.Context, id VideoID) ([]Track, error)
	FetchTrack(ctx context.Context, t Track) ([]Segment, error)
	Translate(t Track, lang string) (Track, error)
}

// TranscriptSource returns the transcript for a video.
type TranscriptSource interface {
	Fetch(ctx context.Context, id VideoID) (*Transcript, error)
}
