package rag

import (
	"fmt"
	"strings"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine/sources"
)

// Splitting defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultLookback     = 200
	DefaultTimeWindow   = 60 * time.Second
)

// Chunk is a retrievable slice of one video's transcript.
// Index is the 0-based position within its ChunkSet and the tie-break key for ranking.
type Chunk struct {
	Content     string          `json:"content"`
	Index       int             `json:"index"`
	VideoID     sources.VideoID `json:"video_id"`
	SourceLabel string          `json:"source_label"`
	StartTime   *float64        `json:"start_time,omitempty"`
	EndTime     *float64        `json:"end_time,omitempty"`
}

// ChunkSet is the ordered chunk list of exactly one video. It is replaced, never mutated.
type ChunkSet struct {
	VideoID sources.VideoID
	Chunks  []Chunk
}

// Len returns the number of chunks.
func (s ChunkSet) Len() int { return len(s.Chunks) }

// SourceLabel is the human-readable origin stamped on every chunk of a video.
func SourceLabel(id sources.VideoID) string {
	return "YouTube Video " + string(id)
}

// Splitter turns a transcript into chunks numbered from 0.
type Splitter interface {
	Split(t *sources.Transcript) []Chunk
}

// CharSplitter cuts the transcript text into windows of Size runes overlapping by Overlap runes.
// A window end is pulled back to just after the nearest '.', '!' or '?' found within
// Lookback runes, as long as the next window still starts past the current one.
// Zero fields use the defaults; Overlap >= Size disables overlap.
type CharSplitter struct {
	Size     int
	Overlap  int
	Lookback int
}

// Split implements Splitter.
func (s CharSplitter) Split(t *sources.Transcript) []Chunk {
	if t == nil {
		return nil
	}
	id := t.Metadata.VideoID
	var chunks []Chunk
	for _, sp := range s.spans(t.Text()) {
		chunks = append(chunks, Chunk{
			Content:     sp.text,
			Index:       len(chunks),
			VideoID:     id,
			SourceLabel: SourceLabel(id),
		})
	}
	return chunks
}

type span struct {
	start int // rune offset of the window start
	text  string
}

func (s CharSplitter) params() (size, overlap, lookback int) {
	size, overlap, lookback = s.Size, s.Overlap, s.Lookback
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = 0
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return size, overlap, lookback
}

// spans returns the trimmed, non-empty windows of text with their start offsets.
func (s CharSplitter) spans(text string) []span {
	size, overlap, lookback := s.params()
	runes := []rune(text)
	n := len(runes)

	var out []span
	for start := 0; start < n; {
		end := min(start+size, n)
		if end < n {
			floor := max(end-lookback, start)
			for i := end - 1; i >= floor; i-- {
				if isSentenceEnd(runes[i]) && i+1-overlap > start {
					end = i + 1
					break
				}
			}
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, span{start: start, text: piece})
		}
		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// TimeSplitter groups consecutive segments until the span from the first segment's start
// to the current segment's end reaches Window. The trailing partial group is kept.
type TimeSplitter struct {
	Window time.Duration
}

// Split implements Splitter.
func (s TimeSplitter) Split(t *sources.Transcript) []Chunk {
	if t == nil {
		return nil
	}
	window := s.Window
	if window <= 0 {
		window = DefaultTimeWindow
	}
	limit := window.Seconds()
	id := t.Metadata.VideoID

	var (
		chunks []Chunk
		group  []sources.Segment
	)
	flush := func() {
		if len(group) == 0 {
			return
		}
		texts := make([]string, 0, len(group))
		for _, seg := range group {
			if txt := strings.Join(strings.Fields(seg.Text), " "); txt != "" {
				texts = append(texts, txt)
			}
		}
		if len(texts) > 0 {
			start, end := group[0].Start, group[len(group)-1].End()
			chunks = append(chunks, Chunk{
				Content:     strings.Join(texts, " "),
				Index:       len(chunks),
				VideoID:     id,
				SourceLabel: SourceLabel(id),
				StartTime:   &start,
				EndTime:     &end,
			})
		}
		group = group[:0]
	}

	for _, seg := range t.Segments {
		group = append(group, seg)
		if seg.End()-group[0].Start >= limit {
			flush()
		}
	}
	flush()
	return chunks
}

// FormatTimestamp renders seconds as m:ss or h:mm:ss.
func FormatTimestamp(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
