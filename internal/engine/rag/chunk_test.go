package rag

import (
	"strings"
	"testing"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine/sources"
)

func textTranscript(id sources.VideoID, text string) *sources.Transcript {
	return &sources.Transcript{
		Segments: []sources.Segment{{Text: text, Start: 0, Duration: 5}},
		Metadata: sources.Metadata{VideoID: id},
	}
}

func TestCharSplitter_SentenceSnap(t *testing.T) {
	tr := textTranscript("bMt47wvK6u0", "Hello world. This is a test. Goodbye.")
	chunks := CharSplitter{Size: 20, Overlap: 5}.Split(tr)

	want := []string{"Hello world.", "orld. This is a test", "test. Goodbye."}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d: %+v", len(chunks), len(want), chunks)
	}
	for i, c := range chunks {
		if c.Content != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, c.Content, want[i])
		}
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.VideoID != "bMt47wvK6u0" || c.SourceLabel != "YouTube Video bMt47wvK6u0" {
			t.Errorf("chunk %d has wrong origin: %q %q", i, c.VideoID, c.SourceLabel)
		}
		if n := len([]rune(c.Content)); n > 20 {
			t.Errorf("chunk %d is %d runes, limit 20", i, n)
		}
		if c.StartTime != nil || c.EndTime != nil {
			t.Errorf("character chunks carry no timing")
		}
	}
}

func TestCharSplitter_Properties(t *testing.T) {
	var sb strings.Builder
	for i := range 300 {
		sb.WriteString("word")
		if i%7 == 6 {
			sb.WriteString(". ")
		} else {
			sb.WriteString(" ")
		}
	}
	text := strings.TrimSpace(sb.String())
	tr := textTranscript("abcdefghijk", text)

	for _, s := range []CharSplitter{
		{Size: 50, Overlap: 10},
		{Size: 100, Overlap: 20, Lookback: 30},
		{Size: 7, Overlap: 3},
		{},
	} {
		chunks := s.Split(tr)
		if len(chunks) == 0 {
			t.Fatalf("%+v: no chunks", s)
		}
		size, _, _ := s.params()
		for _, c := range chunks {
			if n := len([]rune(c.Content)); n > size {
				t.Errorf("%+v: chunk %d is %d runes", s, c.Index, n)
			}
			if c.Content == "" {
				t.Errorf("%+v: empty chunk %d", s, c.Index)
			}
		}
		if last := chunks[len(chunks)-1].Content; !strings.HasSuffix(text, last) {
			t.Errorf("%+v: last chunk %q does not reach end of text", s, last)
		}
	}
}

func TestCharSplitter_OverlapNotLessThanSize(t *testing.T) {
	tr := textTranscript("abcdefghijk", "abcdefghijklmnopqrstuvwxy")
	chunks := CharSplitter{Size: 10, Overlap: 10}.Split(tr)
	want := []string{"abcdefghij", "klmnopqrst", "uvwxy"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, c := range chunks {
		if c.Content != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, c.Content, want[i])
		}
	}
}

func TestCharSplitter_Empty(t *testing.T) {
	if got := (CharSplitter{}).Split(textTranscript("abcdefghijk", "   ")); len(got) != 0 {
		t.Errorf("expected no chunks, got %d", len(got))
	}
	if got := (CharSplitter{}).Split(nil); got != nil {
		t.Errorf("expected nil for nil transcript")
	}
}

func TestTimeSplitter(t *testing.T) {
	tr := &sources.Transcript{Metadata: sources.Metadata{VideoID: "abcdefghijk"}}
	for i := range 10 {
		tr.Segments = append(tr.Segments, sources.Segment{
			Text:     "line",
			Start:    float64(i * 10),
			Duration: 10,
		})
	}

	chunks := TimeSplitter{Window: 30 * time.Second}.Split(tr)
	// 100s of captions in 30s windows.
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	if *chunks[0].StartTime != 0 || *chunks[0].EndTime != 30 {
		t.Errorf("chunk 0 spans %v-%v", *chunks[0].StartTime, *chunks[0].EndTime)
	}
	if *chunks[3].StartTime != 90 || *chunks[3].EndTime != 100 {
		t.Errorf("trailing chunk spans %v-%v", *chunks[3].StartTime, *chunks[3].EndTime)
	}
	if chunks[0].Content != "line line line" {
		t.Errorf("chunk 0 content = %q", chunks[0].Content)
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
	}
}

func TestTimeSplitter_SkipsBlankSegments(t *testing.T) {
	tr := &sources.Transcript{Segments: []sources.Segment{
		{Text: "  ", Start: 0, Duration: 100},
		{Text: "real", Start: 100, Duration: 5},
	}}
	chunks := TimeSplitter{Window: time.Minute}.Split(tr)
	if len(chunks) != 1 || chunks[0].Content != "real" {
		t.Fatalf("got %+v", chunks)
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "0:00"},
		{65, "1:05"},
		{59.6, "1:00"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.sec); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}
