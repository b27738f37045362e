package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	TranscriptRequests atomic.Int64
	TranscriptErrors   atomic.Int64
	CaptionBlocks      atomic.Int64
	LLMCalls           atomic.Int64
	LLMErrors          atomic.Int64
	EmbedCalls         atomic.Int64
	EmbedErrors        atomic.Int64
	RankerFallbacks    atomic.Int64
	VideosLoaded       atomic.Int64
	QuestionsAnswered  atomic.Int64
}

var metricKeys = []string{
	"transcript_requests", "transcript_errors", "caption_blocks",
	"llm_calls", "llm_errors",
	"embed_calls", "embed_errors",
	"ranker_fallbacks",
	"videos_loaded", "questions_answered",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"transcript_requests": metrics.TranscriptRequests.Load(),
		"transcript_errors":   metrics.TranscriptErrors.Load(),
		"caption_blocks":      metrics.CaptionBlocks.Load(),
		"llm_calls":           metrics.LLMCalls.Load(),
		"llm_errors":          metrics.LLMErrors.Load(),
		"embed_calls":         metrics.EmbedCalls.Load(),
		"embed_errors":        metrics.EmbedErrors.Load(),
		"ranker_fallbacks":    metrics.RankerFallbacks.Load(),
		"videos_loaded":       metrics.VideosLoaded.Load(),
		"questions_answered":  metrics.QuestionsAnswered.Load(),
		"cache_hits":          hits,
		"cache_misses":        misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sources/ sub-package.
func IncrTranscriptRequests() { metrics.TranscriptRequests.Add(1) }
func IncrTranscriptErrors()   { metrics.TranscriptErrors.Add(1) }
func IncrCaptionBlocks()      { metrics.CaptionBlocks.Add(1) }

// Incrementors for rag/ and session/ sub-packages.
func IncrRankerFallbacks()   { metrics.RankerFallbacks.Add(1) }
func IncrVideosLoaded()      { metrics.VideosLoaded.Add(1) }
func IncrQuestionsAnswered() { metrics.QuestionsAnswered.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
