package rag

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/anatolykoptev/go_tube/internal/engine"
)

// Candidate bounds for LLM scoring; prompts beyond ten chunks get unreliable.
const (
	minRelevanceCandidates     = 6
	maxRelevanceCandidates     = 10
	maxRelevanceChunkRunes     = 1500
	defaultRelevanceCandidates = maxRelevanceCandidates
)

// LLMRanker asks the model to score the leading chunks for relevance.
// Scores are matched to candidates by position: missing scores count as 0 and
// extra scores are ignored. Unparseable output or a provider error falls back to
// the first k chunks in order.
type LLMRanker struct {
	Generator     Generator
	MaxCandidates int // clamped to 6..10; 0 means 10
}

// Build implements Ranker. No model calls are made until TopK.
func (r *LLMRanker) Build(_ context.Context, set ChunkSet) (Index, error) {
	n := r.MaxCandidates
	switch {
	case n <= 0:
		n = defaultRelevanceCandidates
	case n < minRelevanceCandidates:
		n = minRelevanceCandidates
	case n > maxRelevanceCandidates:
		n = maxRelevanceCandidates
	}
	return &llmIndex{chunks: set.Chunks, gen: r.Generator, candidates: n}, nil
}

type llmIndex struct {
	chunks     []Chunk
	gen        Generator
	candidates int
}

func (x *llmIndex) Len() int { return len(x.chunks) }

func (x *llmIndex) TopK(ctx context.Context, question string, k int) []Chunk {
	if len(x.chunks) == 0 {
		return nil
	}
	k = clampK(k, len(x.chunks))
	cands := x.chunks[:min(x.candidates, len(x.chunks))]

	raw, err := x.gen.Generate(ctx, relevancePrompt(question, cands))
	if err != nil {
		engine.IncrRankerFallbacks()
		slog.Warn("rag: relevance scoring failed, using positional order", slog.Any("error", err))
		return positional(x.chunks, k)
	}
	scores, ok := ParseScores(raw)
	if !ok {
		engine.IncrRankerFallbacks()
		slog.Warn("rag: unparseable relevance scores, using positional order",
			slog.String("raw", engine.TruncateRunes(raw, 200, "...")))
		return positional(x.chunks, k)
	}
	if len(scores) != len(cands) {
		slog.Debug("rag: relevance score count mismatch",
			slog.Int("scores", len(scores)), slog.Int("chunks", len(cands)))
	}

	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	score := func(i int) float64 {
		if i < len(scores) {
			return scores[i]
		}
		return 0
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(score(b), score(a)) })

	out := make([]Chunk, 0, k)
	for _, i := range order {
		if len(out) == k {
			break
		}
		out = append(out, cands[i])
	}
	for _, c := range x.chunks[len(cands):] {
		if len(out) == k {
			break
		}
		out = append(out, c)
	}
	return out
}

func relevancePrompt(question string, cands []Chunk) string {
	var sb strings.Builder
	for i, c := range cands {
		fmt.Fprintf(&sb, engine.RelevanceChunkFormat, i+1, engine.TruncateRunes(c.Content, maxRelevanceChunkRunes, "..."))
	}
	return fmt.Sprintf(engine.RelevancePrompt, question, sb.String(), len(cands))
}
