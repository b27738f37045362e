package rag

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/anatolykoptev/go_tube/internal/engine"
)

// EmbeddingRanker embeds every chunk at build time and ranks by cosine similarity
// to the question embedding. Queries may use a separate embedder (query task type);
// when nil, Documents is used for both.
type EmbeddingRanker struct {
	Documents Embedder
	Queries   Embedder
}

// Build implements Ranker.
func (r *EmbeddingRanker) Build(ctx context.Context, set ChunkSet) (Index, error) {
	idx := &vectorIndex{chunks: set.Chunks, queries: r.Queries}
	if idx.queries == nil {
		idx.queries = r.Documents
	}
	if len(set.Chunks) == 0 {
		return idx, nil
	}

	texts := make([]string, len(set.Chunks))
	for i, c := range set.Chunks {
		texts[i] = c.Content
	}
	vecs, err := r.Documents.Embed(ctx, texts)
	if err != nil {
		return nil, &IndexBuildError{Ranker: "embedding", Err: err}
	}
	if len(vecs) != len(texts) {
		return nil, &IndexBuildError{Ranker: "embedding", Err: fmt.Errorf("got %d vectors for %d chunks", len(vecs), len(texts))}
	}
	idx.vectors = vecs
	return idx, nil
}

type vectorIndex struct {
	chunks  []Chunk
	vectors [][]float32
	queries Embedder
}

func (x *vectorIndex) Len() int { return len(x.chunks) }

func (x *vectorIndex) TopK(ctx context.Context, question string, k int) []Chunk {
	if len(x.chunks) == 0 {
		return nil
	}
	k = clampK(k, len(x.chunks))

	qv, err := x.queries.Embed(ctx, []string{question})
	if err != nil || len(qv) != 1 {
		engine.IncrRankerFallbacks()
		slog.Warn("rag: question embedding failed, using positional order", slog.Any("error", err))
		return positional(x.chunks, k)
	}

	type scored struct {
		pos   int
		score float64
	}
	ranked := make([]scored, len(x.chunks))
	for i, v := range x.vectors {
		ranked[i] = scored{pos: i, score: CosineSimilarity(qv[0], v)}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int { return cmp.Compare(b.score, a.score) })

	out := make([]Chunk, k)
	for i := range out {
		out[i] = x.chunks[ranked[i].pos]
	}
	return out
}
