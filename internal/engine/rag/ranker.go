package rag

import (
	"context"
	"fmt"
	"math"
)

// DefaultTopK is used when a caller asks for k <= 0.
const DefaultTopK = 4

// Generator produces text for a prompt. engine.ChatGenerator satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns texts into vectors, one per text, in order. engine.GeminiEmbedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Ranker builds a queryable index over one ChunkSet.
type Ranker interface {
	Build(ctx context.Context, set ChunkSet) (Index, error)
}

// Index returns the chunks most relevant to a question, best first.
// An empty index returns no chunks; ranking failures degrade to positional order.
type Index interface {
	TopK(ctx context.Context, question string, k int) []Chunk
	Len() int
}

// IndexBuildError reports that an index could not be built (embedding or vector store failure).
type IndexBuildError struct {
	Ranker string
	Err    error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("build %s index: %v", e.Ranker, e.Err)
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

func clampK(k, n int) int {
	if k <= 0 {
		k = DefaultTopK
	}
	return min(k, n)
}

// positional returns the first k chunks in index order.
func positional(chunks []Chunk, k int) []Chunk {
	return append([]Chunk(nil), chunks[:clampK(k, len(chunks))]...)
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
