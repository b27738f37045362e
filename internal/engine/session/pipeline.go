package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/rag"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
)

// Pipeline bundles the stages a Session drives. It is safe to share across sessions:
// none of its parts hold per-video state.
type Pipeline struct {
	Source   sources.TranscriptSource
	Splitter rag.Splitter
	Ranker   rag.Ranker
	Answerer *rag.Answerer
	TopK     int
}

// BuildPipeline wires the YouTube fetcher, the configured splitter and ranker, and the
// answer generator from c. An embedding ranker without an API key falls back to keyword ranking.
func BuildPipeline(ctx context.Context, c engine.Config) (*Pipeline, error) {
	hc := c.HTTPClient
	if hc == nil {
		hc = engine.NewHTTPClient(c.FetchTimeout)
	}
	fetcher := sources.NewFetcher(sources.NewYouTubeClient(hc), sources.FetcherConfig{
		Languages:  c.Languages,
		Spacing:    c.RequestSpacing,
		Jitter:     c.RequestJitter,
		BlockRetry: c.BlockRetry,
	})

	gen := engine.NewChatGenerator(c)
	ranker, err := newRanker(ctx, c, gen)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Source:   &sources.CachedFetcher{Source: fetcher},
		Splitter: newSplitter(c),
		Ranker:   ranker,
		Answerer: &rag.Answerer{Generator: gen, SummaryChunks: c.SummaryChunks},
		TopK:     c.TopK,
	}, nil
}

func newSplitter(c engine.Config) rag.Splitter {
	if c.ChunkStrategy == engine.ChunkByTime {
		return rag.TimeSplitter{Window: c.TimeWindow}
	}
	return rag.CharSplitter{Size: c.ChunkSize, Overlap: c.ChunkOverlap, Lookback: c.ChunkLookback}
}

func newRanker(ctx context.Context, c engine.Config, gen rag.Generator) (rag.Ranker, error) {
	switch c.Ranker {
	case engine.RankerLLM:
		return &rag.LLMRanker{Generator: gen, MaxCandidates: c.RelevanceCandidates}, nil
	case engine.RankerKeyword:
		return rag.KeywordRanker{}, nil
	case engine.RankerEmbedding, "":
		if c.EmbeddingAPIKey == "" {
			slog.Warn("session: no embedding API key, using keyword ranking")
			return rag.KeywordRanker{}, nil
		}
		docs, err := engine.NewGeminiEmbedder(ctx, c.EmbeddingAPIKey, c.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("embedding ranker: %w", err)
		}
		return &rag.EmbeddingRanker{Documents: docs, Queries: docs.ForQueries()}, nil
	}
	return nil, fmt.Errorf("unknown ranker %q", c.Ranker)
}
