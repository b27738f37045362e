package rag

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"
)

// KeywordRanker ranks chunks by BM25 over an in-memory bleve index.
// It needs no credentials. Chunks without a keyword hit pad the result in index order.
type KeywordRanker struct{}

type keywordDoc struct {
	Content string `json:"content"`
}

// Build implements Ranker.
func (KeywordRanker) Build(_ context.Context, set ChunkSet) (Index, error) {
	bi, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, &IndexBuildError{Ranker: "keyword", Err: err}
	}
	batch := bi.NewBatch()
	for i, c := range set.Chunks {
		if err := batch.Index(strconv.Itoa(i), keywordDoc{Content: c.Content}); err != nil {
			_ = bi.Close()
			return nil, &IndexBuildError{Ranker: "keyword", Err: err}
		}
	}
	if batch.Size() == 0 {
		return &keywordIndex{bleve: bi}, nil
	}
	if err := bi.Batch(batch); err != nil {
		_ = bi.Close()
		return nil, &IndexBuildError{Ranker: "keyword", Err: err}
	}
	return &keywordIndex{chunks: set.Chunks, bleve: bi}, nil
}

type keywordIndex struct {
	chunks []Chunk
	bleve  bleve.Index
}

func (x *keywordIndex) Len() int { return len(x.chunks) }

// Close releases the bleve index.
func (x *keywordIndex) Close() error { return x.bleve.Close() }

func (x *keywordIndex) TopK(_ context.Context, question string, k int) []Chunk {
	if len(x.chunks) == 0 {
		return nil
	}
	k = clampK(k, len(x.chunks))
	if strings.TrimSpace(question) == "" {
		return positional(x.chunks, k)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(question), len(x.chunks), 0, false)
	res, err := x.bleve.Search(req)
	if err != nil {
		slog.Warn("rag: keyword search failed, using positional order", slog.Any("error", err))
		return positional(x.chunks, k)
	}

	type hit struct {
		pos   int
		score float64
	}
	hits := make([]hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		pos, err := strconv.Atoi(h.ID)
		if err != nil || pos < 0 || pos >= len(x.chunks) {
			continue
		}
		hits = append(hits, hit{pos: pos, score: h.Score})
	}
	slices.SortFunc(hits, func(a, b hit) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return a.pos - b.pos
	})

	out := make([]Chunk, 0, k)
	seen := make(map[int]bool, k)
	for _, h := range hits {
		if len(out) == k {
			break
		}
		seen[h.pos] = true
		out = append(out, x.chunks[h.pos])
	}
	for i, c := range x.chunks {
		if len(out) == k {
			break
		}
		if !seen[i] {
			out = append(out, c)
		}
	}
	return out
}
