package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// embedBatchSize is the Gemini limit on contents per embed request.
const embedBatchSize = 100

// Embedding task types understood by the Gemini embedding models.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// ErrNoEmbeddingKey is returned when the embedding ranker is selected without an API key.
var ErrNoEmbeddingKey = errors.New("embedding api key not configured")

// GeminiEmbedder turns text into vectors with a Gemini embedding model.
// Vectors are cached per (model, task, text) in the engine cache.
type GeminiEmbedder struct {
	models  *genai.Models
	model   string
	task    string
	limiter *rate.Limiter
	retry   RetryConfig
}

// NewGeminiEmbedder creates an embedder for documents (chunks).
// Use ForQueries for the question side.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, ErrNoEmbeddingKey
	}
	return newGeminiEmbedder(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model)
}

func newGeminiEmbedder(ctx context.Context, cc *genai.ClientConfig, model string) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GeminiEmbedder{
		models:  client.Models,
		model:   model,
		task:    TaskRetrievalDocument,
		limiter: rate.NewLimiter(rate.Every(time.Second/5), 5),
		retry:   DefaultRetryConfig,
	}, nil
}

// ForQueries returns a copy that embeds with the query task type.
// The copy shares the rate limiter.
func (e *GeminiEmbedder) ForQueries() *GeminiEmbedder {
	q := *e
	q.task = TaskRetrievalQuery
	return &q
}

// Embed returns one vector per text, in order.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int
	for i, t := range texts {
		if v, ok := CacheLoadJSON[[]float32](ctx, e.cacheKey(t)); ok && len(v) > 0 {
			out[i] = v
			continue
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += embedBatchSize {
		end := min(start+embedBatchSize, len(missing))
		batch := missing[start:end]

		contents := make([]*genai.Content, len(batch))
		for j, idx := range batch {
			contents[j] = genai.NewContentFromText(texts[idx], genai.RoleUser)
		}

		vecs, err := e.embedBatch(ctx, contents)
		if err != nil {
			return nil, err
		}
		for j, idx := range batch {
			out[idx] = vecs[j]
			CacheStoreJSON(ctx, e.cacheKey(texts[idx]), vecs[j])
		}
	}
	return out, nil
}

func (e *GeminiEmbedder) embedBatch(ctx context.Context, contents []*genai.Content) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	metrics.EmbedCalls.Add(1)
	res, err := RetryIf(ctx, e.retry, isRetryableEmbed, func() (*genai.EmbedContentResponse, error) {
		return e.models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: e.task})
	})
	if err != nil {
		metrics.EmbedErrors.Add(1)
		return nil, fmt.Errorf("embed %d texts: %w", len(contents), err)
	}
	if len(res.Embeddings) != len(contents) {
		metrics.EmbedErrors.Add(1)
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(res.Embeddings), len(contents))
	}
	vecs := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			metrics.EmbedErrors.Add(1)
			return nil, fmt.Errorf("embed: empty vector at %d", i)
		}
		vecs[i] = emb.Values
	}
	return vecs, nil
}

// isRetryableEmbed retries quota (429) and server errors from the Gemini API,
// plus the transport errors IsRetryable already covers.
func isRetryableEmbed(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || isRetryableStatus(apiErr.Code)
	}
	return IsRetryable(err)
}

func (e *GeminiEmbedder) cacheKey(text string) string {
	return CacheKey("embed", e.model, e.task, text)
}
