package engine

import (
	"fmt"
	"net/http"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/anatolykoptev/go-kit/llm"
)

// Ranker names accepted by Config.Ranker.
const (
	RankerEmbedding = "embedding"
	RankerLLM       = "llm"
	RankerKeyword   = "keyword"
)

// Chunking strategies accepted by Config.ChunkStrategy.
const (
	ChunkByChars = "chars"
	ChunkByTime  = "time"
)

// Config holds all engine configuration. main builds it and passes it down explicitly.
type Config struct {
	LLMAPIKey          string
	LLMAPIKeyFallbacks []string
	LLMAPIBase         string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int

	EmbeddingAPIKey string // Gemini API key; empty disables the embedding ranker
	EmbeddingModel  string

	ChunkStrategy       string
	ChunkSize           int
	ChunkOverlap        int
	ChunkLookback       int
	TimeWindow          time.Duration
	TopK                int
	Ranker              string
	RelevanceCandidates int
	SummaryChunks       int

	Languages      []string      // caption language preference, most preferred first
	RequestSpacing time.Duration // minimum gap between caption requests
	RequestJitter  time.Duration // extra random delay added to the gap
	BlockRetry     RetryConfig   // retry policy when YouTube rate-limits or bot-checks us
	SessionTTL     time.Duration
	HistoryDBPath  string // empty = conversation history kept in memory only
	FetchTimeout   time.Duration

	CacheMaxEntries      int
	CacheCleanupInterval time.Duration
	HTTPClient           *http.Client
	LLMClient            *llm.Client
}

// DefaultLanguages is the caption preference order: English variants, then major languages.
var DefaultLanguages = []string{
	"en", "en-US", "en-GB", "en-CA", "en-AU", "en-IN",
	"es", "fr", "de", "pt", "it", "nl", "ru", "ja", "ko", "zh-Hans", "zh-Hant", "hi", "ar",
}

// DefaultConfig returns the pipeline defaults. Credentials and clients are left empty.
func DefaultConfig() Config {
	return Config{
		LLMAPIBase:           "https://generativelanguage.googleapis.com/v1beta/openai",
		LLMModel:             "gemini-2.0-flash",
		LLMTemperature:       0.7,
		LLMMaxTokens:         2000,
		EmbeddingModel:       "text-embedding-004",
		ChunkStrategy:        ChunkByChars,
		ChunkSize:            1000,
		ChunkOverlap:         200,
		ChunkLookback:        200,
		TimeWindow:           60 * time.Second,
		TopK:                 4,
		Ranker:               RankerEmbedding,
		RelevanceCandidates:  10,
		SummaryChunks:        6,
		Languages:            DefaultLanguages,
		RequestSpacing:       2 * time.Second,
		RequestJitter:        time.Second,
		BlockRetry:           DefaultBlockRetryConfig,
		SessionTTL:           2 * time.Hour,
		FetchTimeout:         45 * time.Second,
		CacheMaxEntries:      1000,
		CacheCleanupInterval: 5 * time.Minute,
	}
}

// fileConfig mirrors the tunable subset of Config that may be set from a TOML file.
// Absent keys leave the current setting untouched; numbers are pointers so an explicit 0 applies.
type fileConfig struct {
	LLM struct {
		Model       string   `toml:"model"`
		Temperature *float64 `toml:"temperature"`
		MaxTokens   *int     `toml:"max_tokens"`
	} `toml:"llm"`
	Embedding struct {
		Model string `toml:"model"`
	} `toml:"embedding"`
	Chunking struct {
		Strategy   string `toml:"strategy"`
		Size       *int   `toml:"size"`
		Overlap    *int   `toml:"overlap"`
		Lookback   *int   `toml:"lookback"`
		TimeWindow string `toml:"time_window"`
	} `toml:"chunking"`
	Retrieval struct {
		Ranker        string `toml:"ranker"`
		TopK          *int   `toml:"top_k"`
		Candidates    *int   `toml:"relevance_candidates"`
		SummaryChunks *int   `toml:"summary_chunks"`
	} `toml:"retrieval"`
	Captions struct {
		Languages      []string `toml:"languages"`
		RequestSpacing string   `toml:"request_spacing"`
		RequestJitter  string   `toml:"request_jitter"`
		MaxRetries     *int     `toml:"max_retries"`
	} `toml:"captions"`
}

// LoadFile overlays settings from a TOML file onto c.
func LoadFile(path string, c *Config) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}

	setStr(&c.LLMModel, fc.LLM.Model)
	set(&c.LLMTemperature, fc.LLM.Temperature)
	set(&c.LLMMaxTokens, fc.LLM.MaxTokens)
	setStr(&c.EmbeddingModel, fc.Embedding.Model)
	setStr(&c.ChunkStrategy, fc.Chunking.Strategy)
	set(&c.ChunkSize, fc.Chunking.Size)
	set(&c.ChunkOverlap, fc.Chunking.Overlap)
	set(&c.ChunkLookback, fc.Chunking.Lookback)
	setStr(&c.Ranker, fc.Retrieval.Ranker)
	set(&c.TopK, fc.Retrieval.TopK)
	set(&c.RelevanceCandidates, fc.Retrieval.Candidates)
	set(&c.SummaryChunks, fc.Retrieval.SummaryChunks)
	set(&c.BlockRetry.MaxRetries, fc.Captions.MaxRetries)
	if len(fc.Captions.Languages) > 0 {
		c.Languages = fc.Captions.Languages
	}

	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{fc.Chunking.TimeWindow, &c.TimeWindow},
		{fc.Captions.RequestSpacing, &c.RequestSpacing},
		{fc.Captions.RequestJitter, &c.RequestJitter},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		*d.dst = v
	}
	return c.Validate()
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.Ranker {
	case RankerEmbedding, RankerLLM, RankerKeyword:
	default:
		return fmt.Errorf("unknown ranker %q", c.Ranker)
	}
	switch c.ChunkStrategy {
	case ChunkByChars, ChunkByTime:
	default:
		return fmt.Errorf("unknown chunk strategy %q", c.ChunkStrategy)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.TimeWindow <= 0 {
		return fmt.Errorf("time window must be positive, got %s", c.TimeWindow)
	}
	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
