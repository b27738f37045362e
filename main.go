// go_tube is a YouTube transcript question-answering MCP server.
//
// Loads a video's captions, indexes them in chunks and answers questions
// or writes summaries grounded in the transcript. Runs as HTTP MCP server or stdio transport.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-kit/llm"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/session"
	"github.com/anatolykoptev/go_tube/internal/tubeserver"
)

var (
	version = "dev"
	mcpPort = env.Str("MCP_PORT", "8893")
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	c := initEngine()
	ctx := context.Background()

	pipeline, err := session.BuildPipeline(ctx, c)
	if err != nil {
		slog.Error("pipeline init failed", slog.Any("error", err))
		os.Exit(1)
	}

	var history *session.HistoryStore
	if c.HistoryDBPath != "" {
		history, err = session.OpenHistoryStore(c.HistoryDBPath)
		if err != nil {
			slog.Warn("history store init failed, keeping history in memory", slog.Any("error", err))
			history = nil
		} else {
			defer history.Close()
			slog.Info("history store initialized", slog.String("path", c.HistoryDBPath))
		}
	}

	sessions := session.NewManager(pipeline, history, c.SessionTTL)
	sessions.Start(c.CacheCleanupInterval)
	defer sessions.Close(ctx)

	slog.Info("starting go_tube",
		slog.String("port", mcpPort),
		slog.String("ranker", c.Ranker),
		slog.String("chunking", c.ChunkStrategy),
	)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_tube",
		Version: version,
	}, nil)

	tubeserver.RegisterTools(server, sessions)
	slog.Info("tools registered", slog.Int("count", tubeserver.ToolCount))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_tube",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 600 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func initEngine() engine.Config {
	c, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	c.HTTPClient = engine.NewHTTPClient(c.FetchTimeout)
	c.LLMClient = llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
		llm.WithFallbackKeys(c.LLMAPIKeyFallbacks),
		llm.WithMaxTokens(c.LLMMaxTokens),
		llm.WithTemperature(c.LLMTemperature),
		llm.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	)

	cacheTTL := env.Duration("CACHE_TTL", 6*time.Hour)
	engine.InitCache(env.Str("REDIS_URL", ""), cacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)
	return c
}

// loadConfig reads the environment, overlays the optional TUBE_CONFIG file and validates the result.
func loadConfig() (engine.Config, error) {
	d := engine.DefaultConfig()
	blockRetry := d.BlockRetry
	blockRetry.MaxRetries = env.Int("CAPTION_MAX_RETRIES", blockRetry.MaxRetries)
	blockRetry.InitialWait = env.Duration("CAPTION_RETRY_WAIT", blockRetry.InitialWait)

	c := engine.Config{
		LLMAPIKey:            env.Str("LLM_API_KEY", ""),
		LLMAPIKeyFallbacks:   env.List("LLM_API_KEY_FALLBACKS", ""),
		LLMAPIBase:           env.Str("LLM_API_BASE", d.LLMAPIBase),
		LLMModel:             env.Str("LLM_MODEL", d.LLMModel),
		LLMTemperature:       env.Float("LLM_TEMPERATURE", d.LLMTemperature),
		LLMMaxTokens:         env.Int("LLM_MAX_TOKENS", d.LLMMaxTokens),
		EmbeddingAPIKey:      env.Str("GEMINI_API_KEY", ""),
		EmbeddingModel:       env.Str("EMBEDDING_MODEL", d.EmbeddingModel),
		ChunkStrategy:        env.Str("CHUNK_STRATEGY", d.ChunkStrategy),
		ChunkSize:            env.Int("CHUNK_SIZE", d.ChunkSize),
		ChunkOverlap:         env.Int("CHUNK_OVERLAP", d.ChunkOverlap),
		ChunkLookback:        env.Int("CHUNK_LOOKBACK", d.ChunkLookback),
		TimeWindow:           env.Duration("CHUNK_TIME_WINDOW", d.TimeWindow),
		TopK:                 env.Int("TOP_K", d.TopK),
		Ranker:               env.Str("RANKER", d.Ranker),
		RelevanceCandidates:  env.Int("RELEVANCE_CANDIDATES", d.RelevanceCandidates),
		SummaryChunks:        env.Int("SUMMARY_CHUNKS", d.SummaryChunks),
		Languages:            env.List("CAPTION_LANGUAGES", ""),
		RequestSpacing:       env.Duration("CAPTION_REQUEST_SPACING", d.RequestSpacing),
		RequestJitter:        env.Duration("CAPTION_REQUEST_JITTER", d.RequestJitter),
		BlockRetry:           blockRetry,
		SessionTTL:           env.Duration("SESSION_TTL", d.SessionTTL),
		HistoryDBPath:        env.Str("HISTORY_DB", ""),
		FetchTimeout:         env.Duration("FETCH_TIMEOUT", d.FetchTimeout),
		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", d.CacheMaxEntries),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", d.CacheCleanupInterval),
	}
	if len(c.Languages) == 0 {
		c.Languages = d.Languages
	}
	if c.EmbeddingAPIKey == "" {
		c.EmbeddingAPIKey = c.LLMAPIKey
	}

	if path := env.Str("TUBE_CONFIG", ""); path != "" {
		if err := engine.LoadFile(path, &c); err != nil {
			return c, err
		}
		slog.Info("config file loaded", slog.String("path", path))
	}
	return c, c.Validate()
}
