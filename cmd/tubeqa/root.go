package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-kit/llm"
	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/rag"
	"github.com/anatolykoptev/go_tube/internal/engine/session"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/anatolykoptev/go_tube/internal/toolutil"
)

type globalFlags struct {
	cfgPath string
	ranker  string
	verbose bool
}

func rootCMD() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "tubeqa",
		Short:        "Ask questions about YouTube videos from their transcripts",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if g.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVarP(&g.cfgPath, "config", "c", env.Str("TUBE_CONFIG", ""), "TOML config file")
	root.PersistentFlags().StringVar(&g.ranker, "ranker", "", "chunk ranker: embedding, llm or keyword")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(resolveCMD(), transcriptCMD(g), askCMD(g), summarizeCMD(g))
	return root
}

// loadConfig builds the engine configuration from the environment and the optional config file.
func (g *globalFlags) loadConfig() (engine.Config, error) {
	c := engine.DefaultConfig()
	c.LLMAPIKey = env.Str("LLM_API_KEY", "")
	c.LLMAPIKeyFallbacks = env.List("LLM_API_KEY_FALLBACKS", "")
	c.LLMAPIBase = env.Str("LLM_API_BASE", c.LLMAPIBase)
	c.LLMModel = env.Str("LLM_MODEL", c.LLMModel)
	c.EmbeddingAPIKey = env.Str("GEMINI_API_KEY", c.LLMAPIKey)
	c.Ranker = env.Str("RANKER", c.Ranker)

	if g.cfgPath != "" {
		if err := engine.LoadFile(g.cfgPath, &c); err != nil {
			return c, err
		}
	}
	if g.ranker != "" {
		c.Ranker = g.ranker
	}
	if err := c.Validate(); err != nil {
		return c, err
	}

	c.HTTPClient = engine.NewHTTPClient(c.FetchTimeout)
	if c.LLMAPIKey != "" {
		c.LLMClient = llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
			llm.WithFallbackKeys(c.LLMAPIKeyFallbacks),
			llm.WithMaxTokens(c.LLMMaxTokens),
			llm.WithTemperature(c.LLMTemperature),
			llm.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		)
	}
	engine.InitCache(env.Str("REDIS_URL", ""), env.Duration("CACHE_TTL", 6*time.Hour), c.CacheMaxEntries, c.CacheCleanupInterval)
	return c, nil
}

// loadSession resolves input, builds the pipeline and loads the video into a fresh session.
// Questions and summaries need an LLM, so a missing key fails before any download.
func (g *globalFlags) loadSession(ctx context.Context, input string) (*session.Session, session.LoadResult, error) {
	id, err := toolutil.ResolveVideo(input)
	if err != nil {
		return nil, session.LoadResult{}, toolutil.Explain(err)
	}
	c, err := g.loadConfig()
	if err != nil {
		return nil, session.LoadResult{}, err
	}
	if c.LLMClient == nil {
		return nil, session.LoadResult{}, errors.New("LLM_API_KEY is not set")
	}
	p, err := session.BuildPipeline(ctx, c)
	if err != nil {
		return nil, session.LoadResult{}, err
	}
	s := session.New("cli", p, nil)
	res, err := s.LoadVideo(ctx, id)
	if err != nil {
		return nil, session.LoadResult{}, toolutil.Explain(err)
	}
	return s, res, nil
}

func resolveCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url-or-id>",
		Short: "Print the video id for a YouTube URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := toolutil.ResolveVideo(args[0])
			if err != nil {
				return toolutil.Explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func transcriptCMD(g *globalFlags) *cobra.Command {
	var timestamps bool
	cmd := &cobra.Command{
		Use:   "transcript <url-or-id>",
		Short: "Fetch and print a video's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := toolutil.ResolveVideo(args[0])
			if err != nil {
				return toolutil.Explain(err)
			}
			c, err := g.loadConfig()
			if err != nil {
				return err
			}
			p, err := session.BuildPipeline(cmd.Context(), c)
			if err != nil {
				return err
			}
			t, err := p.Source.Fetch(cmd.Context(), id)
			if err != nil {
				return toolutil.Explain(err)
			}
			printTranscript(cmd, t, timestamps)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&timestamps, "timestamps", "t", false, "print one timed line per caption")
	return cmd
}

func printTranscript(cmd *cobra.Command, t *sources.Transcript, timestamps bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(cmd.ErrOrStderr(), toolutil.FormatMetadata(t.Metadata))
	if !timestamps {
		fmt.Fprintln(out, t.Text())
		return
	}
	for _, seg := range t.Segments {
		fmt.Fprintf(out, "[%s] %s\n", rag.FormatTimestamp(seg.Start), seg.Text)
	}
}

func askCMD(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <url-or-id> <question>",
		Short: "Answer a question from a video's transcript",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, res, err := g.loadSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "loaded %s: %d chunks\n", res.VideoID, res.ChunkCount)
			fmt.Fprintln(cmd.OutOrStdout(), s.Ask(cmd.Context(), strings.Join(args[1:], " ")))
			return nil
		},
	}
}

func summarizeCMD(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <url-or-id>",
		Short: "Summarize a video from its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, res, err := g.loadSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "loaded %s: %d chunks\n", res.VideoID, res.ChunkCount)
			fmt.Fprintln(cmd.OutOrStdout(), s.Summarize(cmd.Context()))
			return nil
		},
	}
}
