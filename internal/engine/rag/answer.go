package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go_tube/internal/engine"
)

// DefaultSummaryChunks is how many leading chunks feed a summary.
const DefaultSummaryChunks = 6

// Answerer turns retrieved chunks into an answer or a summary.
// Generation failures come back as readable strings, never as errors.
type Answerer struct {
	Generator     Generator
	SummaryChunks int
}

// Answer asks the model to answer question from chunks, in the order given.
func (a *Answerer) Answer(ctx context.Context, question string, chunks []Chunk) string {
	prompt := fmt.Sprintf(engine.AnswerPrompt, joinContext(chunks), strings.TrimSpace(question))
	out, err := a.Generator.Generate(ctx, prompt)
	if err != nil {
		return "Error generating answer: " + err.Error()
	}
	return out
}

// Summarize outlines the video from its first SummaryChunks chunks in index order.
func (a *Answerer) Summarize(ctx context.Context, chunks []Chunk) string {
	n := a.SummaryChunks
	if n <= 0 {
		n = DefaultSummaryChunks
	}
	lead := chunks[:min(n, len(chunks))]
	out, err := a.Generator.Generate(ctx, fmt.Sprintf(engine.SummaryPrompt, joinContext(lead)))
	if err != nil {
		return "Error generating summary: " + err.Error()
	}
	return out
}

func joinContext(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n")
}
