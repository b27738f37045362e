package tubeserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_tube/internal/engine/rag"
	"github.com/anatolykoptev/go_tube/internal/engine/session"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
)

type stubSource map[sources.VideoID]string

func (s stubSource) Fetch(_ context.Context, id sources.VideoID) (*sources.Transcript, error) {
	text, ok := s[id]
	if !ok {
		return nil, sources.ErrNoCaptionsAvailable
	}
	return &sources.Transcript{
		Segments: []sources.Segment{{Text: text, Start: 0, Duration: 75}},
		Metadata: sources.Metadata{VideoID: id, Language: "English", LanguageCode: "en",
			TotalSegments: 1, TotalLength: len(text), Method: sources.MethodManual, Duration: 75},
	}, nil
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "Summarize") {
		return "summary", nil
	}
	return "answer", nil
}

func newTools(t *testing.T) *tools {
	t.Helper()
	p := &session.Pipeline{
		Source:   stubSource{"bMt47wvK6u0": "Hello world. This is a test. Goodbye."},
		Splitter: rag.CharSplitter{Size: 20, Overlap: 5},
		Ranker:   rag.KeywordRanker{},
		Answerer: &rag.Answerer{Generator: echoGenerator{}},
		TopK:     2,
	}
	m := session.NewManager(p, nil, time.Hour)
	t.Cleanup(func() { m.Close(context.Background()) })
	return &tools{sessions: m}
}

func TestRegisterTools(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "dev"}, nil)
	assert.NotPanics(t, func() {
		RegisterTools(server, session.NewManager(&session.Pipeline{}, nil, 0))
	})
}

func TestVideoResolve(t *testing.T) {
	ctx := context.Background()
	_, out, err := videoResolve(ctx, nil, VideoResolveInput{Input: "https://youtu.be/bMt47wvK6u0?t=3"})
	require.NoError(t, err)
	assert.True(t, out.Valid)
	assert.Equal(t, "bMt47wvK6u0", out.VideoID)
	assert.Equal(t, "https://www.youtube.com/watch?v=bMt47wvK6u0", out.URL)

	_, out, err = videoResolve(ctx, nil, VideoResolveInput{Input: "not-a-url-at-all"})
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Empty(t, out.VideoID)
}

func TestToolsConversationFlow(t *testing.T) {
	ctx := context.Background()
	tt := newTools(t)

	_, loaded, err := tt.videoLoad(ctx, nil, VideoLoadInput{Input: "https://www.youtube.com/watch?v=bMt47wvK6u0"})
	require.NoError(t, err)
	require.NotEmpty(t, loaded.SessionID)
	assert.Equal(t, "bMt47wvK6u0", loaded.VideoID)
	assert.Equal(t, 3, loaded.ChunkCount)
	assert.Contains(t, loaded.Info, "1:15")

	sid := loaded.SessionID
	_, ans, err := tt.videoAsk(ctx, nil, VideoAskInput{SessionID: sid, Question: "What is said at the end?"})
	require.NoError(t, err)
	assert.Equal(t, "answer", ans.Answer)
	assert.Equal(t, "bMt47wvK6u0", ans.VideoID)

	_, sum, err := tt.videoSummarize(ctx, nil, SessionInput{SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, "summary", sum.Answer)

	_, hist, err := tt.conversationHistory(ctx, nil, SessionInput{SessionID: sid})
	require.NoError(t, err)
	require.Equal(t, 1, hist.Total)
	assert.Equal(t, "What is said at the end?", hist.Turns[0].Question)

	_, stats, err := tt.videoStats(ctx, nil, SessionInput{SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 1, stats.Questions)

	_, _, err = tt.conversationClear(ctx, nil, SessionInput{SessionID: sid})
	require.NoError(t, err)
	_, hist, err = tt.conversationHistory(ctx, nil, SessionInput{SessionID: sid})
	require.NoError(t, err)
	assert.Zero(t, hist.Total)
	_, stats, err = tt.videoStats(ctx, nil, SessionInput{SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Chunks)

	_, _, err = tt.sessionEnd(ctx, nil, SessionInput{SessionID: sid})
	require.NoError(t, err)
	_, _, err = tt.videoAsk(ctx, nil, VideoAskInput{SessionID: sid, Question: "still there?"})
	assert.ErrorIs(t, err, session.ErrUnknownSession)
}

func TestToolsErrors(t *testing.T) {
	ctx := context.Background()
	tt := newTools(t)

	_, _, err := tt.videoLoad(ctx, nil, VideoLoadInput{Input: "short"})
	assert.ErrorIs(t, err, sources.ErrInvalidVideoID)

	_, _, err = tt.videoLoad(ctx, nil, VideoLoadInput{Input: "dQw4w9WgXcQ"})
	assert.ErrorIs(t, err, sources.ErrNoCaptionsAvailable)
	assert.Contains(t, err.Error(), "try another video")
	assert.Zero(t, tt.sessions.Len(), "a session started by a failed load is discarded")

	_, _, err = tt.videoLoad(ctx, nil, VideoLoadInput{SessionID: "missing", Input: "bMt47wvK6u0"})
	assert.ErrorIs(t, err, session.ErrUnknownSession)

	_, _, err = tt.videoAsk(ctx, nil, VideoAskInput{SessionID: "x"})
	assert.EqualError(t, err, "question is required")
}
