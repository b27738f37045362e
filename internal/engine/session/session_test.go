package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_tube/internal/engine/rag"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
)

const (
	videoA = sources.VideoID("bMt47wvK6u0")
	videoB = sources.VideoID("dQw4w9WgXcQ")
	videoC = sources.VideoID("aaaaaaaaaaa")
)

type fakeSource struct {
	mu    sync.Mutex
	texts map[sources.VideoID]string
	errs  map[sources.VideoID]error
	calls int
}

func (f *fakeSource) Fetch(_ context.Context, id sources.VideoID) (*sources.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	text, ok := f.texts[id]
	if !ok {
		return nil, sources.ErrNoCaptionsAvailable
	}
	return &sources.Transcript{
		Segments: []sources.Segment{{Text: text, Start: 0, Duration: 30}},
		Metadata: sources.Metadata{VideoID: id, LanguageCode: "en", Method: sources.MethodManual},
	}, nil
}

// groupEmbedder puts words from the same group on the same axis.
type groupEmbedder struct {
	groups [][]string
	err    error
}

func (e *groupEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		v := make([]float32, len(e.groups))
		for g, words := range e.groups {
			for _, w := range words {
				v[g] += float32(strings.Count(lower, w))
			}
		}
		out[i] = v
	}
	return out, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, nil
}

func (g *fakeGenerator) last() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func testPipeline(src *fakeSource, gen *fakeGenerator) *Pipeline {
	emb := &groupEmbedder{groups: [][]string{
		{"goodbye", "end"},
		{"hello", "start", "begin"},
		{"test"},
		{"alpha"},
		{"bravo"},
	}}
	return &Pipeline{
		Source:   src,
		Splitter: rag.CharSplitter{Size: 20, Overlap: 5},
		Ranker:   &rag.EmbeddingRanker{Documents: emb},
		Answerer: &rag.Answerer{Generator: gen},
		TopK:     1,
	}
}

func newFixture() (*fakeSource, *fakeGenerator, *Session) {
	src := &fakeSource{texts: map[sources.VideoID]string{
		videoA: "Hello world. This is a test. Goodbye.",
		videoB: "Alpha bravo. Bravo alpha. Alpha again.",
	}}
	gen := &fakeGenerator{reply: "It ends with Goodbye."}
	return src, gen, New("test", testPipeline(src, gen), nil)
}

func TestSession_EndToEnd(t *testing.T) {
	ctx := context.Background()
	_, gen, s := newFixture()

	res, err := s.LoadVideo(ctx, videoA)
	require.NoError(t, err)
	assert.Equal(t, videoA, res.VideoID)
	assert.GreaterOrEqual(t, res.ChunkCount, 3)
	assert.Equal(t, sources.MethodManual, res.Metadata.Method)

	state, lastErr := s.State()
	assert.Equal(t, Indexed, state)
	assert.NoError(t, lastErr)

	answer := s.Ask(ctx, "What is said at the end?")
	assert.Equal(t, "It ends with Goodbye.", answer)
	assert.Contains(t, gen.last(), "Goodbye")
	assert.Contains(t, gen.last(), "Question: What is said at the end?")

	hist := s.History()
	require.Len(t, hist, 1)
	assert.Equal(t, videoA, hist[0].VideoID)
	assert.Equal(t, "What is said at the end?", hist[0].Question)
	assert.Equal(t, answer, hist[0].Answer)

	state, _ = s.State()
	assert.Equal(t, Indexed, state)
}

func TestSession_NoVideo(t *testing.T) {
	ctx := context.Background()
	_, gen, s := newFixture()

	assert.Equal(t, MsgNoVideo, s.Ask(ctx, "anything?"))
	assert.Equal(t, MsgNoVideo, s.Summarize(ctx))
	assert.Empty(t, gen.prompts)
	assert.Empty(t, s.History())

	state, _ := s.State()
	assert.Equal(t, NoVideo, state)
	_, ok := s.Video()
	assert.False(t, ok)
}

func TestSession_EmptyQuestion(t *testing.T) {
	_, gen, s := newFixture()
	_, err := s.LoadVideo(context.Background(), videoA)
	require.NoError(t, err)

	assert.Equal(t, MsgEmptyQuestion, s.Ask(context.Background(), "   "))
	assert.Empty(t, gen.prompts)
	assert.Empty(t, s.History())
}

func TestSession_SecondLoadDiscardsFirst(t *testing.T) {
	ctx := context.Background()
	_, gen, s := newFixture()

	_, err := s.LoadVideo(ctx, videoA)
	require.NoError(t, err)
	s.Ask(ctx, "How does it start?")

	res, err := s.LoadVideo(ctx, videoB)
	require.NoError(t, err)
	assert.Equal(t, videoB, res.VideoID)
	assert.Empty(t, s.History(), "a new video starts a new conversation")

	for _, q := range []string{"What about goodbye?", "How does it start?", "Any test?"} {
		s.Ask(ctx, q)
		prompt := gen.last()
		assert.NotContains(t, prompt, "Goodbye")
		assert.NotContains(t, prompt, "Hello")
		assert.Contains(t, strings.ToLower(prompt), "alpha")
	}
	for _, turn := range s.History() {
		assert.Equal(t, videoB, turn.VideoID)
	}
}

func TestSession_ClearConversationKeepsChunks(t *testing.T) {
	ctx := context.Background()
	_, _, s := newFixture()

	res, err := s.LoadVideo(ctx, videoA)
	require.NoError(t, err)
	s.Ask(ctx, "first?")
	s.Ask(ctx, "second?")
	require.Len(t, s.History(), 2)

	s.ClearConversation(ctx)
	assert.Empty(t, s.History())

	v, ok := s.Video()
	require.True(t, ok)
	assert.Equal(t, res.ChunkCount, v.ChunkCount)
	assert.Equal(t, res.ChunkCount, s.Stats().Chunks)
}

func TestSession_SummarizeDoesNotRecordTurn(t *testing.T) {
	ctx := context.Background()
	_, gen, s := newFixture()
	gen.reply = "1. Greetings"

	_, err := s.LoadVideo(ctx, videoA)
	require.NoError(t, err)

	assert.Equal(t, "1. Greetings", s.Summarize(ctx))
	assert.Contains(t, gen.last(), "Hello world.")
	assert.Empty(t, s.History())
}

func TestSession_FailedLoadKeepsPrior(t *testing.T) {
	ctx := context.Background()
	src, _, s := newFixture()
	src.errs = map[sources.VideoID]error{videoC: sources.ErrTemporarilyBlocked}

	_, err := s.LoadVideo(ctx, videoA)
	require.NoError(t, err)
	s.Ask(ctx, "kept?")

	_, err = s.LoadVideo(ctx, videoC)
	require.ErrorIs(t, err, sources.ErrTemporarilyBlocked)

	v, ok := s.Video()
	require.True(t, ok)
	assert.Equal(t, videoA, v.VideoID)
	assert.Len(t, s.History(), 1)

	state, lastErr := s.State()
	assert.Equal(t, Indexed, state)
	assert.ErrorIs(t, lastErr, sources.ErrTemporarilyBlocked)
	assert.Contains(t, s.Stats().LastError, "blocked")

	_, err = s.LoadVideo(ctx, videoB)
	require.NoError(t, err)
	_, lastErr = s.State()
	assert.NoError(t, lastErr)
}

func TestSession_FailedFirstLoad(t *testing.T) {
	_, _, s := newFixture()

	_, err := s.LoadVideo(context.Background(), videoC)
	require.ErrorIs(t, err, sources.ErrNoCaptionsAvailable)

	state, lastErr := s.State()
	assert.Equal(t, NoVideo, state)
	assert.ErrorIs(t, lastErr, sources.ErrNoCaptionsAvailable)
}

func TestSession_InvalidVideoID(t *testing.T) {
	src, _, s := newFixture()

	_, err := s.LoadVideo(context.Background(), "short")
	require.ErrorIs(t, err, sources.ErrInvalidVideoID)
	assert.Zero(t, src.calls)
}

func TestSession_IndexBuildFailure(t *testing.T) {
	ctx := context.Background()
	src, gen, _ := newFixture()
	p := testPipeline(src, gen)
	s := New("test", p, nil)

	_, err := s.LoadVideo(ctx, videoA)
	require.NoError(t, err)

	p.Ranker = &rag.EmbeddingRanker{Documents: &groupEmbedder{err: errors.New("quota exceeded")}}
	_, err = s.LoadVideo(ctx, videoB)

	var ibe *rag.IndexBuildError
	require.ErrorAs(t, err, &ibe)
	v, ok := s.Video()
	require.True(t, ok)
	assert.Equal(t, videoA, v.VideoID)
}

func TestSession_EmptyTranscript(t *testing.T) {
	src, _, s := newFixture()
	src.texts[videoC] = "   "

	_, err := s.LoadVideo(context.Background(), videoC)
	require.ErrorIs(t, err, sources.ErrNoCaptionsAvailable)
}

func TestSession_Stats(t *testing.T) {
	ctx := context.Background()
	_, gen, s := newFixture()

	st := s.Stats()
	assert.Equal(t, "no_video", st.State)
	assert.Zero(t, st.Chunks)

	res, err := s.LoadVideo(ctx, videoA)
	require.NoError(t, err)
	gen.reply = "abcd"
	s.Ask(ctx, "one?")
	gen.reply = "abcdefgh"
	s.Ask(ctx, "two?")

	st = s.Stats()
	assert.Equal(t, videoA, st.VideoID)
	assert.Equal(t, "indexed", st.State)
	assert.Equal(t, 7, st.Words)
	assert.Equal(t, len("Hello world. This is a test. Goodbye."), st.Characters)
	assert.Equal(t, res.ChunkCount, st.Chunks)
	assert.Equal(t, 7/res.ChunkCount, st.AvgWordsPerChunk)
	assert.Equal(t, 2, st.Questions)
	assert.Equal(t, 6, st.AvgAnswerLength)
}

func TestSession_PersistsHistory(t *testing.T) {
	ctx := context.Background()
	store, err := OpenHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	src, gen, _ := newFixture()
	s := New("persisted", testPipeline(src, gen), store)

	_, err = s.LoadVideo(ctx, videoA)
	require.NoError(t, err)
	s.Ask(ctx, "What is said at the end?")

	turns, err := store.List(ctx, "persisted")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, videoA, turns[0].VideoID)

	s.ClearConversation(ctx)
	turns, err = store.List(ctx, "persisted")
	require.NoError(t, err)
	assert.Empty(t, turns)
}
