package session

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_tube/internal/engine/rag"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
)

// gatedSource blocks Fetch until release is closed.
type gatedSource struct {
	*fakeSource
	started chan struct{}
	release chan struct{}
}

func (g *gatedSource) Fetch(ctx context.Context, id sources.VideoID) (*sources.Transcript, error) {
	close(g.started)
	<-g.release
	return g.fakeSource.Fetch(ctx, id)
}

// closeCounting wraps a ranker so tests can see whether built indexes get released.
type closeCounting struct {
	rag.Ranker
	closed atomic.Int32
}

type countedIndex struct {
	rag.Index
	owner *closeCounting
}

func (c *closeCounting) Build(ctx context.Context, set rag.ChunkSet) (rag.Index, error) {
	idx, err := c.Ranker.Build(ctx, set)
	if err != nil {
		return nil, err
	}
	return &countedIndex{Index: idx, owner: c}, nil
}

func (i *countedIndex) Close() error {
	i.owner.closed.Add(1)
	return nil
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	src, gen, _ := newFixture()
	m := NewManager(testPipeline(src, gen), nil, time.Hour)
	defer m.Close(ctx)

	a := m.Create()
	b := m.Create()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36)
	assert.Equal(t, 2, m.Len())

	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = m.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownSession)

	fresh, err := m.GetOrCreate("")
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())
	assert.NotEmpty(t, fresh.ID)

	require.NoError(t, m.End(ctx, a.ID))
	assert.ErrorIs(t, m.End(ctx, a.ID), ErrUnknownSession)
	_, err = m.Get(a.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Equal(t, 2, m.Len())
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	src, gen, _ := newFixture()
	m := NewManager(testPipeline(src, gen), nil, 0)

	a, b := m.Create(), m.Create()
	_, err := a.LoadVideo(ctx, videoA)
	require.NoError(t, err)
	_, err = b.LoadVideo(ctx, videoB)
	require.NoError(t, err)

	va, _ := a.Video()
	vb, _ := b.Video()
	assert.Equal(t, videoA, va.VideoID)
	assert.Equal(t, videoB, vb.VideoID)

	a.Ask(ctx, "q?")
	assert.Len(t, a.History(), 1)
	assert.Empty(t, b.History())
}

func TestManager_EvictIdle(t *testing.T) {
	ctx := context.Background()
	src, gen, _ := newFixture()
	m := NewManager(testPipeline(src, gen), nil, time.Minute)

	s := m.Create()
	_, err := s.LoadVideo(ctx, videoA)
	require.NoError(t, err)

	assert.Zero(t, m.EvictIdle(ctx, time.Now()))
	assert.Equal(t, 1, m.EvictIdle(ctx, time.Now().Add(2*time.Minute)))
	assert.Zero(t, m.Len())

	_, ok := s.Video()
	assert.False(t, ok, "evicted session drops its video")
}

func TestManager_NoTTL(t *testing.T) {
	m := NewManager(&Pipeline{}, nil, 0)
	m.Create()
	assert.Zero(t, m.EvictIdle(context.Background(), time.Now().Add(24*time.Hour)))
	assert.Equal(t, 1, m.Len())
}

func TestManager_EndDeletesHistory(t *testing.T) {
	ctx := context.Background()
	store, err := OpenHistoryStore(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	defer store.Close()

	src, gen, _ := newFixture()
	m := NewManager(testPipeline(src, gen), store, time.Hour)

	s := m.Create()
	_, err = s.LoadVideo(ctx, videoA)
	require.NoError(t, err)
	s.Ask(ctx, "q?")

	turns, err := store.List(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, turns, 1)

	require.NoError(t, m.End(ctx, s.ID))
	turns, err = store.List(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHistoryStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenHistoryStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	defer store.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, "s1", Turn{VideoID: videoA, Question: "q1", Answer: "a1", At: at}))
	require.NoError(t, store.Append(ctx, "s1", Turn{VideoID: videoA, Question: "q2", Answer: "a2", At: at.Add(time.Second)}))
	require.NoError(t, store.Append(ctx, "s2", Turn{VideoID: videoB, Question: "other", Answer: "x", At: at}))

	turns, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "q1", turns[0].Question)
	assert.Equal(t, "a2", turns[1].Answer)
	assert.True(t, turns[0].At.Equal(at))

	require.NoError(t, store.Clear(ctx, "s1"))
	turns, err = store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	turns, err = store.List(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestManager_EndDuringLoad(t *testing.T) {
	ctx := context.Background()
	src, gen, _ := newFixture()
	gated := &gatedSource{fakeSource: src, started: make(chan struct{}), release: make(chan struct{})}
	p := testPipeline(src, gen)
	p.Source = gated
	ranker := &closeCounting{Ranker: p.Ranker}
	p.Ranker = ranker
	m := NewManager(p, nil, time.Hour)

	s := m.Create()
	done := make(chan error, 1)
	go func() {
		_, err := s.LoadVideo(ctx, videoA)
		done <- err
	}()

	<-gated.started
	require.NoError(t, m.End(ctx, s.ID))
	close(gated.release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not finish")
	}
	_, ok := s.Video()
	assert.False(t, ok, "ended session must not commit a video")
	assert.Equal(t, int32(1), ranker.closed.Load(), "index built for the ended session is released")

	_, err := s.LoadVideo(ctx, videoB)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, MsgNoVideo, s.Ask(ctx, "q?"))
}

func TestManager_AnswerAfterEndNotPersisted(t *testing.T) {
	ctx := context.Background()
	store, err := OpenHistoryStore(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	defer store.Close()

	src, _, _ := newFixture()
	gen := &endingGenerator{reply: "late answer"}
	p := testPipeline(src, &fakeGenerator{})
	p.Answerer = &rag.Answerer{Generator: gen}
	m := NewManager(p, store, time.Hour)
	s := m.Create()
	gen.end = func() { require.NoError(t, m.End(ctx, s.ID)) }

	_, err = s.LoadVideo(ctx, videoA)
	require.NoError(t, err)
	assert.Equal(t, "late answer", s.Ask(ctx, "q?"))

	assert.Empty(t, s.History())
	turns, err := store.List(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

// endingGenerator runs end while it is producing an answer.
type endingGenerator struct {
	reply string
	end   func()
}

func (g *endingGenerator) Generate(context.Context, string) (string, error) {
	if g.end != nil {
		g.end()
	}
	return g.reply, nil
}
