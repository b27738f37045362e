// Package session owns per-user question-answering state: the loaded video, its chunk
// index and the conversation log. One Session runs one pipeline stage at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/rag"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
)

// Replies returned instead of an answer when the session cannot run a question.
const (
	MsgNoVideo       = "Please load a video first."
	MsgEmptyQuestion = "Please enter a question."
)

// ErrSessionClosed is returned when a session ends while, or before, it loads a video.
var ErrSessionClosed = errors.New("session has ended")

// State is where a session sits in the load/answer cycle.
type State int

const (
	NoVideo State = iota
	Fetching
	Indexed
	Answering
)

func (s State) String() string {
	switch s {
	case NoVideo:
		return "no_video"
	case Fetching:
		return "fetching"
	case Indexed:
		return "indexed"
	case Answering:
		return "answering"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Turn is one question and its answer.
type Turn struct {
	VideoID  sources.VideoID `json:"video_id"`
	Question string          `json:"question"`
	Answer   string          `json:"answer"`
	At       time.Time       `json:"at"`
}

// LoadResult describes a successfully loaded video.
type LoadResult struct {
	VideoID    sources.VideoID  `json:"video_id"`
	ChunkCount int              `json:"chunk_count"`
	Metadata   sources.Metadata `json:"metadata"`
}

// Stats summarises the loaded video and the conversation about it.
type Stats struct {
	VideoID          sources.VideoID `json:"video_id,omitempty"`
	State            string          `json:"state"`
	Words            int             `json:"words"`
	Characters       int             `json:"characters"`
	Chunks           int             `json:"chunks"`
	AvgWordsPerChunk int             `json:"avg_words_per_chunk"`
	Questions        int             `json:"questions"`
	AvgAnswerLength  int             `json:"avg_answer_length"`
	LastError        string          `json:"last_error,omitempty"`
}

type loadedVideo struct {
	meta   sources.Metadata
	text   string
	chunks rag.ChunkSet
	index  rag.Index
}

// Session holds one user's loaded video and conversation.
type Session struct {
	ID string

	pipeline *Pipeline
	history  *HistoryStore

	run sync.Mutex // serialises pipeline stages

	mu         sync.Mutex
	state      State
	lastErr    error
	video      *loadedVideo
	turns      []Turn
	lastActive time.Time
	closed     bool
}

// New creates an empty session. history may be nil.
func New(id string, p *Pipeline, history *HistoryStore) *Session {
	return &Session{ID: id, pipeline: p, history: history, lastActive: time.Now()}
}

// LoadVideo fetches, splits and indexes a video, then swaps it in as the current one and
// starts a fresh conversation. On failure the previous video stays loaded and the error is
// kept as the session's last error.
func (s *Session) LoadVideo(ctx context.Context, id sources.VideoID) (LoadResult, error) {
	if !sources.IsValidVideoID(string(id)) {
		return LoadResult{}, fmt.Errorf("%w: %q", sources.ErrInvalidVideoID, id)
	}
	s.run.Lock()
	defer s.run.Unlock()
	if s.isClosed() {
		return LoadResult{}, ErrSessionClosed
	}

	s.setState(Fetching)
	var v *loadedVideo
	err := engine.TrackOperation(ctx, "load_video", func(ctx context.Context) error {
		var err error
		v, err = s.prepare(ctx, id)
		return err
	})
	if err != nil {
		s.fail(err)
		slog.Warn("session: load failed", slog.String("session", s.ID),
			slog.String("video", string(id)), slog.Any("error", err))
		return LoadResult{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		closeIndex(v.index)
		slog.Info("session: ended during load, dropping video", slog.String("session", s.ID),
			slog.String("video", string(id)))
		return LoadResult{}, ErrSessionClosed
	}
	old := s.video
	s.video = v
	s.turns = nil
	s.state = Indexed
	s.lastErr = nil
	s.lastActive = time.Now()
	s.mu.Unlock()

	if old != nil {
		closeIndex(old.index)
	}
	if s.history != nil {
		if err := s.history.Clear(ctx, s.ID); err != nil {
			slog.Warn("session: clear history", slog.String("session", s.ID), slog.Any("error", err))
		}
	}
	engine.IncrVideosLoaded()
	slog.Info("session: video loaded", slog.String("session", s.ID), slog.String("video", string(id)),
		slog.Int("chunks", v.chunks.Len()), slog.String("method", v.meta.Method))

	return LoadResult{VideoID: id, ChunkCount: v.chunks.Len(), Metadata: v.meta}, nil
}

func (s *Session) prepare(ctx context.Context, id sources.VideoID) (*loadedVideo, error) {
	t, err := s.pipeline.Source.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	set := rag.ChunkSet{VideoID: id, Chunks: s.pipeline.Splitter.Split(t)}
	if set.Len() == 0 {
		return nil, fmt.Errorf("%w: transcript for %s has no text", sources.ErrNoCaptionsAvailable, id)
	}
	idx, err := s.pipeline.Ranker.Build(ctx, set)
	if err != nil {
		return nil, err
	}
	return &loadedVideo{meta: t.Metadata, text: t.Text(), chunks: set, index: idx}, nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if s.video != nil {
		s.state = Indexed
	} else {
		s.state = NoVideo
	}
}

// begin marks the session as answering and returns the current video, or nil when none is loaded.
func (s *Session) begin() *loadedVideo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	if s.video == nil {
		return nil
	}
	s.state = Answering
	return s.video
}

// Ask answers question from the loaded video and records the turn.
// It always returns a displayable string.
func (s *Session) Ask(ctx context.Context, question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return MsgEmptyQuestion
	}
	s.run.Lock()
	defer s.run.Unlock()

	v := s.begin()
	if v == nil {
		return MsgNoVideo
	}
	var answer string
	_ = engine.TrackOperation(ctx, "ask", func(ctx context.Context) error {
		chunks := v.index.TopK(ctx, question, s.pipeline.TopK)
		answer = s.pipeline.Answerer.Answer(ctx, question, chunks)
		return nil
	})
	slog.Debug("session: answered", slog.String("session", s.ID),
		slog.String("question", engine.TruncateAtWord(question, 80)))

	turn := Turn{VideoID: v.chunks.VideoID, Question: question, Answer: answer, At: time.Now()}
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.turns = append(s.turns, turn)
		s.state = Indexed
	}
	s.mu.Unlock()

	if s.history != nil && !closed {
		if err := s.history.Append(ctx, s.ID, turn); err != nil {
			slog.Warn("session: persist turn", slog.String("session", s.ID), slog.Any("error", err))
		}
	}
	engine.IncrQuestionsAnswered()
	return answer
}

// Summarize outlines the loaded video. The summary is not added to the conversation.
func (s *Session) Summarize(ctx context.Context) string {
	s.run.Lock()
	defer s.run.Unlock()

	v := s.begin()
	if v == nil {
		return MsgNoVideo
	}
	out := s.pipeline.Answerer.Summarize(ctx, v.chunks.Chunks)
	s.setState(Indexed)
	return out
}

// ClearConversation empties the conversation log. The loaded video is kept.
func (s *Session) ClearConversation(ctx context.Context) {
	s.mu.Lock()
	s.turns = nil
	s.lastActive = time.Now()
	s.mu.Unlock()

	if s.history != nil {
		if err := s.history.Clear(ctx, s.ID); err != nil {
			slog.Warn("session: clear history", slog.String("session", s.ID), slog.Any("error", err))
		}
	}
}

// History returns a copy of the conversation log, oldest first.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

// State reports the current state and the error of the last failed load, if any.
func (s *Session) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.lastErr
}

// Video returns the loaded video, if any.
func (s *Session) Video() (LoadResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.video == nil {
		return LoadResult{}, false
	}
	return LoadResult{VideoID: s.video.chunks.VideoID, ChunkCount: s.video.chunks.Len(), Metadata: s.video.meta}, true
}

// Stats reports transcript and conversation analytics.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{State: s.state.String(), Questions: len(s.turns)}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if v := s.video; v != nil {
		st.VideoID = v.chunks.VideoID
		st.Words = engine.CountWords(v.text)
		st.Characters = utf8.RuneCountInString(v.text)
		st.Chunks = v.chunks.Len()
		if st.Chunks > 0 {
			st.AvgWordsPerChunk = st.Words / st.Chunks
		}
	}
	if n := len(s.turns); n > 0 {
		total := 0
		for _, t := range s.turns {
			total += utf8.RuneCountInString(t.Answer)
		}
		st.AvgAnswerLength = total / n
	}
	return st
}

// LastActive returns when the session last ran an operation.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Close drops the loaded video and releases its index. It does not wait for a running
// stage: a load that finishes afterwards releases its own index and reports ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	v := s.video
	s.video = nil
	s.turns = nil
	s.state = NoVideo
	s.mu.Unlock()
	if v != nil {
		closeIndex(v.index)
	}
}

func closeIndex(idx rag.Index) {
	c, ok := idx.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		slog.Debug("session: close index", slog.Any("error", err))
	}
}
