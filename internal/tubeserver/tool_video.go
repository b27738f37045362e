package tubeserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/anatolykoptev/go_tube/internal/toolutil"
)

func registerVideoResolve(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_resolve",
		Description: "Extract the 11-character YouTube video id from a URL (watch, youtu.be, shorts, embed, live) or validate a bare id. Returns valid=false for anything unrecognised.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, videoResolve)
}

func videoResolve(_ context.Context, _ *mcp.CallToolRequest, input VideoResolveInput) (*mcp.CallToolResult, VideoResolveOutput, error) {
	id, ok := sources.ResolveVideoID(input.Input)
	if !ok {
		return nil, VideoResolveOutput{}, nil
	}
	return nil, VideoResolveOutput{Valid: true, VideoID: string(id), URL: toolutil.WatchURL(id)}, nil
}

func registerVideoLoad(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_load",
		Description: "Fetch a YouTube video's transcript (manual captions, then auto-generated, then translated), split it into chunks and index it for questions. Starts a new session when session_id is empty. Loading replaces the session's previous video and clears its conversation.",
	}, t.videoLoad)
}

func (t *tools) videoLoad(ctx context.Context, _ *mcp.CallToolRequest, input VideoLoadInput) (*mcp.CallToolResult, VideoLoadOutput, error) {
	id, err := toolutil.ResolveVideo(input.Input)
	if err != nil {
		return nil, VideoLoadOutput{}, toolutil.Explain(err)
	}
	s, err := t.sessions.GetOrCreate(input.SessionID)
	if err != nil {
		return nil, VideoLoadOutput{}, toolutil.Explain(err)
	}

	res, err := s.LoadVideo(ctx, id)
	if err != nil {
		if input.SessionID == "" {
			_ = t.sessions.End(ctx, s.ID)
		}
		return nil, VideoLoadOutput{}, toolutil.Explain(err)
	}
	return nil, VideoLoadOutput{
		SessionID:  s.ID,
		VideoID:    string(res.VideoID),
		ChunkCount: res.ChunkCount,
		Metadata:   res.Metadata,
		Info:       toolutil.FormatMetadata(res.Metadata),
	}, nil
}

func registerVideoAsk(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_ask",
		Description: "Ask a question about the session's loaded video. The most relevant transcript chunks are retrieved and the answer is generated from them only. The turn is added to the conversation history.",
	}, t.videoAsk)
}

func (t *tools) videoAsk(ctx context.Context, _ *mcp.CallToolRequest, input VideoAskInput) (*mcp.CallToolResult, AnswerOutput, error) {
	if input.Question == "" {
		return nil, AnswerOutput{}, errors.New("question is required")
	}
	s, err := t.sessions.Get(input.SessionID)
	if err != nil {
		return nil, AnswerOutput{}, toolutil.Explain(err)
	}
	answer := s.Ask(ctx, input.Question)
	out := AnswerOutput{SessionID: s.ID, Answer: answer}
	if v, ok := s.Video(); ok {
		out.VideoID = string(v.VideoID)
	}
	return nil, out, nil
}

func registerVideoSummarize(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_summarize",
		Description: "Summarize the session's loaded video from the start of its transcript: main topic, key points, people or entities mentioned, conclusions.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.videoSummarize)
}

func (t *tools) videoSummarize(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, AnswerOutput, error) {
	s, err := t.sessions.Get(input.SessionID)
	if err != nil {
		return nil, AnswerOutput{}, toolutil.Explain(err)
	}
	out := AnswerOutput{SessionID: s.ID, Answer: s.Summarize(ctx)}
	if v, ok := s.Video(); ok {
		out.VideoID = string(v.VideoID)
	}
	return nil, out, nil
}

func registerVideoStats(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_stats",
		Description: "Transcript and conversation statistics for a session: word, character and chunk counts, average words per chunk, questions asked, average answer length, last load error.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.videoStats)
}

func (t *tools) videoStats(_ context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, StatsOutput, error) {
	s, err := t.sessions.Get(input.SessionID)
	if err != nil {
		return nil, StatsOutput{}, toolutil.Explain(err)
	}
	st := s.Stats()
	slog.Debug("video_stats", slog.String("session", s.ID), slog.String("state", st.State))
	return nil, StatsOutput{
		SessionID:        s.ID,
		VideoID:          string(st.VideoID),
		State:            st.State,
		Words:            st.Words,
		Characters:       st.Characters,
		Chunks:           st.Chunks,
		AvgWordsPerChunk: st.AvgWordsPerChunk,
		Questions:        st.Questions,
		AvgAnswerLength:  st.AvgAnswerLength,
		LastError:        st.LastError,
	}, nil
}
