package tubeserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_tube/internal/toolutil"
)

func registerConversationClear(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "conversation_clear",
		Description: "Clear the session's conversation history. The loaded video and its index are kept.",
	}, t.conversationClear)
}

func (t *tools) conversationClear(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, MessageOutput, error) {
	s, err := t.sessions.Get(input.SessionID)
	if err != nil {
		return nil, MessageOutput{}, toolutil.Explain(err)
	}
	s.ClearConversation(ctx)
	return nil, MessageOutput{SessionID: s.ID, Message: "Conversation cleared."}, nil
}

func registerConversationHistory(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "conversation_history",
		Description: "List the questions and answers of the session's current conversation, oldest first.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.conversationHistory)
}

func (t *tools) conversationHistory(_ context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, HistoryOutput, error) {
	s, err := t.sessions.Get(input.SessionID)
	if err != nil {
		return nil, HistoryOutput{}, toolutil.Explain(err)
	}
	turns := s.History()
	out := HistoryOutput{SessionID: s.ID, Turns: make([]TurnOutput, 0, len(turns)), Total: len(turns)}
	for _, turn := range turns {
		out.Turns = append(out.Turns, TurnOutput{
			VideoID:  string(turn.VideoID),
			Question: turn.Question,
			Answer:   turn.Answer,
			At:       turn.At.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

func registerSessionEnd(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "session_end",
		Description: "End a session: drops its video, index and stored conversation history.",
	}, t.sessionEnd)
}

func (t *tools) sessionEnd(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, MessageOutput, error) {
	if err := t.sessions.End(ctx, input.SessionID); err != nil {
		return nil, MessageOutput{}, toolutil.Explain(err)
	}
	return nil, MessageOutput{SessionID: input.SessionID, Message: "Session ended."}, nil
}
