// Package tubeserver exposes video question answering as MCP tools.
package tubeserver

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_tube/internal/engine/session"
)

// ToolCount is the number of tools RegisterTools adds.
const ToolCount = 8

type tools struct {
	sessions *session.Manager
}

// RegisterTools registers the video and conversation tools on server.
// Every tool except video_resolve works on a session from sessions.
func RegisterTools(server *mcp.Server, sessions *session.Manager) {
	t := &tools{sessions: sessions}
	registerVideoResolve(server)
	registerVideoLoad(server, t)
	registerVideoAsk(server, t)
	registerVideoSummarize(server, t)
	registerVideoStats(server, t)
	registerConversationClear(server, t)
	registerConversationHistory(server, t)
	registerSessionEnd(server, t)
}
