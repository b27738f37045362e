package tubeserver

import "github.com/anatolykoptev/go_tube/internal/engine/sources"

// VideoResolveInput is the input for video_resolve.
type VideoResolveInput struct {
	Input string `json:"input" jsonschema:"YouTube URL (watch, youtu.be, shorts, embed, live) or 11-character video id"`
}

// VideoResolveOutput is the output for video_resolve.
type VideoResolveOutput struct {
	Valid   bool   `json:"valid"`
	VideoID string `json:"video_id,omitempty"`
	URL     string `json:"url,omitempty"`
}

// VideoLoadInput is the input for video_load.
type VideoLoadInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"Existing session id. Leave empty to start a new session"`
	Input     string `json:"input" jsonschema:"YouTube URL or video id to load"`
}

// VideoLoadOutput is the output for video_load.
type VideoLoadOutput struct {
	SessionID  string           `json:"session_id"`
	VideoID    string           `json:"video_id"`
	ChunkCount int              `json:"chunk_count"`
	Metadata   sources.Metadata `json:"metadata"`
	Info       string           `json:"info"`
}

// SessionInput identifies a session for tools that take nothing else.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"Session id returned by video_load"`
}

// VideoAskInput is the input for video_ask.
type VideoAskInput struct {
	SessionID string `json:"session_id" jsonschema:"Session id returned by video_load"`
	Question  string `json:"question" jsonschema:"Question about the loaded video"`
}

// AnswerOutput carries an answer or summary.
type AnswerOutput struct {
	SessionID string `json:"session_id"`
	VideoID   string `json:"video_id,omitempty"`
	Answer    string `json:"answer"`
}

// MessageOutput is a plain acknowledgement.
type MessageOutput struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// TurnOutput is one conversation turn.
type TurnOutput struct {
	VideoID  string `json:"video_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	At       string `json:"at"`
}

// HistoryOutput is the output for conversation_history.
type HistoryOutput struct {
	SessionID string       `json:"session_id"`
	Turns     []TurnOutput `json:"turns"`
	Total     int          `json:"total"`
}

// StatsOutput is the output for video_stats.
type StatsOutput struct {
	SessionID        string `json:"session_id"`
	VideoID          string `json:"video_id,omitempty"`
	State            string `json:"state"`
	Words            int    `json:"words"`
	Characters       int    `json:"characters"`
	Chunks           int    `json:"chunks"`
	AvgWordsPerChunk int    `json:"avg_words_per_chunk"`
	Questions        int    `json:"questions"`
	AvgAnswerLength  int    `json:"avg_answer_length"`
	LastError        string `json:"last_error,omitempty"`
}
