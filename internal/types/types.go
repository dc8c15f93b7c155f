package types

type ChatRequest struct {
	Question string `json:"question"`
}

// MessageView is a transcript entry as the widget receives it. HTML is the
// rendered body; Text is kept for clients that render themselves.
type MessageView struct {
	Text      string `json:"text"`
	Role      string `json:"role"`
	HTML      string `json:"html"`
	CreatedAt int64  `json:"createdAt"`
}

type ChatResponse struct {
	SessionID string      `json:"sessionId"`
	Question  MessageView `json:"question"`
	Reply     MessageView `json:"reply"`
}

type TranscriptResponse struct {
	SessionID string        `json:"sessionId"`
	Messages  []MessageView `json:"messages"`
}

// StreamEvent is one NDJSON line of POST /api/chat/stream.
type StreamEvent struct {
	Type      string       `json:"type"`
	SessionID string       `json:"sessionId,omitempty"`
	State     string       `json:"state,omitempty"`
	Label     *string      `json:"label,omitempty"`
	Message   *MessageView `json:"message,omitempty"`
}

const (
	EventState   = "state"
	EventLoading = "loading"
	EventMessage = "message"
	EventDone    = "done"
)

type WidgetConfig struct {
	Placeholder       string   `json:"placeholder"`
	LoadingLabels     []string `json:"loadingLabels"`
	LoadingIntervalMs int64    `json:"loadingIntervalMs"`
	RenderMode        string   `json:"renderMode"`
	// FailureText is shown when the widget cannot reach this server at all.
	FailureText string `json:"failureText"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
