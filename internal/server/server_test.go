package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foneai-widget/internal/app"
	"foneai-widget/internal/chat"
	"foneai-widget/internal/config"
	"foneai-widget/internal/db"
	"foneai-widget/internal/types"
)

func newTestServer(t *testing.T, hook http.HandlerFunc, opts ...func(*config.Config)) *Server {
	t.Helper()
	responder := httptest.NewServer(hook)
	t.Cleanup(responder.Close)

	cfg := config.Config{
		AllowedOrigin:   "*",
		Responder:       config.ResponderWebhook,
		WebhookURL:      responder.URL,
		RenderMode:      "breaks",
		TranscriptStore: config.StoreMemory,
		LoadingInterval: time.Second,
		SessionTTL:      time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	a, err := app.Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return NewServer(a)
}

func withDatabase(c *config.Config) {
	c.TranscriptStore = config.StoreDatabase
	c.DBDriver = db.DriverSQLite
	c.DatabaseURL = ":memory:"
}

func answer(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(text))
	}
}

func do(s *Server, method, path, body, sid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: sid})
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c.Value
		}
	}
	t.Fatalf("no %s cookie set", CookieName)
	return ""
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, answer("ok"))
	rec := do(s, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthReportsDatabase(t *testing.T) {
	s := newTestServer(t, answer("ok"), withDatabase)
	rec := do(s, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, rec.Body.String())

	require.NoError(t, s.app.Close())
	rec = do(s, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","database":"unreachable"}`, rec.Body.String())
}

func TestWidgetConfig(t *testing.T) {
	s := newTestServer(t, answer("ok"))
	rec := do(s, http.MethodGet, "/api/widget", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg types.WidgetConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "ASK ME ANYTHING F1 RELATED", cfg.Placeholder)
	assert.Equal(t, []string{"ICE BRAKING", "HARVESTING", "DEPLOYING"}, cfg.LoadingLabels)
	assert.Equal(t, int64(1000), cfg.LoadingIntervalMs)
	assert.Equal(t, "breaks", cfg.RenderMode)
	assert.Equal(t, chat.DefaultCopy().FailureText, cfg.FailureText)
}

func TestChatTurn(t *testing.T) {
	var questions []string
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Question  string `json:"question"`
			SessionID string `json:"sessionId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&p)
		questions = append(questions, p.SessionID+"|"+p.Question)
		_, _ = w.Write([]byte(`{"response":"Monza\nTemple of Speed"}`))
	})

	rec := do(s, http.MethodPost, "/api/chat", `{"question":"  Fastest track?  "}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	sid := sessionCookie(t, rec)
	assert.Equal(t, sid, resp.SessionID)
	assert.Equal(t, sid, rec.Header().Get(SessionHeader))
	assert.True(t, chat.ValidSessionID(sid))
	assert.Equal(t, "Fastest track?", resp.Question.Text)
	assert.Equal(t, "user", resp.Question.Role)
	assert.Equal(t, "ai", resp.Reply.Role)
	assert.Equal(t, "<p>Monza<br>Temple of Speed</p>", resp.Reply.HTML)

	rec = do(s, http.MethodPost, "/api/chat", `{"question":"Longest?"}`, sid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{sid + "|Fastest track?", sid + "|Longest?"}, questions)
	assert.Equal(t, 1, s.sessions.len())
}

func TestChatRejected(t *testing.T) {
	calls := 0
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	for _, body := range []string{`{"question":""}`, `{"question":"   "}`, `{"question":"ASK ME ANYTHING F1 RELATED"}`} {
		rec := do(s, http.MethodPost, "/api/chat", body, "")
		assert.Equal(t, http.StatusNoContent, rec.Code, body)
	}
	assert.Zero(t, calls)
}

func TestChatBadJSON(t *testing.T) {
	s := newTestServer(t, answer("ok"))
	rec := do(s, http.MethodPost, "/api/chat", `{question`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid JSON body"}`, rec.Body.String())
}

func TestChatFailureIsAnErrorReply(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	rec := do(s, http.MethodPost, "/api/chat", `{"question":"Who?"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Reply.Role)
	assert.Equal(t, chat.DefaultCopy().FailureText, resp.Reply.Text)
}

func TestChatBusy(t *testing.T) {
	release := make(chan struct{})
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("done"))
	})
	sid := sessionCookie(t, do(s, http.MethodGet, "/api/transcript", "", ""))

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- do(s, http.MethodPost, "/api/chat", `{"question":"one"}`, sid) }()

	require.Eventually(t, func() bool {
		return s.sessions.acquire(context.Background(), sid).State() == chat.StateAwaiting
	}, 2*time.Second, 5*time.Millisecond)

	rec := do(s, http.MethodPost, "/api/chat", `{"question":"two"}`, sid)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	assert.Equal(t, http.StatusOK, (<-first).Code)

	rec = do(s, http.MethodGet, "/api/transcript", "", sid)
	var tr types.TranscriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, "one", tr.Messages[0].Text)
}

func TestTranscript(t *testing.T) {
	s := newTestServer(t, answer(`{"output":"<b>Box</b> now"}`))
	rec := do(s, http.MethodPost, "/api/chat", `{"question":"Pit?"}`, "")
	sid := sessionCookie(t, rec)

	rec = do(s, http.MethodGet, "/api/transcript", "", sid)
	require.Equal(t, http.StatusOK, rec.Code)
	var tr types.TranscriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, sid, tr.SessionID)
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, "<b>Box</b> now", tr.Messages[1].Text)
	assert.Equal(t, "<p>&lt;b&gt;Box&lt;/b&gt; now</p>", tr.Messages[1].HTML)
}

func TestUnknownSessionGetsFreshID(t *testing.T) {
	s := newTestServer(t, answer("ok"))
	for _, sid := range []string{"sess-abcdefghi-zzzz", "attacker-chosen"} {
		rec := do(s, http.MethodGet, "/api/transcript", "", sid)
		got := sessionCookie(t, rec)
		assert.NotEqual(t, sid, got)
		assert.True(t, chat.ValidSessionID(got))
	}
}

func TestHeaderSessionFallback(t *testing.T) {
	s := newTestServer(t, answer("ok"))
	sid := sessionCookie(t, do(s, http.MethodGet, "/api/transcript", "", ""))

	req := httptest.NewRequest(http.MethodGet, "/api/transcript", nil)
	req.Header.Set(SessionHeader, sid)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, sid, rec.Header().Get(SessionHeader))
}

func readEvents(t *testing.T, body string) []types.StreamEvent {
	t.Helper()
	var out []types.StreamEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var ev types.StreamEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		out = append(out, ev)
	}
	return out
}

func TestChatStream(t *testing.T) {
	s := newTestServer(t, answer(`{"text":"Hamilton"}`))
	rec := do(s, http.MethodPost, "/api/chat/stream", `{"question":"Most wins?"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	sid := sessionCookie(t, rec)

	events := readEvents(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, types.EventState, events[0].Type)
	assert.Equal(t, "awaiting", events[0].State)
	assert.Equal(t, types.EventDone, events[len(events)-1].Type)

	var messages []types.MessageView
	var labels []string
	for _, ev := range events {
		assert.Equal(t, sid, ev.SessionID)
		switch ev.Type {
		case types.EventMessage:
			messages = append(messages, *ev.Message)
		case types.EventLoading:
			labels = append(labels, *ev.Label)
		}
	}
	require.Len(t, messages, 2)
	assert.Equal(t, "Most wins?", messages[0].Text)
	assert.Equal(t, "Hamilton", messages[1].Text)
	require.NotEmpty(t, labels)
	assert.Equal(t, "ICE BRAKING", labels[0])
	assert.Equal(t, "", labels[len(labels)-1])

	idle := events[len(events)-2]
	assert.Equal(t, types.EventState, idle.Type)
	assert.Equal(t, "idle", idle.State)
}

func TestChatStreamRejected(t *testing.T) {
	s := newTestServer(t, answer("ok"))
	rec := do(s, http.MethodPost, "/api/chat/stream", `{"question":" "}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestDeleteSession(t *testing.T) {
	s := newTestServer(t, answer("ok"))
	sid := sessionCookie(t, do(s, http.MethodPost, "/api/chat", `{"question":"hi"}`, ""))
	require.Equal(t, 1, s.sessions.len())

	rec := do(s, http.MethodDelete, "/api/session", "", sid)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
	assert.Equal(t, 0, s.sessions.len())

	msgs, err := s.app.Store.Messages(context.Background(), sid)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	s := newTestServer(t, answer("ok"))
	now := time.Now()
	s.sessions.now = func() time.Time { return now }

	sid := sessionCookie(t, do(s, http.MethodPost, "/api/chat", `{"question":"hi"}`, ""))
	assert.Empty(t, s.sessions.sweep())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, []string{sid}, s.sessions.sweep())
	assert.Equal(t, 0, s.sessions.len())

	msgs, err := s.app.Store.Messages(context.Background(), sid)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSweepForgetsResponderHistory(t *testing.T) {
	var prompts []int
	completions := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompts = append(prompts, len(req.Messages))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Box box"}}},
		})
	}))
	t.Cleanup(completions.Close)

	s := newTestServer(t, answer("unused"), withDatabase, func(c *config.Config) {
		c.Responder = config.ResponderOpenAI
		c.OpenAIAPIKey = "test-key"
		c.OpenAIBaseURL = completions.URL + "/v1"
		c.ResponderPromptFile = filepath.Join("..", "..", "prompts", "responder.yaml")
	})
	now := time.Now()
	s.sessions.now = func() time.Time { return now }

	sid := sessionCookie(t, do(s, http.MethodPost, "/api/chat", `{"question":"Fastest lap?"}`, ""))
	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/chat", `{"question":"Who set it?"}`, sid).Code)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, []string{sid}, s.sessions.sweep())

	// The stored transcript survives, so the same id resumes without the
	// evicted prompt history.
	rec := do(s, http.MethodPost, "/api/chat", `{"question":"Which year?"}`, sid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sid, sessionCookie(t, rec))
	assert.Equal(t, []int{2, 4, 2}, prompts)

	msgs, err := s.app.Store.Messages(context.Background(), sid)
	require.NoError(t, err)
	assert.Len(t, msgs, 6)
}

func TestStaticWidgetPage(t *testing.T) {
	s := newTestServer(t, answer("ok"))
	rec := do(s, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="chat-messages"`)

	rec = do(s, http.MethodGet, "/widget.js", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	// unreachable backend and unexpected statuses end in an error bubble
	assert.Contains(t, rec.Body.String(), `appendText("error", failureText)`)
}
