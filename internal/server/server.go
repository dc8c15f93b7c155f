package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"foneai-widget/internal/app"
	"foneai-widget/internal/chat"
	"foneai-widget/internal/types"
)

//go:embed static
var staticFiles embed.FS

type Server struct {
	router   *chi.Mux
	app      *app.App
	sessions *sessions
	logger   *zap.Logger
}

func NewServer(a *app.App) *Server {
	r := chi.NewRouter()
	logger := a.Logger.Named("server")

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{a.Config.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", SessionHeader},
		ExposedHeaders:   []string{SessionHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{router: r, app: a, logger: logger}
	s.sessions = &sessions{
		entries:       make(map[string]*sessionEntry),
		ttl:           a.Config.SessionTTL,
		now:           time.Now,
		logger:        logger,
		newController: func(session chat.Session) *chat.Controller { return a.NewController(session) },
		resumable:     s.resumable,
		onEvict:       s.evicted,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/widget", s.handleWidget)
	s.router.Post("/api/chat", s.handleChat)
	s.router.Post("/api/chat/stream", s.handleChatStream)
	s.router.Get("/api/transcript", s.handleTranscript)
	s.router.Delete("/api/session", s.handleDeleteSession)

	static, _ := fs.Sub(staticFiles, "static")
	s.router.Handle("/*", http.FileServer(http.FS(static)))
}

func (s *Server) Router() http.Handler { return s.router }

// Janitor evicts idle sessions until ctx is done.
func (s *Server) Janitor(ctx context.Context) { s.sessions.janitor(ctx) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if !s.app.Persistent() {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	backend := s.app.Config.TranscriptStore
	if err := s.app.Check(r.Context()); err != nil {
		s.logger.Warn("transcript store unhealthy", zap.String("store", backend), zap.Error(err))
		resp["status"] = "unavailable"
		resp[backend] = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp[backend] = "ok"
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	c := s.app.Copy
	writeJSON(w, http.StatusOK, types.WidgetConfig{
		Placeholder:       c.Placeholder,
		LoadingLabels:     c.LoadingLabels,
		LoadingIntervalMs: s.app.Config.LoadingInterval.Milliseconds(),
		RenderMode:        string(s.app.Formatter.Mode()),
		FailureText:       c.FailureText,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ctl := s.controller(w, r)

	turn, err := ctl.Submit(r.Context(), req.Question)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ChatResponse{
		SessionID: ctl.Session().ID(),
		Question:  s.view(turn.Question),
		Reply:     s.view(turn.Reply),
	})
}

type submitResult struct {
	err error
}

// handleChatStream runs one turn and writes its events as NDJSON. Rejected and
// busy submissions get the same status codes as /api/chat.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ctl := s.controller(w, r)
	sid := ctl.Session().ID()

	events := make(chan types.StreamEvent, 32)
	done := make(chan submitResult, 1)
	observer := chat.ListenerFuncs{
		State: func(st chat.State) {
			events <- types.StreamEvent{Type: types.EventState, State: st.String()}
		},
		Message: func(m chat.Message) {
			v := s.view(m)
			events <- types.StreamEvent{Type: types.EventMessage, Message: &v}
		},
		Loading: func(label string) {
			events <- types.StreamEvent{Type: types.EventLoading, Label: &label}
		},
	}
	go func() {
		_, err := ctl.Submit(r.Context(), req.Question, observer)
		done <- submitResult{err: err}
	}()

	enc := json.NewEncoder(w)
	started := false
	write := func(ev types.StreamEvent) {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		ev.SessionID = sid
		if err := enc.Encode(ev); err != nil {
			s.logger.Debug("stream write failed", zap.String("session", sid), zap.Error(err))
			return
		}
		flusher.Flush()
	}

	for {
		select {
		case ev := <-events:
			write(ev)
		case res := <-done:
			// Every observer call finished before Submit returned.
			for len(events) > 0 {
				write(<-events)
			}
			if !started {
				s.writeSubmitError(w, res.err)
				return
			}
			write(types.StreamEvent{Type: types.EventDone})
			return
		}
	}
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	ctl := s.controller(w, r)
	msgs, err := ctl.Transcript(r.Context())
	if err != nil {
		s.logger.Error("transcript read failed", zap.String("session", ctl.Session().ID()), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "transcript unavailable")
		return
	}
	views := make([]types.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, s.view(m))
	}
	writeJSON(w, http.StatusOK, types.TranscriptResponse{SessionID: ctl.Session().ID(), Messages: views})
}

// handleDeleteSession forgets the caller's session, like reloading the page.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sid := requestSessionID(r)
	if sid != "" {
		s.sessions.remove(sid)
		if err := s.app.Forget(r.Context(), sid); err != nil {
			s.logger.Warn("failed to forget session", zap.String("session", sid), zap.Error(err))
		}
	}
	ClearSessionCookie(w, s.app.Config.CookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

// controller resolves the caller's session and echoes its id as cookie and header.
func (s *Server) controller(w http.ResponseWriter, r *http.Request) *chat.Controller {
	ctl := s.sessions.acquire(r.Context(), requestSessionID(r))
	sid := ctl.Session().ID()
	SetSessionCookie(w, sid, s.app.Config.SessionTTL, s.app.Config.CookieSecure)
	w.Header().Set(SessionHeader, sid)
	return ctl
}

func (s *Server) resumable(ctx context.Context, id string) bool {
	if !s.app.Persistent() {
		return false
	}
	msgs, err := s.app.Store.Messages(ctx, id)
	if err != nil {
		s.logger.Warn("cannot check stored transcript", zap.String("session", id), zap.Error(err))
		return false
	}
	return len(msgs) > 0
}

func (s *Server) evicted(id string) {
	if err := s.app.Release(context.Background(), id); err != nil {
		s.logger.Warn("failed to forget evicted session", zap.String("session", id), zap.Error(err))
	}
}

func (s *Server) view(m chat.Message) types.MessageView {
	return types.MessageView{
		Text:      m.Text,
		Role:      string(m.Role),
		HTML:      s.app.Formatter.HTML(m.Text),
		CreatedAt: m.CreatedAt.UnixMilli(),
	}
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrRejected):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, chat.ErrBusy):
		s.writeError(w, http.StatusConflict, "a question is already awaiting a reply")
	default:
		s.logger.Error("submit failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, types.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
