package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"foneai-widget/internal/webhook"
)

var (
	// ErrRejected means the input was empty or the placeholder prompt. Nothing happened.
	ErrRejected = errors.New("chat: nothing to submit")
	// ErrBusy means a turn is already awaiting its response.
	ErrBusy = errors.New("chat: a question is already in flight")
)

// DefaultLoadingInterval separates consecutive loading labels.
const DefaultLoadingInterval = time.Second

// Exchanger sends one question and returns the raw response body.
type Exchanger interface {
	Exchange(ctx context.Context, p webhook.Payload) ([]byte, error)
}

// Turn is the outcome of one accepted submission.
type Turn struct {
	Question Message
	Reply    Message
	// Answer is the normalized response; zero when the exchange failed.
	Answer webhook.Answer
	// Err is the exchange failure behind an error reply.
	Err error
}

// Option configures a Controller.
type Option func(*Controller)

func WithCopy(c Copy) Option { return func(ctl *Controller) { ctl.copy = c } }

func WithLoadingInterval(d time.Duration) Option {
	return func(ctl *Controller) {
		if d > 0 {
			ctl.interval = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(ctl *Controller) {
		if l != nil {
			ctl.logger = l
		}
	}
}

func WithListener(l Listener) Option {
	return func(ctl *Controller) { ctl.listeners = append(ctl.listeners, l) }
}

// Controller runs the turns of one conversation: input check, dispatch,
// normalization and transcript updates. Only one turn may be in flight.
type Controller struct {
	session   Session
	exchanger Exchanger
	store     Store
	copy      Copy
	interval  time.Duration
	logger    *zap.Logger
	listeners listeners

	mu    sync.Mutex
	state State
	now   func() time.Time
}

func NewController(session Session, exchanger Exchanger, store Store, opts ...Option) *Controller {
	c := &Controller{
		session:   session,
		exchanger: exchanger,
		store:     store,
		copy:      DefaultCopy(),
		interval:  DefaultLoadingInterval,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("session", session.ID()))
	return c
}

func (c *Controller) Session() Session { return c.session }
func (c *Controller) Copy() Copy       { return c.copy }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns the conversation so far, oldest first.
func (c *Controller) Transcript(ctx context.Context) ([]Message, error) {
	return c.store.Messages(ctx, c.session.ID())
}

// Submit runs one turn for input. Observers receive this turn's events in addition
// to the controller's listeners. It returns ErrRejected for empty or placeholder
// input and ErrBusy while another turn is in flight; in both cases nothing is
// appended and nothing is sent. Otherwise exactly one user message and exactly one
// ai or error message are appended before Submit returns.
func (c *Controller) Submit(ctx context.Context, input string, observers ...Listener) (*Turn, error) {
	question := strings.TrimSpace(input)
	if question == "" || question == c.copy.Placeholder {
		return nil, ErrRejected
	}

	c.mu.Lock()
	if c.state == StateAwaiting {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.state = StateAwaiting
	c.mu.Unlock()

	ls := append(append(listeners{}, c.listeners...), observers...)
	ls.state(StateAwaiting)

	turn := &Turn{Question: c.append(ctx, ls, question, RoleUser)}
	ind := startIndicator(c.copy.LoadingLabels, c.interval, ls.loading)
	defer func() {
		ind.stop()
		ls.loading("")
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		ls.state(StateIdle)
	}()

	body, err := c.exchanger.Exchange(ctx, webhook.Payload{Question: question, SessionID: c.session.ID()})
	ind.stop()
	if err != nil {
		c.logger.Error("webhook exchange failed", zap.Error(err))
		turn.Err = err
		turn.Reply = c.append(ctx, ls, c.copy.FailureText, RoleError)
		return turn, nil
	}

	turn.Answer = webhook.Normalize(body)
	if turn.Answer.Kind != webhook.KindRecognizedText {
		c.logger.Info("response had no answer field", zap.Stringer("kind", turn.Answer.Kind))
	}
	turn.Reply = c.append(ctx, ls, turn.Answer.Display(c.copy.RemediationText), RoleAI)
	return turn, nil
}

func (c *Controller) append(ctx context.Context, ls listeners, text string, role Role) Message {
	msg := Message{Text: text, Role: role, CreatedAt: c.now()}
	// The transcript write must land even if the request context was cancelled.
	if err := c.store.Append(context.WithoutCancel(ctx), c.session.ID(), msg); err != nil {
		c.logger.Error("transcript append failed", zap.Error(err), zap.String("role", string(role)))
	}
	ls.message(msg)
	return msg
}
