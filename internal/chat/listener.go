package chat

// State is the controller's turn state.
type State int

const (
	StateIdle State = iota
	StateAwaiting
)

func (s State) String() string {
	if s == StateAwaiting {
		return "awaiting"
	}
	return "idle"
}

// Listener receives turn events. OnLoading may be called from a timer goroutine;
// an empty label means the indicator is hidden.
type Listener interface {
	OnState(State)
	OnMessage(Message)
	OnLoading(label string)
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	State   func(State)
	Message func(Message)
	Loading func(string)
}

func (f ListenerFuncs) OnState(s State) {
	if f.State != nil {
		f.State(s)
	}
}

func (f ListenerFuncs) OnMessage(m Message) {
	if f.Message != nil {
		f.Message(m)
	}
}

func (f ListenerFuncs) OnLoading(label string) {
	if f.Loading != nil {
		f.Loading(label)
	}
}

type listeners []Listener

func (ls listeners) state(s State) {
	for _, l := range ls {
		l.OnState(s)
	}
}

func (ls listeners) message(m Message) {
	for _, l := range ls {
		l.OnMessage(m)
	}
}

func (ls listeners) loading(label string) {
	for _, l := range ls {
		l.OnLoading(label)
	}
}
