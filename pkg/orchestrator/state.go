package orchestrator

import "sync"

// User-facing error messages.
const (
	MsgConnectFailed  = "Failed to connect to Simli. Please try again."
	MsgNoResponse     = "No response from agent. Please try again."
	MsgGenericFailure = "An error occurred. Please try again."
	MsgTranscribe     = "Error transcribing audio. Please try again."
	MsgMicrophone     = "Error accessing microphone. Please check your permissions."
)

// State is what a front end renders.
type State struct {
	Loading    bool   `json:"loading"`
	Connecting bool   `json:"connecting"`
	Connected  bool   `json:"connected"`
	Started    bool   `json:"started"`
	Listening  bool   `json:"listening"`
	Reply      string `json:"reply,omitempty"`
	Error      string `json:"error,omitempty"`
}

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(State)
}

func (l *listeners) add(fn func(State)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[int]func(State))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) notify(s State) {
	l.mu.Lock()
	fns := make([]func(State), 0, len(l.fns))
	for id := 0; id < l.next; id++ {
		if fn, ok := l.fns[id]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
