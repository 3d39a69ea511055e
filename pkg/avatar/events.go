package avatar

import "sync"

// Event is a connection lifecycle signal. Events carry no payload.
type Event int

const (
	// EventConnected fires when the data channel opens.
	EventConnected Event = iota + 1
	// EventDisconnected fires when the data channel closes.
	EventDisconnected
	// EventStarted fires when the remote side reports that playback started.
	EventStarted
	// EventFailed fires when negotiation or the session handshake fails, or
	// when the remote side rejects audio because the session is not initialized.
	EventFailed
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventStarted:
		return "started"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type observers struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(Event)
}

func (o *observers) add(fn func(Event)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fns == nil {
		o.fns = make(map[int]func(Event))
	}
	id := o.next
	o.next++
	o.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.fns, id)
			o.mu.Unlock()
		})
	}
}

// snapshot returns the observers in subscription order.
func (o *observers) snapshot() []func(Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	fns := make([]func(Event), 0, len(o.fns))
	for id := 0; id < o.next; id++ {
		if fn, ok := o.fns[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}
