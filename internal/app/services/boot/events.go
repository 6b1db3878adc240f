package boot

import "github.com/R3E-Network/session_gateway/internal/app/domain/session"

// Transition is the structured event emitted at every orchestrator state
// change. Subscribers receive it synchronously, outside the orchestrator's
// lock.
type Transition struct {
	Previous State        `json:"previous"`
	Event    string       `json:"event"`
	Next     State        `json:"next"`
	Decision session.Step `json:"decision,omitempty"`
}

// Subscribe registers a transition listener. Listeners must be fast; they run
// on the calling goroutine.
func (o *Orchestrator) Subscribe(fn func(Transition)) {
	if fn == nil {
		return
	}
	o.subMu.Lock()
	defer o.subMu.Unlock()
	o.subscribers = append(o.subscribers, fn)
}

// setStateLocked updates the state and builds the transition event. Callers
// must hold o.mu and emit the returned transition after releasing it.
func (o *Orchestrator) setStateLocked(event string, next State, decision session.Step) Transition {
	t := Transition{Previous: o.state, Event: event, Next: next, Decision: decision}
	o.state = next
	return t
}

func (o *Orchestrator) emit(t Transition) {
	o.subMu.Lock()
	subscribers := make([]func(Transition), len(o.subscribers))
	copy(subscribers, o.subscribers)
	o.subMu.Unlock()

	for _, fn := range subscribers {
		fn(t)
	}

	o.log.WithFields(map[string]interface{}{
		"previous": t.Previous.String(),
		"event":    t.Event,
		"next":     t.Next.String(),
		"decision": string(t.Decision),
	}).Debug("boot transition")
}
