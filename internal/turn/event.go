package turn

// Event is one envelope on the turn stream.
type Event struct {
	Type    string `json:"type"`
	Event   string `json:"event,omitempty"`
	Model   string `json:"model,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Text    string `json:"text,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	TypeMeta  = "meta"
	TypeDelta = "delta"
	TypeError = "error"

	EventStart                  = "start"
	EventDone                   = "done"
	EventMemoryQueued           = "memory_queued"
	EventMemoryDropped          = "memory_dropped"
	EventMemorySaved            = "memory_saved"
	EventMemorySkippedDuplicate = "memory_skipped_duplicate"
)

// Terminal reports whether no event may follow e.
func (e Event) Terminal() bool {
	return e.Type == TypeError || (e.Type == TypeMeta && e.Event == EventDone)
}

func startEvent(model, phase string) Event {
	return Event{Type: TypeMeta, Event: EventStart, Model: model, Phase: phase}
}

func deltaEvent(text string) Event {
	return Event{Type: TypeDelta, Text: text}
}

func metaEvent(name string) Event {
	return Event{Type: TypeMeta, Event: name}
}

func countEvent(name string, n int) Event {
	return Event{Type: TypeMeta, Event: name, Count: &n}
}

func errorEvent(msg string) Event {
	return Event{Type: TypeError, Message: msg}
}
