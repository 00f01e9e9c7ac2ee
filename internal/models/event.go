package models

// EventKind discriminates normalized stream events.
type EventKind int

const (
	EventNone EventKind = iota
	EventID
	EventText
	EventImage
)

// StreamEvent is the normalized record the proxy emits: exactly one of the
// fields is set per event. Text is an incremental delta, never cumulative.
type StreamEvent struct {
	ID    string `json:"id,omitempty"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Kind reports which variant the event is. Consumers switch on this instead
// of probing individual fields.
func (e StreamEvent) Kind() EventKind {
	switch {
	case e.Text != "":
		return EventText
	case e.Image != "":
		return EventImage
	case e.ID != "":
		return EventID
	}
	return EventNone
}
