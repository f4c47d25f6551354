package types

// Event is the structured record of a savings-side state change: a type tag
// such as "savings.deposit" plus flat string attributes. Engines construct
// events through NewEvent so the attribute map is always non-nil and private
// to the event.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// NewEvent builds an event carrying a copy of the supplied attributes. The
// caller may keep mutating its map afterwards without affecting the event.
func NewEvent(eventType string, attrs map[string]string) *Event {
	copied := make(map[string]string, len(attrs))
	for key, value := range attrs {
		copied[key] = value
	}
	return &Event{Type: eventType, Attributes: copied}
}

// Attribute returns the named attribute, or the empty string when absent.
func (e *Event) Attribute(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
