// Package trace defines the recorded event log: sessions, typed events and
// their metadata, plus the YAML and JSON document codecs.
package trace

// SchemaVersion is written into every new session document. Version 1
// documents carry no schema_version field and no patch_format.
const SchemaVersion = 2

// Session is an ordered event log plus the context it was recorded in.
// Events are only ever appended; the index of an event is its replay
// position.
type Session struct {
	ID             string
	Model          string
	CodebaseHash   string
	InitialContext string
	CreatedAt      string
	SchemaVersion  int
	// PatchFormat names the diff algorithm replay uses for edit events.
	// Empty means the legacy algorithm.
	PatchFormat string

	events []Event
}

// Append adds e to the tail of the log.
func (s *Session) Append(e Event) {
	e.Metadata = e.Metadata.Clone()
	s.events = append(s.events, e)
}

func (s *Session) Len() int { return len(s.events) }

// Event returns the event at index i. It panics if i is out of range.
func (s *Session) Event(i int) Event {
	e := s.events[i]
	e.Metadata = e.Metadata.Clone()
	return e
}

// Events returns a copy of the log.
func (s *Session) Events() []Event {
	out := make([]Event, len(s.events))
	for i := range s.events {
		out[i] = s.Event(i)
	}
	return out
}

// Equal compares session fields and every event.
func (s *Session) Equal(o *Session) bool {
	if s.ID != o.ID || s.Model != o.Model || s.CodebaseHash != o.CodebaseHash ||
		s.InitialContext != o.InitialContext || s.CreatedAt != o.CreatedAt ||
		s.SchemaVersion != o.SchemaVersion || s.PatchFormat != o.PatchFormat {
		return false
	}
	if len(s.events) != len(o.events) {
		return false
	}
	for i := range s.events {
		if !s.events[i].Equal(o.events[i]) {
			return false
		}
	}
	return true
}
