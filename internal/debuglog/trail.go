package debuglog

// Trail accumulates an ordered sequence of typed entries over one
// notification-processing run: free-text milestones, the raw inbound field
// map, and failure summaries. It is flushed to a sink at most at the end of
// the run, plus once mid-flow when the order cannot be loaded.

type EntryKind string

const (
	KindMessage  EntryKind = "message"
	KindFieldMap EntryKind = "field_map"
	KindFailure  EntryKind = "failure"
)

type Entry struct {
	Kind    EntryKind
	Message string
	Fields  map[string]string
}

type Trail struct {
	entries []Entry
}

func NewTrail() *Trail {
	return &Trail{}
}

func (t *Trail) AddMessage(message string) {
	t.entries = append(t.entries, Entry{Kind: KindMessage, Message: message})
}

// AddFieldMap snapshots the raw notification body verbatim.
func (t *Trail) AddFieldMap(fields map[string]string) {
	copied := make(map[string]string, len(fields))
	for key, value := range fields {
		copied[key] = value
	}

	t.entries = append(t.entries, Entry{Kind: KindFieldMap, Fields: copied})
}

func (t *Trail) AddFailure(err error) {
	t.entries = append(t.entries, Entry{Kind: KindFailure, Message: err.Error()})
}

func (t *Trail) Entries() []Entry {
	return t.entries
}

// Sink receives a completed trail. Implementations must tolerate being
// called more than once per destination.
type Sink interface {
	Flush(destination string, entries []Entry)
}
