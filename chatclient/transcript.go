package chatclient

import "sync"

// EntryKind distinguishes confirmed messages from local placeholders.
type EntryKind int

const (
	// KindMessage is a server-confirmed message carrying a message store id.
	KindMessage EntryKind = iota
	// KindPending is a locally rendered outbound message awaiting its
	// server-confirmed copy.
	KindPending
	// KindError is a locally rendered delivery failure notice.
	KindError
)

// Entry is one rendered line of the conversation. Direction uses the wire
// vocabulary: "inbound" is a visitor message, "outbound" a bot reply.
type Entry struct {
	ID        int64
	Content   string
	Direction string
	Kind      EntryKind
}

// Transcript is the append-only rendered conversation. Confirmed messages are
// deduplicated by id so the overlap produced by re-polling from an older
// cursor merges idempotently.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[int64]struct{}
}

func NewTranscript() *Transcript {
	return &Transcript{seen: make(map[int64]struct{})}
}

// Merge appends a confirmed message unless its id has been seen before.
// Returns true when the message was new.
func (t *Transcript) Merge(id int64, content, direction string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.seen[id]; dup {
		return false
	}
	t.seen[id] = struct{}{}
	t.entries = append(t.entries, Entry{ID: id, Content: content, Direction: direction, Kind: KindMessage})
	return true
}

// AppendPending records an optimistic outbound message. It is cleared when the
// server-confirmed copy arrives.
func (t *Transcript) AppendPending(content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Content: content, Direction: "inbound", Kind: KindPending})
}

// AppendError records a visible delivery failure line.
func (t *Transcript) AppendError(content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Content: content, Direction: "outbound", Kind: KindError})
}

// ClearPending drops optimistic placeholders. Called once a poll delivers the
// confirmed copies; confirmed and error entries are untouched.
func (t *Transcript) ClearPending() {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.Kind != KindPending {
			kept = append(kept, e)
		}
	}
	t.entries = kept
}

// Entries returns a copy of the rendered conversation in arrival order.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Has reports whether a confirmed message id is already rendered.
func (t *Transcript) Has(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[id]
	return ok
}
