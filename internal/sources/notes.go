package sources

import "sync"

// Notes collects one diagnostic line per source per run. The first note
// wins so the root cause is not overwritten by follow-on failures.
type Notes struct {
	mu    sync.Mutex
	notes map[string]string
}

func NewNotes() *Notes {
	return &Notes{notes: make(map[string]string)}
}

// Set records a note for a source unless one already exists.
func (n *Notes) Set(source, message string) {
	if message == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.notes[source]; !ok {
		n.notes[source] = message
	}
}

// Get returns the note for a source, or empty.
func (n *Notes) Get(source string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.notes[source]
}

// Has reports whether a source recorded a note this run.
func (n *Notes) Has(source string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.notes[source]
	return ok
}
