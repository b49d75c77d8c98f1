package agent

import "sync"

// Steering carries operator notes into in-flight attempts. The
// supervisor owns one per session and shares it across runners; each
// runner drains pending notes at the start of its next reasoning turn.
type Steering struct {
	mu    sync.Mutex
	notes []string
}

// NewSteering creates an empty steering box.
func NewSteering() *Steering {
	return &Steering{}
}

// Add queues a note for the next reasoning turn of every attempt
// sharing this box.
func (s *Steering) Add(note string) {
	if note == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, note)
}

// Since returns the notes added after cursor and the new cursor
// position. Each runner keeps its own cursor so every in-flight
// attempt sees each note exactly once, in its next turn.
func (s *Steering) Since(cursor int) ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(s.notes) {
		return nil, len(s.notes)
	}
	out := make([]string, len(s.notes)-cursor)
	copy(out, s.notes[cursor:])
	return out, len(s.notes)
}

// Len returns the number of pending notes.
func (s *Steering) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}
