package session

import "sync"

// Store holds session memories keyed by session ID. Each session carries
// its own lock so concurrent task executions for the same session run one
// at a time instead of interleaving their appends.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	memory *Memory
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*entry)}
}

// Handle grants exclusive access to one session's memory until Release.
type Handle struct {
	Memory *Memory
	entry  *entry
	once   sync.Once
}

// Release returns the session lock. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.entry.mu.Unlock()
	})
}

// Acquire locks the session with the given ID and returns a handle to its
// memory, creating an empty memory for new sessions. Blocks while another
// holder has the session.
func (s *Store) Acquire(sessionID string) *Handle {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		e = &entry{memory: NewMemory()}
		s.sessions[sessionID] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	return &Handle{Memory: e.memory, entry: e}
}

// Seed installs a memory for a session if none exists yet. Used to hydrate
// a session from persistent history. Returns the memory now held for the
// session (the existing one when already present).
func (s *Store) Seed(sessionID string, memory *Memory) *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sessionID]; ok {
		return e.memory
	}
	s.sessions[sessionID] = &entry{memory: memory}
	return memory
}

// IDs returns the session IDs currently held in memory.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
