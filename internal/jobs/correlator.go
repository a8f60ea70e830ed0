package jobs

// Correlation tokens are one-shot: Open creates a slot, the engine's progress
// callback fills it at most once via Deliver, and the owning worker drains it
// with Take. Release must run on every worker exit path so tokens whose
// callback never fired do not accumulate.

// Open allocates a correlation token for one worker invocation of jobID.
func (s *Store) Open(jobID string) string {
	token := jobID + "_progress_" + NewID()[:8]

	s.mu.Lock()
	s.pending[token] = make(chan string, 1)
	s.mu.Unlock()

	return token
}

// Deliver records the output path for token. Only the first delivery is
// kept; later ones and unknown tokens return false.
func (s *Store) Deliver(token, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.pending[token]
	if !ok {
		return false
	}
	select {
	case ch <- path:
		return true
	default:
		return false
	}
}

// Take removes the token and returns the delivered path, if any.
func (s *Store) Take(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.pending[token]
	if !ok {
		return "", false
	}
	delete(s.pending, token)
	select {
	case path := <-ch:
		return path, true
	default:
		return "", false
	}
}

// Release drops the token whether or not it was delivered.
func (s *Store) Release(token string) {
	s.mu.Lock()
	delete(s.pending, token)
	s.mu.Unlock()
}

// Pending returns the number of open tokens.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
