// Package jobs holds the in-memory job registry: status records and the
// correlation tokens that let the fetch engine report output paths back to
// the worker that owns them. Both live behind one mutex and no I/O happens
// while it is held.
package jobs

import (
	"sync"
	"time"
)

type Store struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	pending map[string]chan string
	now     func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		jobs:    make(map[string]*Job),
		pending: make(map[string]chan string),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a pending job and returns its identifier.
func (s *Store) Create(kind Kind, attrs Attrs) (string, error) {
	var message string
	switch kind {
	case KindVideo:
		message = "Download request received"
	case KindAudio:
		message = "Audio download request received"
	default:
		return "", ErrUnknownKind
	}

	id := NewID()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job := &Job{
		ID:        id,
		Status:    StatusPending,
		Kind:      kind,
		SourceID:  attrs.SourceID,
		Title:     attrs.Title,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if kind == KindVideo {
		job.Resolution = attrs.Resolution
	} else {
		job.Quality = attrs.Quality
	}
	s.jobs[id] = job
	return id, nil
}

type update struct {
	downloadURL string
	sizeMB      float64
	hasResult   bool
}

type UpdateOption func(*update)

// WithResult attaches the retrieval URL and size. It only takes effect on a
// transition to StatusComplete.
func WithResult(downloadURL string, sizeMB float64) UpdateOption {
	return func(u *update) {
		u.downloadURL = downloadURL
		u.sizeMB = sizeMB
		u.hasResult = true
	}
}

// Update transitions a job. Unknown ids, writes to a terminal job and
// transitions back to an earlier status are ignored; the return value
// reports whether the write was applied.
func (s *Store) Update(id string, status Status, message string, opts ...UpdateOption) bool {
	var u update
	for _, opt := range opts {
		opt(&u)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	if job.Status.IsTerminal() || status.rank() < job.Status.rank() {
		return false
	}

	now := s.now()
	if now.Before(job.UpdatedAt) {
		now = job.UpdatedAt
	}

	job.Status = status
	job.Message = message
	job.UpdatedAt = now
	if status == StatusComplete && u.hasResult {
		url := u.downloadURL
		size := u.sizeMB
		job.DownloadURL = &url
		job.SizeMB = &size
	}
	return true
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// List returns a snapshot of every job keyed by id.
func (s *Store) List() map[string]Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Job, len(s.jobs))
	for id, job := range s.jobs {
		out[id] = job.clone()
	}
	return out
}

// PruneBefore removes every job created before cutoff and returns how many
// were removed.
func (s *Store) PruneBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}
