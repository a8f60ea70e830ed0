package jobs

import (
	"strings"
	"sync"
	"testing"
)

func TestCorrelator_DeliverThenTake(t *testing.T) {
	s := NewStore()
	token := s.Open("job-1")

	if !strings.HasPrefix(token, "job-1_progress_") {
		t.Fatalf("token = %q, want job prefix", token)
	}
	if !s.Deliver(token, "/out/a.mp4") {
		t.Fatal("first Deliver() rejected")
	}
	if s.Deliver(token, "/out/b.mp4") {
		t.Fatal("second Deliver() accepted")
	}

	path, ok := s.Take(token)
	if !ok || path != "/out/a.mp4" {
		t.Fatalf("Take() = %q, %v; want first delivered path", path, ok)
	}
	if _, ok := s.Take(token); ok {
		t.Fatal("Take() succeeded twice")
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d after Take", s.Pending())
	}
}

func TestCorrelator_TakeWithoutDelivery(t *testing.T) {
	s := NewStore()
	token := s.Open("job-1")

	if path, ok := s.Take(token); ok || path != "" {
		t.Fatalf("Take() = %q, %v; want nothing", path, ok)
	}
	if s.Pending() != 0 {
		t.Fatal("token leaked after Take")
	}
}

func TestCorrelator_ReleaseDropsUndelivered(t *testing.T) {
	s := NewStore()
	token := s.Open("job-1")
	s.Release(token)
	s.Release(token)

	if s.Deliver(token, "/late") {
		t.Fatal("Deliver() accepted after Release")
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d", s.Pending())
	}
}

func TestCorrelator_TokensAreUnique(t *testing.T) {
	s := NewStore()
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token := s.Open("same-job")
			mu.Lock()
			dup := seen[token]
			seen[token] = true
			mu.Unlock()
			if dup {
				t.Errorf("duplicate token %q", token)
			}
		}()
	}
	wg.Wait()
	if s.Pending() != 100 {
		t.Fatalf("Pending() = %d, want 100", s.Pending())
	}
}
