package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Submission is one payload accepted by the resource endpoint.
type Submission struct {
	ID          string
	Path        string
	ContentType string
	// AuthMode is "bearer" or "basic".
	AuthMode   string
	Body       []byte
	ReceivedAt time.Time
}

// Store is a thread-safe in-memory submission store keyed by ID. A
// background goroutine (Run) evicts submissions older than the retention.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Submission
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store that keeps submissions for ttl.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Submission),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the retention period.
func (s *Store) TTL() time.Duration { return s.ttl }

// Add stores sub, assigning a fresh ID and the receive time. The stored copy
// is returned. Callers must not modify sub.Body after calling Add.
func (s *Store) Add(sub Submission) *Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = uuid.NewString()
	sub.ReceivedAt = s.now()
	s.data[sub.ID] = &sub
	return &sub
}

// Get returns the submission with the given ID. It may be past retention if
// Evict has not run yet.
func (s *Store) Get(id string) (*Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.data[id]
	return sub, ok
}

// List returns submissions received within the retention, oldest first.
func (s *Store) List() []*Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Submission, 0, len(s.data))
	for _, sub := range s.data {
		if sub.ReceivedAt.After(cutoff) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}

// Count returns the number of submissions held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes submissions received at or before now minus the retention.
// It returns the number removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, sub := range s.data {
		if !sub.ReceivedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run evicts on a ticker at half the retention (minimum 1 second) until ctx
// is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted expired submissions", "count", n)
			}
		}
	}
}
