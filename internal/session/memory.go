package session

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often StartSweeper purges expired records.
const DefaultSweepInterval = 10 * time.Minute

// MemoryStore keeps sessions in a map. Sessions are lost on restart and
// are not shared between processes.
//
// Get drops an expired record it touches. Records nobody asks for again
// are only removed by Sweep, so long-running processes should call
// StartSweeper.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Record
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Record),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	rec, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return Record{}, ErrNoSession
	}
	if rec.Expired(s.now()) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return Record{}, ErrNoSession
	}
	return rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes every expired record and reports how many went.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, rec := range s.sessions {
		if rec.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval in the background until Close.
// Calls after the first are ignored.
func (s *MemoryStore) StartSweeper(interval time.Duration) {
	s.startOnce.Do(func() {
		s.done = make(chan struct{})
		go func() {
			defer close(s.done)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.Sweep()
				case <-s.stop:
					return
				}
			}
		}()
	})
}

// Close stops the sweeper, if one is running, and waits for it to exit.
// The stored sessions stay readable.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	// Block a later StartSweeper so done can't change under us.
	s.startOnce.Do(func() {})
	if s.done != nil {
		<-s.done
	}
	return nil
}
