package collab

import (
	"context"
	"sync"
)

// DefaultPermits is the process-wide concurrency bound for collaboration
// branches.
const DefaultPermits = 2

// Semaphore is a fair counting semaphore. Waiters are granted permits in
// FIFO order, so a burst of collaborations cannot starve an earlier one.
type Semaphore struct {
	mu      sync.Mutex
	permits int
	waiters []chan struct{}
}

// NewSemaphore creates a semaphore with the given number of permits.
func NewSemaphore(permits int) *Semaphore {
	if permits < 1 {
		permits = 1
	}
	return &Semaphore{permits: permits}
}

// defaultSemaphore is shared across all in-flight collaborations in the
// process.
var defaultSemaphore = NewSemaphore(DefaultPermits)

// DefaultSemaphore returns the process-wide semaphore.
func DefaultSemaphore() *Semaphore { return defaultSemaphore }

// Acquire blocks until a permit is available or the context is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.permits > 0 && len(s.waiters) == 0 {
		s.permits--
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == ch {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// The permit was granted between Done and lock; hand it back.
		s.Release()
		return ctx.Err()
	}
}

// Release returns a permit, waking the oldest waiter first.
func (s *Semaphore) Release() {
	s.mu.Lock()
	if len(s.waiters) > 0 {
		ch := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		close(ch)
		return
	}
	s.permits++
	s.mu.Unlock()
}

// Available reports the number of free permits. Intended for tests.
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits
}
