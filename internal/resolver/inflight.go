// ABOUTME: TTL-bounded set of identifiers with an outstanding resolution request
// ABOUTME: Keeps the queue from holding the same lookup twice while one is pending

package resolver

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

var (
	errAlreadyPending = errors.New("already pending")
	errInflightFull   = errors.New("too many pending lookups")
)

type inflightEntry struct {
	acquired time.Time
	element  *list.Element
}

// inflightSet tracks pending keys. Entries expire after ttl so a lost worker
// cannot pin a key forever. At capacity new keys are refused; a live entry is
// never dropped to make room.
type inflightSet struct {
	mu      sync.Mutex
	entries map[string]*inflightEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

func newInflightSet(ttl time.Duration, maxSize int) *inflightSet {
	if maxSize < 1 {
		maxSize = 1
	}
	s := &inflightSet{
		entries: make(map[string]*inflightEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Acquire marks key pending. It returns errAlreadyPending if key is pending
// and not expired, and errInflightFull if the set holds maxSize live keys.
func (s *inflightSet) Acquire(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, ok := s.entries[key]; ok {
		if now.Sub(entry.acquired) < s.ttl {
			return errAlreadyPending
		}
		entry.acquired = now
		s.order.MoveToBack(entry.element)
		return nil
	}

	if len(s.entries) >= s.maxSize {
		s.expireLocked(now)
		if len(s.entries) >= s.maxSize {
			return errInflightFull
		}
	}
	s.entries[key] = &inflightEntry{acquired: now, element: s.order.PushBack(key)}
	return nil
}

// Release clears key. No-op if absent.
func (s *inflightSet) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		s.order.Remove(entry.element)
		delete(s.entries, key)
	}
}

// Len returns the number of tracked keys, expired or not.
func (s *inflightSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *inflightSet) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expire()
		case <-s.done:
			return
		}
	}
}

func (s *inflightSet) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.now())
}

// expireLocked must be called with mu held.
func (s *inflightSet) expireLocked(now time.Time) {
	for e := s.order.Front(); e != nil; {
		next := e.Next()
		key, _ := e.Value.(string)
		if now.Sub(s.entries[key].acquired) < s.ttl {
			// order is by acquisition time, the rest are younger
			break
		}
		s.order.Remove(e)
		delete(s.entries, key)
		e = next
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *inflightSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
