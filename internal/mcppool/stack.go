package mcppool

import (
	"errors"
	"fmt"
	"sync"
)

// Stack closes acquired resources in reverse order of acquisition. Close
// runs every cleanup exactly once, no matter how often it is called.
type Stack struct {
	mu      sync.Mutex
	entries []stackEntry
	closed  bool
	once    sync.Once
	err     error
}

type stackEntry struct {
	name string
	fn   func() error
}

// Push registers a cleanup. After Close, fn runs immediately.
func (s *Stack) Push(name string, fn func() error) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn() //nolint:errcheck
		return
	}
	s.entries = append(s.entries, stackEntry{name: name, fn: fn})
	s.mu.Unlock()
}

// Len returns the number of pending cleanups.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close runs all cleanups, last pushed first, and joins their errors.
func (s *Stack) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		entries := s.entries
		s.entries = nil
		s.closed = true
		s.mu.Unlock()

		var errs []error
		for i := len(entries) - 1; i >= 0; i-- {
			if err := entries[i].fn(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", entries[i].name, err))
			}
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}
