// Package stub provides an in-memory stream source for tests and local runs.
package stub

import (
	"context"
	"sync"

	"mangrove-indexer/internal/stream"
)

// Source serves fixed in-memory items per stream.
// Implements stream.Source interface.
type Source struct {
	mu       sync.Mutex
	streams  map[string][]stream.RawEvent
	failures []error
	fetches  int
}

// NewSource creates an empty stub source.
func NewSource() *Source {
	return &Source{streams: make(map[string][]stream.RawEvent)}
}

var _ stream.Source = (*Source)(nil)

// Push appends items to stream. Offsets are taken as given.
func (s *Source) Push(name string, events ...stream.RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[name] = append(s.streams[name], events...)
}

// FailNext makes the next len(errs) fetches fail with errs, in order.
func (s *Source) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Fetches returns the number of Fetch calls so far.
func (s *Source) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// Fetch returns up to limit items of name with Offset > after.
// Returns copies to prevent mutation.
func (s *Source) Fetch(_ context.Context, name string, after int64, limit int) ([]stream.RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}

	var result []stream.RawEvent
	for _, e := range s.streams[name] {
		if e.Offset <= after {
			continue
		}
		if limit > 0 && len(result) == limit {
			break
		}
		c := e
		c.Payload = append([]byte(nil), e.Payload...)
		result = append(result, c)
	}
	return result, nil
}
