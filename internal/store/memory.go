// Package store keeps a bounded in-memory history of resolved
// observations for the local history endpoint.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/hweber/emax-station/internal/station"
)

// ErrNotFound is returned when no observation matches a query.
var ErrNotFound = errors.New("no observations available")

// MemoryStore is a concurrency-safe, time-ordered observation history for
// a single station, bounded by count and age.
type MemoryStore struct {
	mu sync.RWMutex

	observations []station.Observation

	maxHistory int           // max number of observations (0 = unlimited)
	maxAge     time.Duration // max observation age (0 = unlimited)
}

// NewMemoryStore creates a store with the given retention limits.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// Append records a new observation and enforces retention.
func (s *MemoryStore) Append(obs station.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observations = append(s.observations, obs)

	if s.maxHistory > 0 && len(s.observations) > s.maxHistory {
		over := len(s.observations) - s.maxHistory
		s.observations = s.observations[over:]
	}

	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.observations); i++ {
			if !s.observations[i].Timestamp.Before(cutoff) {
				break
			}
		}
		if i > 0 && i < len(s.observations) {
			s.observations = s.observations[i:]
		}
	}
}

// Latest returns the most recent observation.
func (s *MemoryStore) Latest() (station.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.observations) == 0 {
		return station.Observation{}, ErrNotFound
	}
	return s.observations[len(s.observations)-1], nil
}

// Range returns all observations between from and to, inclusive.
func (s *MemoryStore) Range(from, to time.Time) ([]station.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.observations) == 0 {
		return nil, ErrNotFound
	}

	var result []station.Observation
	for _, obs := range s.observations {
		if !obs.Timestamp.Before(from) && !obs.Timestamp.After(to) {
			result = append(result, obs)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Len returns the number of retained observations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations)
}
