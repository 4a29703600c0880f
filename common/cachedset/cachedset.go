// Package cachedset holds lazily built values derived from mutable sets,
// such as the combined blocklist matcher or the highlight trigger index.
// A mutation invalidates the slot; the next read rebuilds it under
// exclusive access. Readers between invalidation and rebuild may observe
// the previous value, staleness there is acceptable.
package cachedset

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type BuilderFunc[T any] func() (T, error)

// Slot caches a single derived value with an explicit
// invalidate/get-or-build contract.
type Slot[T any] struct {
	name    string
	builder BuilderFunc[T]

	mu    sync.RWMutex
	value T
	valid bool
}

func NewSlot[T any](name string, builder BuilderFunc[T]) *Slot[T] {
	return &Slot[T]{
		name:    name,
		builder: builder,
	}
}

func (s *Slot[T]) Name() string {
	return s.name
}

// Get returns the cached value, rebuilding it first if the slot was
// invalidated. Concurrent callers during a rebuild share a single build.
func (s *Slot[T]) Get() (T, error) {
	s.mu.RLock()
	if s.valid {
		v := s.value
		s.mu.RUnlock()
		metricsCacheHits.With(prometheus.Labels{"slot": s.name}).Inc()
		return v, nil
	}
	s.mu.RUnlock()

	metricsCacheMisses.With(prometheus.Labels{"slot": s.name}).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	// another goroutine could have rebuilt while we waited for the lock
	if s.valid {
		return s.value, nil
	}

	v, err := s.builder()
	if err != nil {
		var zero T
		return zero, err
	}

	s.value = v
	s.valid = true
	return v, nil
}

// Invalidate drops the cached value. In-flight readers keep whatever value
// they already got, there is no synchronous push.
func (s *Slot[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	s.value = zero
	s.valid = false
}

var (
	metricsCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wardbot_cachedset_hits_total",
		Help: "Cache hits in derived-value slots",
	}, []string{"slot"})

	metricsCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wardbot_cachedset_misses_total",
		Help: "Cache misses in derived-value slots",
	}, []string{"slot"})
)
