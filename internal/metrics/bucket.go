package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// bucketStore is a fixed-size ring of time buckets. Per-interval counters are
// atomics so recording never takes the ring lock.
type bucketStore struct {
	mu      sync.RWMutex
	buckets []*TimeBucket
	head    int
	count   int
	last    time.Time

	requests    atomic.Int64
	failures    atomic.Int64
	checkPasses atomic.Int64
	checkTotal  atomic.Int64
}

func newBucketStore(max int) *bucketStore {
	if max <= 0 {
		max = 3600
	}
	return &bucketStore{
		buckets: make([]*TimeBucket, max),
		last:    time.Now(),
	}
}

func (s *bucketStore) recordRequest(failed bool) {
	s.requests.Add(1)
	if failed {
		s.failures.Add(1)
	}
}

func (s *bucketStore) recordCheck(passed bool) {
	s.checkTotal.Add(1)
	if passed {
		s.checkPasses.Add(1)
	}
}

// close seals the current interval into a bucket built from b.
func (s *bucketStore) close(b *TimeBucket) *TimeBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	reqs := s.requests.Swap(0)
	fails := s.failures.Swap(0)
	passes := s.checkPasses.Swap(0)
	checks := s.checkTotal.Swap(0)

	secs := now.Sub(s.last).Seconds()
	if secs <= 0 {
		secs = 1
	}

	b.Timestamp = now
	b.IntervalRequests = reqs
	b.IntervalRPS = float64(reqs) / secs
	if reqs > 0 {
		b.IntervalErrorRate = float64(fails) / float64(reqs)
	}
	if checks > 0 {
		b.IntervalCheckRate = float64(passes) / float64(checks)
	}

	s.buckets[s.head] = b
	s.head = (s.head + 1) % len(s.buckets)
	if s.count < len(s.buckets) {
		s.count++
	}
	s.last = now
	return b
}

// all returns the buckets oldest first.
func (s *bucketStore) all() []*TimeBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}
	out := make([]*TimeBucket, s.count)
	start := 0
	if s.count == len(s.buckets) {
		start = s.head
	}
	for i := 0; i < s.count; i++ {
		out[i] = s.buckets[(start+i)%len(s.buckets)]
	}
	return out
}

// steadyRPS averages the interval RPS of steady-phase buckets.
func (s *bucketStore) steadyRPS() (float64, int) {
	var sum float64
	n := 0
	for _, b := range s.all() {
		if b.Phase == PhaseSteady {
			sum += b.IntervalRPS
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func (s *bucketStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buckets = make([]*TimeBucket, len(s.buckets))
	s.head = 0
	s.count = 0
	s.last = time.Now()
	s.requests.Store(0)
	s.failures.Store(0)
	s.checkPasses.Store(0)
	s.checkTotal.Store(0)
}
