package queue

import (
	"sync"
	"time"
)

// sweepState tracks lease recovery metrics (thread-safe). One instance is
// shared by all workers in a pool so the counters aggregate.
type sweepState struct {
	mu            sync.Mutex
	lastSweepAt   time.Time
	jobsRecovered int64
}

func (s *sweepState) record(recovered int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSweepAt = time.Now()
	s.jobsRecovered += recovered
}

func (s *sweepState) snapshot() (lastSweepAt time.Time, jobsRecovered int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweepAt, s.jobsRecovered
}
