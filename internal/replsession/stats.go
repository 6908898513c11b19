package replsession

import (
	"sync"
	"time"
)

// ExecutionRecord captures one Execute(code) round trip.
type ExecutionRecord struct {
	Latency    time.Duration
	MemBefore  int64
	MemAfter   int64
	PeakMem    int64
	Errored    bool
	ExecutedAt time.Time
}

// Stats aggregates per-execution records into running totals. Safe for
// concurrent use: every method holds mu.
type Stats struct {
	mu sync.Mutex

	commandsExecuted int
	errors           int
	minLatency       time.Duration
	maxLatency       time.Duration
	totalLatency     time.Duration
	lastMemDelta     int64
}

func NewStats() *Stats {
	return &Stats{}
}

// Record folds one execution into the aggregates.
func (s *Stats) Record(r ExecutionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commandsExecuted++
	if r.Errored {
		s.errors++
	}
	s.totalLatency += r.Latency
	if s.minLatency == 0 || r.Latency < s.minLatency {
		s.minLatency = r.Latency
	}
	if r.Latency > s.maxLatency {
		s.maxLatency = r.Latency
	}
	s.lastMemDelta = r.MemAfter - r.MemBefore
}

// Snapshot is a point-in-time copy of the aggregates, safe to read without
// holding the Stats lock.
type Snapshot struct {
	CommandsExecuted int
	Errors           int
	MinLatency       time.Duration
	MaxLatency       time.Duration
	AvgLatency       time.Duration
	TotalLatency     time.Duration
	LastMemDelta     int64
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		CommandsExecuted: s.commandsExecuted,
		Errors:           s.errors,
		MinLatency:       s.minLatency,
		MaxLatency:       s.maxLatency,
		TotalLatency:     s.totalLatency,
		LastMemDelta:     s.lastMemDelta,
	}
	if s.commandsExecuted > 0 {
		snap.AvgLatency = s.totalLatency / time.Duration(s.commandsExecuted)
	}
	return snap
}

func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandsExecuted = 0
	s.errors = 0
	s.minLatency = 0
	s.maxLatency = 0
	s.totalLatency = 0
	s.lastMemDelta = 0
}
