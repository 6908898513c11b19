package kerneldiscovery

import "time"

// DiscoveryEvent is one liveness-probe attempt against one kernel.
type DiscoveryEvent struct {
	KernelID string
	Success  bool
	Attempt  int
	At       time.Time
}

// SessionRecorder is an optional collaborator that observes discovery
// attempts; a nil recorder passed to New or IsKernelAlive is replaced by
// NopRecorder and simply disables recording.
type SessionRecorder interface {
	RecordDiscoveryEvent(DiscoveryEvent)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) RecordDiscoveryEvent(DiscoveryEvent) {}

// InMemoryRecorder collects events for inspection, e.g. in tests or a
// session's diagnostics view.
type InMemoryRecorder struct {
	Events []DiscoveryEvent
}

func (r *InMemoryRecorder) RecordDiscoveryEvent(e DiscoveryEvent) {
	r.Events = append(r.Events, e)
}
