package harvest

import (
	"sort"
	"sync"
	"time"
)

// RunStatus is a snapshot of one harvest run for the status server.
type RunStatus struct {
	RunID      string    `json:"run_id"`
	Journal    string    `json:"journal"`
	Group      string    `json:"group"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Running    bool      `json:"running"`
	Stats      Stats     `json:"stats"`
}

// Registry keeps the most recent run per journal. Safe for concurrent use;
// the status server reads while harvests write.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*RunStatus
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*RunStatus)}
}

func (r *Registry) start(runID, journal, group string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[journal] = &RunStatus{
		RunID:     runID,
		Journal:   journal,
		Group:     group,
		StartedAt: at,
		Running:   true,
	}
}

func (r *Registry) finish(runID string, stats Stats, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, status := range r.runs {
		if status.RunID == runID {
			status.FinishedAt = at
			status.Running = false
			status.Stats = stats
			return
		}
	}
}

// Snapshot returns the known runs ordered by journal name.
func (r *Registry) Snapshot() []RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunStatus, 0, len(r.runs))
	for _, status := range r.runs {
		out = append(out, *status)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Journal < out[b].Journal })
	return out
}
