package refresh

import "sync"

// State is the embedding lifecycle state of one project
type State string

const (
	StateNoEmbedding State = "NO_EMBEDDING"
	StateGenerating  State = "GENERATING"
	StateEmbedded    State = "EMBEDDED"
	StateFailed      State = "FAILED"
)

// Tracker holds in-memory embedding states. Projects the pipeline has not
// touched since startup have no entry.
type Tracker struct {
	mu     sync.RWMutex
	states map[int64]State
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[int64]State)}
}

func (t *Tracker) Set(projectID int64, s State) {
	t.mu.Lock()
	t.states[projectID] = s
	t.mu.Unlock()
}

// Get returns the recorded state and whether one exists
func (t *Tracker) Get(projectID int64) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[projectID]
	return s, ok
}

// Resolve returns the recorded state, or derives one from whether the
// stored project currently has an embedding
func (t *Tracker) Resolve(projectID int64, hasEmbedding bool) State {
	if s, ok := t.Get(projectID); ok {
		return s
	}
	if hasEmbedding {
		return StateEmbedded
	}
	return StateNoEmbedding
}

// Counts tallies recorded states
func (t *Tracker) Counts() map[State]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[State]int, 4)
	for _, s := range t.states {
		out[s]++
	}
	return out
}
