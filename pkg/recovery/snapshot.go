package recovery

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a named checkpoint of installation progress. The
// StateData payload is opaque to the store: the installer decides what
// it needs to resume from this point, the store only keeps it.
type Snapshot struct {
	ID          string                 `json:"id"`
	Phase       string                 `json:"phase"`
	Step        string                 `json:"step"`
	Description string                 `json:"description"`
	CreatedAt   time.Time              `json:"created_at"`
	StateData   map[string]interface{} `json:"state_data,omitempty"`
}

// SnapshotStore keeps the ordered stack of active snapshots for a
// single run. Snapshots live only for the lifetime of the process.
// All operations are safe for concurrent use.
type SnapshotStore struct {
	mu    sync.Mutex
	stack []Snapshot
}

// NewSnapshotStore creates an empty snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Create pushes a new snapshot onto the stack and returns its id.
// Create always succeeds.
func (s *SnapshotStore) Create(phase, step, description string, state map[string]interface{}) string {
	snap := Snapshot{
		ID:          uuid.New().String(),
		Phase:       phase,
		Step:        step,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		StateData:   state,
	}

	s.mu.Lock()
	s.stack = append(s.stack, snap)
	s.mu.Unlock()

	return snap.ID
}

// Active returns the ids of all active snapshots, oldest first.
func (s *SnapshotStore) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.stack))
	for i, snap := range s.stack {
		ids[i] = snap.ID
	}
	return ids
}

// Get returns the snapshot with the given id, if it is active.
func (s *SnapshotStore) Get(id string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range s.stack {
		if snap.ID == id {
			return snap, true
		}
	}
	return Snapshot{}, false
}

// Oldest returns the first snapshot on the stack, if any.
func (s *SnapshotStore) Oldest() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.stack) == 0 {
		return Snapshot{}, false
	}
	return s.stack[0], true
}

// Len returns the number of active snapshots.
func (s *SnapshotStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack)
}

// RollbackTo makes the given snapshot current by popping everything
// created after it. The target itself stays active. It does not undo
// any side effects outside the store: the caller acts on the returned
// boolean.
//
// If the id is not on the stack, RollbackTo returns a
// SnapshotNotFoundError, or reports false without an error when
// partialOK is set.
func (s *SnapshotStore) RollbackTo(id string, partialOK bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, snap := range s.stack {
		if snap.ID == id {
			s.stack = s.stack[:i+1]
			return true, nil
		}
	}

	if partialOK {
		return false, nil
	}
	return false, &SnapshotNotFoundError{ID: id}
}

// Clear removes every snapshot from the stack.
func (s *SnapshotStore) Clear() {
	s.mu.Lock()
	s.stack = nil
	s.mu.Unlock()
}
