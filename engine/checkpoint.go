package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Checkpoint captures a run at a round boundary: the merged state and the
// frontier scheduled for the next round.
type Checkpoint struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Graph     string         `json:"graph"`
	Round     int            `json:"round"`
	Frontier  []string       `json:"frontier"`
	State     map[string]any `json:"state"`
	Path      [][]string     `json:"path"`
	Joined    []string       `json:"joined,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// newCheckpointID returns a lexicographically time-ordered identifier.
func newCheckpointID() string {
	return ulid.Make().String()
}

// CheckpointStore keeps the latest checkpoint of each run.
//
// Checkpoint lifecycle:
//  1. The engine saves a checkpoint every Interval rounds
//  2. On successful completion the checkpoint is deleted (unless Preserve)
//  3. On failure or abort it remains available to Resume
//
// Implementations must be safe for concurrent runs.
type CheckpointStore interface {
	// Save stores cp, replacing any checkpoint with the same RunID.
	Save(cp Checkpoint) error

	// Load returns the checkpoint for runID or an error if none exists.
	Load(runID string) (Checkpoint, error)

	// Delete removes the checkpoint for runID. Missing ids are not an error.
	Delete(runID string) error

	// List returns the run ids with stored checkpoints.
	List() ([]string, error)
}

// memoryCheckpointStore keeps checkpoints in process memory. They do not
// survive a restart.
type memoryCheckpointStore struct {
	checkpoints map[string]Checkpoint
	mu          sync.RWMutex
}

// NewMemoryCheckpointStore creates an in-memory CheckpointStore. One is
// registered by default as "memory".
func NewMemoryCheckpointStore() CheckpointStore {
	return &memoryCheckpointStore{
		checkpoints: make(map[string]Checkpoint),
	}
}

func (m *memoryCheckpointStore) Save(cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[cp.RunID] = cp
	return nil
}

func (m *memoryCheckpointStore) Load(runID string) (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, exists := m.checkpoints[runID]
	if !exists {
		return Checkpoint{}, fmt.Errorf("checkpoint not found: %s", runID)
	}
	return cp, nil
}

func (m *memoryCheckpointStore) Delete(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.checkpoints, runID)
	return nil
}

func (m *memoryCheckpointStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.checkpoints))
	for id := range m.checkpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var (
	checkpointStores = map[string]CheckpointStore{
		"memory": NewMemoryCheckpointStore(),
	}
	mutex sync.RWMutex
)

// GetCheckpointStore returns the store registered under name.
func GetCheckpointStore(name string) (CheckpointStore, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	store, exists := checkpointStores[name]
	if !exists {
		return nil, fmt.Errorf("unknown checkpoint store: %s", name)
	}
	return store, nil
}

// RegisterCheckpointStore adds or replaces a named store. Register before
// creating engines whose config refers to it.
func RegisterCheckpointStore(name string, store CheckpointStore) {
	mutex.Lock()
	defer mutex.Unlock()

	checkpointStores[name] = store
}
