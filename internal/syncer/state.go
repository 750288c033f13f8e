package syncer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/warren/pkg/task"
)

// State records, per task, the content checksum each store held at the last
// successful synchronization. The conflict classifier compares current
// checksums against these to decide which side changed.
type State struct {
	Version int                  `yaml:"version"`
	Tasks   map[string]TaskState `yaml:"tasks"`
}

// TaskState is one task's recorded checksums.
type TaskState struct {
	Monolith    string    `yaml:"monolith"`
	Distributed string    `yaml:"distributed"`
	LastSynced  time.Time `yaml:"last_synced"`
}

const stateVersion = 1

// LoadState reads the sync-state file. A missing file is an empty state:
// every task then classifies as newly created on whichever side holds it.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{Version: stateVersion, Tasks: map[string]TaskState{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}

	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse sync state: %w", err)
	}
	if s.Tasks == nil {
		s.Tasks = map[string]TaskState{}
	}
	return &s, nil
}

// Save writes the state atomically.
func (s *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal sync state: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	return nil
}

// Get returns the recorded checksums for a task. A task never synced before
// reads as absent on both sides.
func (s *State) Get(id string) TaskState {
	if ts, ok := s.Tasks[id]; ok {
		return ts
	}
	return TaskState{Monolith: task.AbsentChecksum, Distributed: task.AbsentChecksum}
}

// Set records a task's checksums after a successful sync step.
func (s *State) Set(id, monolith, distributed string, at time.Time) {
	s.Tasks[id] = TaskState{Monolith: monolith, Distributed: distributed, LastSynced: at}
}

// Forget drops a task that no longer exists in either store.
func (s *State) Forget(id string) {
	delete(s.Tasks, id)
}
