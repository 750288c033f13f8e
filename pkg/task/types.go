// Package task provides the canonical in-memory model for the Warren task
// database: Tasks, their Subtasks (WII work items), cross-references, and the
// synchronization metadata attached to distributed-store documents.
//
// The model is a transient, derived view. It is rebuilt from document bytes on
// every operation and never persisted itself; each store owns its own on-disk
// bytes. All other components (codec, router, syncer, validator) operate on
// these types.
package task

import (
	"fmt"
	"strings"
	"time"
)

// Task is a single work record, uniquely identified by a stable,
// human-assigned ID that is immutable once created.
type Task struct {
	ID          string           `yaml:"id"`                    // Stable human-assigned identifier (e.g. "T-01")
	Title       string           `yaml:"title"`                 // One-line summary
	Status      string           `yaml:"status"`                // Free-text status description
	Complexity  int              `yaml:"complexity"`            // Numeric complexity score
	Priority    Priority         `yaml:"priority"`              // Priority enum
	Type        TaskType         `yaml:"type"`                  // Task-type enum
	DependsOn   []string         `yaml:"depends_on,omitempty"`  // Ordered list of declared dependency task IDs
	Context     TechnicalContext `yaml:"context,omitempty"`     // Stack / protocols / libraries (unordered sets)
	Testing     map[string]string `yaml:"testing,omitempty"`    // Test category name -> free-text description
	Acceptance  []ChecklistItem  `yaml:"acceptance,omitempty"`  // Ordered acceptance criteria with completion flags
	Definition  []ChecklistItem  `yaml:"done,omitempty"`        // Ordered definition-of-done with completion flags
	Risk        *RiskProfile     `yaml:"risk,omitempty"`        // Optional risk/certification sub-record
	Refs        []CrossReference `yaml:"refs,omitempty"`        // Typed edges to tasks, decisions, documents
	Subtasks    []Subtask        `yaml:"subtasks,omitempty"`    // WII work items owned by this task
	Notes       string           `yaml:"notes,omitempty"`       // Opaque free-text narrative, preserved verbatim
	Meta        *SyncMetadata    `yaml:"sync,omitempty"`        // Present only on distributed-store documents
}

// Priority is the task priority enum.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// TaskType classifies the kind of work a task represents.
type TaskType string

const (
	TypeFeature    TaskType = "feature"
	TypeBugfix     TaskType = "bugfix"
	TypeRefactor   TaskType = "refactor"
	TypeResearch   TaskType = "research"
	TypeOperations TaskType = "operations"
)

// SubtaskStatus is the lifecycle state of a single work item.
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskBlocked    SubtaskStatus = "blocked"
	SubtaskDone       SubtaskStatus = "done"
)

// RefType is the kind of edge a CrossReference represents.
type RefType string

const (
	RefDependency RefType = "dependency"
	RefDecision   RefType = "decision-record"
	RefTemplate   RefType = "template"
	RefDocument   RefType = "document"
)

// TechnicalContext holds the unordered string sets describing a task's (or
// subtask's) technical surface. Sets are sorted deterministically before
// rendering or checksumming.
type TechnicalContext struct {
	Stack     []string `yaml:"stack,omitempty"`
	Protocols []string `yaml:"protocols,omitempty"`
	Libraries []string `yaml:"libraries,omitempty"`
}

// Empty reports whether the context carries no entries at all.
func (tc TechnicalContext) Empty() bool {
	return len(tc.Stack) == 0 && len(tc.Protocols) == 0 && len(tc.Libraries) == 0
}

// ChecklistItem is one entry of an acceptance-criteria or definition-of-done
// list. Order is significant; completion flags are independent.
type ChecklistItem struct {
	Text string `yaml:"text"`
	Done bool   `yaml:"done"`
}

// RiskProfile is the optional risk/certification sub-record carried by
// high-risk tasks.
type RiskProfile struct {
	Level         string `yaml:"level"`                   // low, medium, high, critical
	Mitigation    string `yaml:"mitigation,omitempty"`    // Free-text mitigation plan
	Certification string `yaml:"certification,omitempty"` // Named certification requirement, if any
}

// CrossReference is a typed edge from a task (or subtask) to another task, a
// named decision record, or an external document section.
type CrossReference struct {
	Type   RefType `yaml:"type"`
	Target string  `yaml:"target"`
	Note   string  `yaml:"note,omitempty"` // Short relevance note
}

// Subtask is a single WII work item belonging to exactly one task.
type Subtask struct {
	WII         WII               `yaml:"wii"`                  // Composite key; embedded task ID must equal the owner's
	Description string            `yaml:"description"`
	Points      int               `yaml:"points"`               // Complexity points
	Status      SubtaskStatus     `yaml:"status"`
	Completion  int               `yaml:"completion,omitempty"` // Optional percentage, 0-100
	Deliverable string            `yaml:"deliverable,omitempty"`
	Context     *TechnicalContext `yaml:"context,omitempty"`
}

// SyncMetadata is attached to every distributed-store document. The checksum
// must equal the recomputed checksum of the document's data fields at read
// time; a mismatch signals external tampering or a missed sync.
type SyncMetadata struct {
	LastSynced    time.Time `yaml:"last_synced"`
	Checksum      string    `yaml:"checksum"`
	Origin        string    `yaml:"origin"`         // Store the document originated from: "monolith" or "distributed"
	Phase         string    `yaml:"phase"`          // Migration-phase tag
	SchemaVersion int       `yaml:"schema_version"` // Monotonically increasing
}

// Validate checks structural invariants on the task: a well-formed ID,
// valid enum values, and subtask keys that parse and match this task.
func (t *Task) Validate() error {
	if err := ValidateID(t.ID); err != nil {
		return err
	}
	if t.Title == "" {
		return fmt.Errorf("task %s: title is required", t.ID)
	}
	if err := t.Priority.Validate(); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	if err := t.Type.Validate(); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	if t.Complexity < 0 {
		return fmt.Errorf("task %s: complexity must be >= 0, got %d", t.ID, t.Complexity)
	}

	seen := make(map[int]bool, len(t.Subtasks))
	for i := range t.Subtasks {
		st := &t.Subtasks[i]
		if err := st.Validate(t.ID); err != nil {
			return err
		}
		if seen[st.WII.Sequence] {
			return fmt.Errorf("task %s: duplicate subtask sequence %d", t.ID, st.WII.Sequence)
		}
		seen[st.WII.Sequence] = true
	}

	for _, ref := range t.Refs {
		if err := ref.Type.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
		if ref.Target == "" {
			return fmt.Errorf("task %s: cross-reference of type %q has empty target", t.ID, ref.Type)
		}
	}

	return nil
}

// Validate checks a subtask against its owning task's ID. The composite key's
// embedded task ID must equal ownerID; sequence numbers must be positive but
// need not be contiguous.
func (s *Subtask) Validate(ownerID string) error {
	if err := s.WII.Validate(); err != nil {
		return fmt.Errorf("subtask of %s: %w", ownerID, err)
	}
	if s.WII.TaskID != ownerID {
		return fmt.Errorf("subtask %s: embedded task ID %q does not match owner %q", s.WII, s.WII.TaskID, ownerID)
	}
	if s.Description == "" {
		return fmt.Errorf("subtask %s: description is required", s.WII)
	}
	if err := s.Status.Validate(); err != nil {
		return fmt.Errorf("subtask %s: %w", s.WII, err)
	}
	if s.Completion < 0 || s.Completion > 100 {
		return fmt.Errorf("subtask %s: completion must be 0-100, got %d", s.WII, s.Completion)
	}
	return nil
}

// ValidateID checks that a task ID is usable as a stable key: non-empty and
// free of whitespace or bracket characters that would break document headings.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if strings.ContainsAny(id, " \t\n[]") {
		return fmt.Errorf("invalid task ID %q: must not contain whitespace or brackets", id)
	}
	return nil
}

// Validate checks if the Priority is a valid enum value.
func (p Priority) Validate() error {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return nil
	default:
		return fmt.Errorf("unknown priority: %q", p)
	}
}

// Validate checks if the TaskType is a valid enum value.
func (tt TaskType) Validate() error {
	switch tt {
	case TypeFeature, TypeBugfix, TypeRefactor, TypeResearch, TypeOperations:
		return nil
	default:
		return fmt.Errorf("unknown task type: %q", tt)
	}
}

// Validate checks if the SubtaskStatus is a valid enum value.
func (ss SubtaskStatus) Validate() error {
	switch ss {
	case SubtaskPending, SubtaskInProgress, SubtaskBlocked, SubtaskDone:
		return nil
	default:
		return fmt.Errorf("unknown subtask status: %q", ss)
	}
}

// Validate checks if the RefType is a valid enum value.
func (rt RefType) Validate() error {
	switch rt {
	case RefDependency, RefDecision, RefTemplate, RefDocument:
		return nil
	default:
		return fmt.Errorf("unknown reference type: %q", rt)
	}
}

// Clone returns a deep copy of the task. The syncer and checksum code mutate
// normalized copies; the original must never be touched.
func (t *Task) Clone() *Task {
	out := *t
	out.DependsOn = append([]string(nil), t.DependsOn...)
	out.Context = t.Context.clone()
	if t.Testing != nil {
		out.Testing = make(map[string]string, len(t.Testing))
		for k, v := range t.Testing {
			out.Testing[k] = v
		}
	}
	out.Acceptance = append([]ChecklistItem(nil), t.Acceptance...)
	out.Definition = append([]ChecklistItem(nil), t.Definition...)
	if t.Risk != nil {
		r := *t.Risk
		out.Risk = &r
	}
	out.Refs = append([]CrossReference(nil), t.Refs...)
	out.Subtasks = make([]Subtask, len(t.Subtasks))
	for i, st := range t.Subtasks {
		out.Subtasks[i] = st
		if st.Context != nil {
			c := st.Context.clone()
			out.Subtasks[i].Context = &c
		}
	}
	if t.Meta != nil {
		m := *t.Meta
		out.Meta = &m
	}
	return &out
}

func (tc TechnicalContext) clone() TechnicalContext {
	return TechnicalContext{
		Stack:     append([]string(nil), tc.Stack...),
		Protocols: append([]string(nil), tc.Protocols...),
		Libraries: append([]string(nil), tc.Libraries...),
	}
}

// Dependencies returns the union of the declared dependency list and any
// dependency-type cross-references, deduplicated and in declaration order.
func (t *Task) Dependencies() []string {
	seen := make(map[string]bool)
	var deps []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}
	for _, id := range t.DependsOn {
		add(id)
	}
	for _, ref := range t.Refs {
		if ref.Type == RefDependency {
			add(ref.Target)
		}
	}
	return deps
}
