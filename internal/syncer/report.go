package syncer

import (
	"fmt"
	"time"
)

// Direction selects which way a synchronization run may write.
type Direction string

const (
	// MonolithToDistributed propagates monolith-side changes into per-task documents.
	MonolithToDistributed Direction = "monolith-to-distributed"

	// DistributedToMonolith propagates per-task document changes into the monolith.
	DistributedToMonolith Direction = "distributed-to-monolith"

	// Bidirectional propagates one-sided changes both ways and writes
	// conflict tie-break output to both stores.
	Bidirectional Direction = "bidirectional"
)

// Validate checks if the Direction is a valid enum value.
func (d Direction) Validate() error {
	switch d {
	case MonolithToDistributed, DistributedToMonolith, Bidirectional:
		return nil
	default:
		return fmt.Errorf("unknown sync direction: %q", d)
	}
}

func (d Direction) writesDistributed() bool {
	return d == MonolithToDistributed || d == Bidirectional
}

func (d Direction) writesMonolith() bool {
	return d == DistributedToMonolith || d == Bidirectional
}

// ChangeKind classifies a one-sided change.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change records one one-sided change that was applied to the stale side.
type Change struct {
	TaskID string     `json:"task_id"`
	Kind   ChangeKind `json:"kind"`
	Source string     `json:"source"` // Store the change originated in
	Target string     `json:"target"` // Store it was applied to
}

// FieldDecision records which side won one field of a conflict tie-break,
// with both prior values so a human can audit or reverse the decision.
type FieldDecision struct {
	Field       string `json:"field"`
	Monolith    string `json:"monolith"`    // Prior monolith-side value (canonical rendering)
	Distributed string `json:"distributed"` // Prior distributed-side value
	Winner      string `json:"winner"`      // "monolith" or "distributed"
	Policy      string `json:"policy"`      // Named tie-break policy that fired
}

// Conflict records a task that diverged independently in both stores.
// Tie-break output has been written to both stores unless Deferred is set,
// but the conflict list is authoritative for human follow-up either way:
// every conflicted task needs manual review.
type Conflict struct {
	TaskID    string          `json:"task_id"`
	Decisions []FieldDecision `json:"decisions"`
	Deferred  bool            `json:"deferred,omitempty"` // One-way run could not write both stores; nothing written
}

// Failure records a task whose sync was aborted (parse error on either side,
// or an I/O failure that was rolled back). Other tasks continue.
type Failure struct {
	TaskID string `json:"task_id"`
	Stage  string `json:"stage"` // "parse" or "write"
	Msg    string `json:"msg"`
}

// Report is the complete outcome of one synchronization run. Every finding
// is enumerated; nothing is collapsed into a first-error.
type Report struct {
	Direction  Direction  `json:"direction"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Unchanged  []string   `json:"unchanged,omitempty"`
	Applied    []Change   `json:"applied,omitempty"`
	Conflicts  []Conflict `json:"conflicts,omitempty"`
	Failed     []Failure  `json:"failed,omitempty"`
}

// NeedsManualReview returns the IDs of every conflicted task.
func (r *Report) NeedsManualReview() []string {
	ids := make([]string, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		ids = append(ids, c.TaskID)
	}
	return ids
}

// HasFindings reports whether the run produced anything a human must look at.
func (r *Report) HasFindings() bool {
	return len(r.Conflicts) > 0 || len(r.Failed) > 0
}

// Summary renders the one-line operator summary. Full detail stays in the
// report; aggregation never loses findings.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d unchanged, %d applied, %d conflicts, %d failed",
		len(r.Unchanged), len(r.Applied), len(r.Conflicts), len(r.Failed))
}
