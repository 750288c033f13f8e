// Package syncer reconciles the monolith and distributed task stores.
//
// A run locks both stores, classifies every task against the checksums
// recorded at the last successful sync, applies one-sided changes in the
// requested direction, and resolves genuine conflicts with a named
// per-field tie-break policy. Every conflicted task is flagged for manual
// review regardless of what the policy wrote. Failures are isolated per
// task: a record that cannot be parsed or written never aborts the run.
package syncer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/dyluth/warren/internal/codec"
	"github.com/dyluth/warren/internal/store"
	"github.com/dyluth/warren/pkg/task"
)

// Engine performs synchronization runs between the two stores.
type Engine struct {
	mono      *store.Monolith
	dist      *store.Distributed
	statePath string
	phase     string
	logger    zerolog.Logger
}

// New creates a sync engine. statePath is where recorded per-task checksums
// live; phase is stamped into distributed sync metadata on every write.
func New(mono *store.Monolith, dist *store.Distributed, statePath, phase string, logger zerolog.Logger) *Engine {
	return &Engine{
		mono:      mono,
		dist:      dist,
		statePath: statePath,
		phase:     phase,
		logger:    logger,
	}
}

// Sync runs one synchronization pass in the given direction.
//
// Both stores are locked for the whole run, monolith first, so concurrent
// runs cannot deadlock. On context cancellation the pass stops at the next
// task boundary: state for already-synced tasks is saved and the partial
// report is returned alongside the context error.
func (e *Engine) Sync(ctx context.Context, direction Direction) (*Report, error) {
	if err := direction.Validate(); err != nil {
		return nil, err
	}

	monoLock, err := e.mono.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock monolith store: %w", err)
	}
	defer monoLock.Release()

	distLock, err := e.dist.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock distributed store: %w", err)
	}
	defer distLock.Release()

	state, err := LoadState(e.statePath)
	if err != nil {
		return nil, err
	}

	report := &Report{Direction: direction, StartedAt: time.Now().UTC()}

	monoTasks, monoErrs, err := e.mono.Load()
	if err != nil {
		return nil, err
	}
	distTasks, distErrs, err := e.dist.LoadAll()
	if err != nil {
		return nil, err
	}

	failed := map[string]bool{}
	recordParseFailures(report, failed, monoErrs, "monolith")
	recordParseFailures(report, failed, distErrs, "distributed")

	monoByID := taskMap(monoTasks)
	distByID := taskMap(distTasks)
	ids := unionIDs(monoByID, distByID, state)

	var runErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if failed[id] {
			// The record is present but unreadable on at least one side.
			// Leaving state untouched means no change, and in particular
			// no delete, is inferred from it.
			continue
		}
		e.syncOne(report, state, direction, id, monoByID[id], distByID[id])
	}

	report.FinishedAt = time.Now().UTC()
	if err := state.Save(e.statePath); err != nil {
		return report, err
	}

	e.logger.Info().
		Str("direction", string(direction)).
		Int("unchanged", len(report.Unchanged)).
		Int("applied", len(report.Applied)).
		Int("conflicts", len(report.Conflicts)).
		Int("failed", len(report.Failed)).
		Msg("sync pass complete")

	return report, runErr
}

// syncOne classifies and reconciles a single task. mono and dist are nil
// when the task is absent from that store.
func (e *Engine) syncOne(report *Report, state *State, direction Direction, id string, mono, dist *task.Task) {
	curMono, err := checksumOrAbsent(mono)
	if err != nil {
		report.Failed = append(report.Failed, Failure{TaskID: id, Stage: "write", Msg: err.Error()})
		return
	}
	curDist, err := checksumOrAbsent(dist)
	if err != nil {
		report.Failed = append(report.Failed, Failure{TaskID: id, Stage: "write", Msg: err.Error()})
		return
	}

	rec := state.Get(id)
	monoChanged := curMono != rec.Monolith
	distChanged := curDist != rec.Distributed

	switch {
	case !monoChanged && !distChanged:
		if mono == nil && dist == nil {
			state.Forget(id)
			return
		}
		report.Unchanged = append(report.Unchanged, id)

	case curMono == curDist:
		// Both sides changed to identical content (or both deleted the
		// task). They already agree; record the convergence.
		if mono == nil && dist == nil {
			state.Forget(id)
		} else {
			state.Set(id, curMono, curDist, time.Now().UTC())
		}
		report.Unchanged = append(report.Unchanged, id)

	case monoChanged && distChanged:
		e.resolveConflict(report, state, direction, id, mono, dist, curMono, curDist)

	case monoChanged:
		e.propagate(report, state, direction, id, mono, "monolith", curMono, curDist, rec)

	default:
		e.propagate(report, state, direction, id, dist, "distributed", curMono, curDist, rec)
	}
}

// propagate applies a one-sided change from source to the other store, if
// the direction permits writing there. A change the direction excludes is
// left pending: nothing is written and state is not advanced, so a later
// run in the permitting direction still sees it.
func (e *Engine) propagate(report *Report, state *State, direction Direction, id string, src *task.Task, source, curMono, curDist string, rec TaskState) {
	now := time.Now().UTC()

	if source == "monolith" {
		if !direction.writesDistributed() {
			return
		}
		kind := changeKind(src, rec.Distributed)
		if err := e.writeDistributed(id, src, source); err != nil {
			report.Failed = append(report.Failed, Failure{TaskID: id, Stage: "write", Msg: err.Error()})
			return
		}
		state.Set(id, curMono, curMono, now)
		if src == nil {
			state.Forget(id)
		}
		report.Applied = append(report.Applied, Change{TaskID: id, Kind: kind, Source: "monolith", Target: "distributed"})
		return
	}

	if !direction.writesMonolith() {
		return
	}
	kind := changeKind(src, rec.Monolith)
	if err := e.writeMonolith(id, src); err != nil {
		report.Failed = append(report.Failed, Failure{TaskID: id, Stage: "write", Msg: err.Error()})
		return
	}
	state.Set(id, curDist, curDist, now)
	if src == nil {
		state.Forget(id)
	}
	report.Applied = append(report.Applied, Change{TaskID: id, Kind: kind, Source: "distributed", Target: "monolith"})
}

// resolveConflict handles a task that diverged on both sides since the last
// sync. The tie-break output must land in both stores, so a one-way run
// cannot resolve a conflict: writing one store while recording the pair as
// reconciled would make every later pass classify the still-divergent task
// as unchanged. Such a conflict is deferred: nothing is written, state is
// not advanced, and a later bidirectional run re-detects and resolves it.
func (e *Engine) resolveConflict(report *Report, state *State, direction Direction, id string, mono, dist *task.Task, curMono, curDist string) {
	merged, decisions := resolveRecords(mono, dist, curMono, curDist)

	if !direction.writesMonolith() || !direction.writesDistributed() {
		e.logger.Warn().
			Str("task_id", id).
			Str("direction", string(direction)).
			Msg("conflict deferred: a one-way sync cannot write the tie-break to both stores")
		report.Conflicts = append(report.Conflicts, Conflict{TaskID: id, Decisions: decisions, Deferred: true})
		return
	}

	mergedSum := task.AbsentChecksum
	if merged != nil {
		sum, err := task.Checksum(merged)
		if err != nil {
			report.Failed = append(report.Failed, Failure{TaskID: id, Stage: "write", Msg: err.Error()})
			return
		}
		mergedSum = sum
	}

	if err := e.writeMonolith(id, merged); err != nil {
		report.Failed = append(report.Failed, Failure{TaskID: id, Stage: "write", Msg: err.Error()})
		return
	}
	if err := e.writeDistributed(id, merged, "merge"); err != nil {
		report.Failed = append(report.Failed, Failure{TaskID: id, Stage: "write", Msg: err.Error()})
		return
	}

	if merged == nil {
		state.Forget(id)
	} else {
		state.Set(id, mergedSum, mergedSum, time.Now().UTC())
	}

	e.logger.Warn().
		Str("task_id", id).
		Int("fields", len(decisions)).
		Msg("conflict resolved by tie-break, flagged for manual review")

	report.Conflicts = append(report.Conflicts, Conflict{TaskID: id, Decisions: decisions})
}

// resolveRecords produces the merged record for a conflict. When one side
// deleted the task and the other edited it, the edit wins: an existing
// record is always more complete than an absent one.
func resolveRecords(mono, dist *task.Task, curMono, curDist string) (*task.Task, []FieldDecision) {
	switch {
	case mono == nil:
		return dist.Clone(), []FieldDecision{{
			Field:       "record",
			Monolith:    curMono,
			Distributed: curDist,
			Winner:      "distributed",
			Policy:      PolicyMostComplete,
		}}
	case dist == nil:
		return mono.Clone(), []FieldDecision{{
			Field:       "record",
			Monolith:    curMono,
			Distributed: curDist,
			Winner:      "monolith",
			Policy:      PolicyMostComplete,
		}}
	default:
		return merge(mono, dist)
	}
}

// writeDistributed writes or deletes one per-task document, stamping fresh
// sync metadata. Any mid-write failure restores the document's prior bytes
// so a failed task never leaves the store half-written.
func (e *Engine) writeDistributed(id string, t *task.Task, origin string) error {
	prior, err := e.dist.ReadRawTask(id)
	if err != nil {
		return fmt.Errorf("failed to capture task %s before write: %w", id, err)
	}

	if t == nil {
		return e.dist.DeleteTask(id)
	}

	stamped := t.Clone()
	sum, err := task.Checksum(stamped)
	if err != nil {
		return err
	}
	version := 1
	if cur, _, err := e.dist.LoadTask(id); err == nil && cur.Meta != nil {
		version = cur.Meta.SchemaVersion + 1
	}
	stamped.Meta = &task.SyncMetadata{
		LastSynced:    time.Now().UTC(),
		Checksum:      sum,
		Origin:        origin,
		Phase:         e.phase,
		SchemaVersion: version,
	}

	if err := e.dist.WriteTask(stamped); err != nil {
		if rbErr := e.dist.WriteRawTask(id, prior); rbErr != nil {
			return fmt.Errorf("write failed (%v) and rollback failed: %w", err, rbErr)
		}
		return err
	}
	return nil
}

// writeMonolith writes or deletes one task in the monolith. The document
// rewrite is already atomic, but a render failure after a successful
// capture still restores the prior bytes.
func (e *Engine) writeMonolith(id string, t *task.Task) error {
	prior, err := e.mono.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to capture monolith before write: %w", err)
	}

	if t == nil {
		err = e.mono.DeleteTask(id)
	} else {
		err = e.mono.WriteTask(t)
	}
	if err != nil {
		if rbErr := e.mono.RestoreSnapshot(prior); rbErr != nil {
			return fmt.Errorf("write failed (%v) and rollback failed: %w", err, rbErr)
		}
		return err
	}
	return nil
}

func recordParseFailures(report *Report, failed map[string]bool, errs []codec.ParseError, storeName string) {
	for _, pe := range errs {
		if pe.TaskID != "" {
			failed[pe.TaskID] = true
		}
		report.Failed = append(report.Failed, Failure{
			TaskID: pe.TaskID,
			Stage:  "parse",
			Msg:    fmt.Sprintf("%s: %s", storeName, pe.Error()),
		})
	}
}

func checksumOrAbsent(t *task.Task) (string, error) {
	if t == nil {
		return task.AbsentChecksum, nil
	}
	return task.Checksum(t)
}

func changeKind(src *task.Task, targetRecorded string) ChangeKind {
	switch {
	case src == nil:
		return ChangeDelete
	case targetRecorded == task.AbsentChecksum:
		return ChangeCreate
	default:
		return ChangeUpdate
	}
}

func taskMap(tasks []*task.Task) map[string]*task.Task {
	m := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return m
}

func unionIDs(mono, dist map[string]*task.Task, state *State) []string {
	seen := map[string]bool{}
	for id := range mono {
		seen[id] = true
	}
	for id := range dist {
		seen[id] = true
	}
	for id := range state.Tasks {
		seen[id] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
