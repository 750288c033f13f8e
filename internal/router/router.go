// Package router is the single query surface over the two task stores.
//
// External tooling never reads store files directly; every read and update
// goes through here. The configured mode decides which store serves reads
// and which one updates write to, and hybrid mode makes the monolith
// fallback explicit and logged rather than silent.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/warren/internal/codec"
	"github.com/dyluth/warren/internal/config"
	"github.com/dyluth/warren/internal/queue"
	"github.com/dyluth/warren/internal/store"
	"github.com/dyluth/warren/pkg/task"
)

// ErrUnknownField is returned for a field name no operation recognizes.
var ErrUnknownField = errors.New("unknown field")

// FieldFull requests the whole record instead of a single field.
const FieldFull = "full"

// Router routes reads and updates to the right store for the configured
// mode. It is stateless; every call re-reads from disk.
type Router struct {
	mode   config.Mode
	mono   *store.Monolith
	dist   *store.Distributed
	queue  *queue.Client // nil disables sync-request queueing
	phase  string
	logger zerolog.Logger
}

// New creates a router. q may be nil when no Redis is configured.
func New(mode config.Mode, mono *store.Monolith, dist *store.Distributed, q *queue.Client, phase string, logger zerolog.Logger) *Router {
	return &Router{mode: mode, mono: mono, dist: dist, queue: q, phase: phase, logger: logger}
}

// Authority reports which store is authoritative for writes right now.
// In hybrid mode the distributed store is the migration target and owns
// updates; the monolith is read fallback only.
func (r *Router) Authority() string {
	if r.mode == config.ModeMonolith {
		return "monolith"
	}
	return "distributed"
}

// GetTask returns one full task record from the mode's read store.
func (r *Router) GetTask(ctx context.Context, id string) (*task.Task, error) {
	switch r.mode {
	case config.ModeMonolith:
		return firstClean(r.mono.LoadTask(id))
	case config.ModeDistributed:
		return firstClean(r.dist.LoadTaskVerified(ctx, id))
	default:
		t, err := firstClean(r.dist.LoadTaskVerified(ctx, id))
		if err == nil || !errors.Is(err, store.ErrNotFound) {
			return t, err
		}
		r.logger.Warn().
			Str("task_id", id).
			Msg("task missing from distributed store, falling back to monolith")
		return firstClean(r.mono.LoadTask(id))
	}
}

// GetTaskData returns one field of a task rendered as text, or the whole
// record as YAML when field is "full".
func (r *Router) GetTaskData(ctx context.Context, id, field string) (string, error) {
	t, err := r.GetTask(ctx, id)
	if err != nil {
		return "", err
	}
	if field == FieldFull {
		clean := t.Clone()
		clean.Meta = nil
		data, err := yaml.Marshal(clean)
		if err != nil {
			return "", fmt.Errorf("failed to render task %s: %w", id, err)
		}
		return string(data), nil
	}
	return fieldValue(t, field)
}

// GetWIISubtasks returns a task's work items.
func (r *Router) GetWIISubtasks(ctx context.Context, id string) ([]task.Subtask, error) {
	t, err := r.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Subtasks, nil
}

// Filter narrows ListTasks output. Zero values match everything; Status
// matches as a case-insensitive substring because status is free text.
type Filter struct {
	Priority task.Priority
	Type     task.TaskType
	Status   string
}

// Matches reports whether a task passes the filter.
func (f Filter) Matches(t *task.Task) bool {
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Status != "" && !strings.Contains(strings.ToLower(t.Status), strings.ToLower(f.Status)) {
		return false
	}
	return true
}

// ListTasks returns every task passing the filter, sorted by ID. Hybrid
// mode lists the union of both stores, preferring the distributed copy of
// a task present in both.
func (r *Router) ListTasks(ctx context.Context, filter Filter) ([]*task.Task, error) {
	byID := map[string]*task.Task{}

	if r.mode == config.ModeMonolith || r.mode == config.ModeHybrid {
		tasks, _, err := r.mono.Load()
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			byID[t.ID] = t
		}
	}
	if r.mode == config.ModeDistributed || r.mode == config.ModeHybrid {
		tasks, _, err := r.dist.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			byID[t.ID] = t
		}
	}

	var out []*task.Task
	for _, t := range byID {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateTaskStatus sets a task's status field.
func (r *Router) UpdateTaskStatus(ctx context.Context, id, status string) error {
	return r.UpdateField(ctx, id, "status", status)
}

// UpdateField applies one field update to the authoritative store under its
// exclusive lock, then enqueues a sync request. The enqueue is best-effort
// and never blocks the caller on the secondary store.
func (r *Router) UpdateField(ctx context.Context, id, field, value string) error {
	var err error
	if r.Authority() == "monolith" {
		err = r.updateMonolith(ctx, id, field, value)
	} else {
		err = r.updateDistributed(ctx, id, field, value)
	}
	if err != nil {
		return err
	}

	if qErr := r.queue.Enqueue(ctx, &queue.Request{
		TaskID: id,
		Origin: r.Authority(),
		Reason: "field-update",
	}); qErr != nil {
		// The primary write already succeeded; a queue outage only delays
		// reconciliation until the next manual sync.
		r.logger.Warn().Str("task_id", id).Err(qErr).Msg("failed to enqueue sync request")
	}
	return nil
}

func (r *Router) updateMonolith(ctx context.Context, id, field, value string) error {
	lock, err := r.mono.Lock(ctx)
	if err != nil {
		return err
	}
	defer lock.Release()

	t, _, err := r.mono.LoadTask(id)
	if err != nil {
		return err
	}
	if err := applyField(t, field, value); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	return r.mono.WriteTask(t)
}

func (r *Router) updateDistributed(ctx context.Context, id, field, value string) error {
	lock, err := r.dist.Lock(ctx)
	if err != nil {
		return err
	}
	defer lock.Release()

	t, parseErrs, err := r.dist.LoadTask(id)
	if err != nil {
		return err
	}
	if len(parseErrs) > 0 {
		return fmt.Errorf("task %s is unreadable: %w", id, parseErrs[0])
	}
	if err := applyField(t, field, value); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}

	sum, err := task.Checksum(t)
	if err != nil {
		return err
	}
	version := 1
	if t.Meta != nil {
		version = t.Meta.SchemaVersion + 1
	}
	t.Meta = &task.SyncMetadata{
		LastSynced:    time.Now().UTC(),
		Checksum:      sum,
		Origin:        "distributed",
		Phase:         r.phase,
		SchemaVersion: version,
	}
	return r.dist.WriteTask(t)
}

// applyField mutates one writable field from its text form.
func applyField(t *task.Task, field, value string) error {
	switch field {
	case "title":
		t.Title = value
	case "status":
		t.Status = value
	case "notes":
		t.Notes = value
	case "priority":
		t.Priority = task.Priority(value)
	case "type":
		t.Type = task.TaskType(value)
	case "complexity":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("complexity must be an integer: %w", err)
		}
		t.Complexity = n
	case "depends_on":
		var deps []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				deps = append(deps, part)
			}
		}
		t.DependsOn = deps
	default:
		return fmt.Errorf("%w: %q is not updatable", ErrUnknownField, field)
	}
	return nil
}

// fieldValue renders one readable field as text.
func fieldValue(t *task.Task, field string) (string, error) {
	switch field {
	case "title":
		return t.Title, nil
	case "status":
		return t.Status, nil
	case "notes":
		return t.Notes, nil
	case "priority":
		return string(t.Priority), nil
	case "type":
		return string(t.Type), nil
	case "complexity":
		return strconv.Itoa(t.Complexity), nil
	case "depends_on":
		return strings.Join(t.DependsOn, ", "), nil
	case "context", "testing", "acceptance", "done", "risk", "refs", "subtasks":
		return renderYAMLField(t, field)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

func renderYAMLField(t *task.Task, field string) (string, error) {
	var v interface{}
	switch field {
	case "context":
		v = t.Context
	case "testing":
		v = t.Testing
	case "acceptance":
		v = t.Acceptance
	case "done":
		v = t.Definition
	case "risk":
		v = t.Risk
	case "refs":
		v = t.Refs
	case "subtasks":
		v = t.Subtasks
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to render field %q: %w", field, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// firstClean adapts a store read: a task that loaded with parse defects is
// not served as clean data.
func firstClean(t *task.Task, errs []codec.ParseError, err error) (*task.Task, error) {
	if err != nil {
		return nil, err
	}
	for _, pe := range errs {
		if pe.TaskID == "" || (t != nil && pe.TaskID == t.ID) {
			return nil, pe
		}
	}
	return t, nil
}
