package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/warren/internal/store"
	"github.com/dyluth/warren/pkg/task"
)

func newTestEngine(t *testing.T) (*store.Monolith, *store.Distributed, *Engine) {
	t.Helper()
	root := t.TempDir()
	lockDir := filepath.Join(root, ".warren", "locks")
	mono := store.NewMonolith(filepath.Join(root, "TASKS.md"), lockDir, time.Second)
	dist := store.NewDistributed(filepath.Join(root, "tasks"), lockDir, time.Second, 10*time.Millisecond)
	eng := New(mono, dist, filepath.Join(root, ".warren", "syncstate.yaml"), "migration", zerolog.Nop())
	return mono, dist, eng
}

func sampleTask(id, title string) *task.Task {
	return &task.Task{
		ID:         id,
		Title:      title,
		Status:     "in progress",
		Complexity: 3,
		Priority:   task.PriorityHigh,
		Type:       task.TypeFeature,
		Acceptance: []task.ChecklistItem{{Text: "works end to end"}},
	}
}

// editDistributed simulates an external tool modifying a per-task document:
// it mutates the record, recomputes the checksum, and restamps metadata.
func editDistributed(t *testing.T, dist *store.Distributed, id string, mutate func(*task.Task)) {
	t.Helper()
	cur, _, err := dist.LoadTask(id)
	require.NoError(t, err)
	mutate(cur)
	sum, err := task.Checksum(cur)
	require.NoError(t, err)
	version := 1
	if cur.Meta != nil {
		version = cur.Meta.SchemaVersion + 1
	}
	cur.Meta = &task.SyncMetadata{
		LastSynced:    time.Now().UTC(),
		Checksum:      sum,
		Origin:        "distributed",
		Phase:         "migration",
		SchemaVersion: version,
	}
	require.NoError(t, dist.WriteTask(cur))
}

func TestSyncCreatesDistributedFromMonolith(t *testing.T) {
	mono, dist, eng := newTestEngine(t)
	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Build the parser")))

	report, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)

	require.Len(t, report.Applied, 1)
	assert.Equal(t, "T-01", report.Applied[0].TaskID)
	assert.Equal(t, ChangeCreate, report.Applied[0].Kind)
	assert.Equal(t, "monolith", report.Applied[0].Source)
	assert.Equal(t, "distributed", report.Applied[0].Target)
	assert.Empty(t, report.Conflicts)
	assert.Empty(t, report.Failed)

	got, parseErrs, err := dist.LoadTask("T-01")
	require.NoError(t, err)
	assert.Empty(t, parseErrs)
	assert.Equal(t, "Build the parser", got.Title)
	require.NotNil(t, got.Meta)
	assert.Equal(t, 1, got.Meta.SchemaVersion)
	assert.Equal(t, "monolith", got.Meta.Origin)
	sum, err := task.Checksum(got)
	require.NoError(t, err)
	assert.Equal(t, sum, got.Meta.Checksum)
}

func TestSyncIsIdempotent(t *testing.T) {
	mono, _, eng := newTestEngine(t)
	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Build the parser")))
	require.NoError(t, mono.WriteTask(sampleTask("T-02", "Wire the router")))

	_, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)

	second, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	assert.Empty(t, second.Applied)
	assert.Empty(t, second.Conflicts)
	assert.Empty(t, second.Failed)
	assert.ElementsMatch(t, []string{"T-01", "T-02"}, second.Unchanged)

	third, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	assert.Empty(t, third.Applied)
}

func TestSyncPropagatesDistributedEdit(t *testing.T) {
	mono, dist, eng := newTestEngine(t)
	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Build the parser")))
	_, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)

	editDistributed(t, dist, "T-01", func(cur *task.Task) {
		cur.Status = "complete"
	})

	report, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	require.Len(t, report.Applied, 1)
	assert.Equal(t, ChangeUpdate, report.Applied[0].Kind)
	assert.Equal(t, "distributed", report.Applied[0].Source)
	assert.Equal(t, "monolith", report.Applied[0].Target)

	got, _, err := mono.LoadTask("T-01")
	require.NoError(t, err)
	assert.Equal(t, "complete", got.Status)
}

func TestSyncConflictFlagsManualReview(t *testing.T) {
	mono, dist, eng := newTestEngine(t)
	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Initial title")))
	_, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)

	// Both sides edit the same field independently. The distributed side's
	// value is longer, so it wins the tie-break.
	edited := sampleTask("T-01", "Auth")
	require.NoError(t, mono.WriteTask(edited))
	editDistributed(t, dist, "T-01", func(cur *task.Task) {
		cur.Title = "Authentication and session handling"
	})

	report, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	assert.Empty(t, report.Applied)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, []string{"T-01"}, report.NeedsManualReview())
	assert.True(t, report.HasFindings())

	conflict := report.Conflicts[0]
	require.Len(t, conflict.Decisions, 1)
	d := conflict.Decisions[0]
	assert.Equal(t, "title", d.Field)
	assert.Equal(t, "Auth", d.Monolith)
	assert.Equal(t, "Authentication and session handling", d.Distributed)
	assert.Equal(t, "distributed", d.Winner)
	assert.Equal(t, PolicyMostComplete, d.Policy)

	// Tie-break output landed in both stores.
	monoGot, _, err := mono.LoadTask("T-01")
	require.NoError(t, err)
	assert.Equal(t, "Authentication and session handling", monoGot.Title)
	distGot, _, err := dist.LoadTask("T-01")
	require.NoError(t, err)
	assert.Equal(t, "Authentication and session handling", distGot.Title)

	// A conflicted run converges: the next pass sees no drift.
	after, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	assert.Empty(t, after.Applied)
	assert.Empty(t, after.Conflicts)
}

func TestSyncMonolithWinsExactTie(t *testing.T) {
	mono, dist, eng := newTestEngine(t)
	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Initial")))
	_, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)

	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Alpha")))
	editDistributed(t, dist, "T-01", func(cur *task.Task) {
		cur.Title = "Bravo"
	})

	report, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 1)
	d := report.Conflicts[0].Decisions[0]
	assert.Equal(t, "monolith", d.Winner)

	got, _, err := dist.LoadTask("T-01")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Title)
}

func TestSyncDirectionGatesWrites(t *testing.T) {
	mono, dist, eng := newTestEngine(t)
	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Initial")))
	_, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)

	edited := sampleTask("T-01", "Initial")
	edited.Status = "complete"
	require.NoError(t, mono.WriteTask(edited))

	// Pulling from distributed must not push the monolith edit out.
	report, err := eng.Sync(context.Background(), DistributedToMonolith)
	require.NoError(t, err)
	assert.Empty(t, report.Applied)
	assert.Empty(t, report.Conflicts)

	got, _, err := dist.LoadTask("T-01")
	require.NoError(t, err)
	assert.Equal(t, "in progress", got.Status)

	// The change is still pending; a permitting run applies it.
	report, err = eng.Sync(context.Background(), MonolithToDistributed)
	require.NoError(t, err)
	require.Len(t, report.Applied, 1)
	assert.Equal(t, ChangeUpdate, report.Applied[0].Kind)

	got, _, err = dist.LoadTask("T-01")
	require.NoError(t, err)
	assert.Equal(t, "complete", got.Status)
}

func TestSyncDefersConflictOnOneWayRun(t *testing.T) {
	mono, dist, eng := newTestEngine(t)
	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Base")))
	_, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)

	// Split-field divergence: the monolith edits status, the distributed
	// document edits the title.
	edited := sampleTask("T-01", "Base")
	edited.Status = "blocked on schema review"
	require.NoError(t, mono.WriteTask(edited))
	editDistributed(t, dist, "T-01", func(cur *task.Task) {
		cur.Title = "Base task with a much longer descriptive title"
	})

	// A one-way run cannot write the tie-break to both stores. It must
	// not touch either store or advance state, or the divergence would
	// look reconciled forever after.
	report, err := eng.Sync(context.Background(), MonolithToDistributed)
	require.NoError(t, err)
	assert.Empty(t, report.Applied)
	require.Len(t, report.Conflicts, 1)
	assert.True(t, report.Conflicts[0].Deferred)

	monoGot, _, err := mono.LoadTask("T-01")
	require.NoError(t, err)
	assert.Equal(t, "Base", monoGot.Title)
	distGot, _, err := dist.LoadTask("T-01")
	require.NoError(t, err)
	assert.Equal(t, "in progress", distGot.Status)

	// A later bidirectional run still sees the conflict and reconciles it.
	report, err = eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 1)
	assert.False(t, report.Conflicts[0].Deferred)

	monoGot, _, err = mono.LoadTask("T-01")
	require.NoError(t, err)
	distGot, _, err = dist.LoadTask("T-01")
	require.NoError(t, err)
	assert.Equal(t, "Base task with a much longer descriptive title", monoGot.Title)
	assert.Equal(t, "blocked on schema review", monoGot.Status)
	assert.Equal(t, monoGot.Title, distGot.Title)
	assert.Equal(t, monoGot.Status, distGot.Status)

	// Fully reconciled now.
	report, err = eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	assert.Empty(t, report.Conflicts)
	assert.Equal(t, []string{"T-01"}, report.Unchanged)
}

func TestSyncPropagatesDelete(t *testing.T) {
	mono, dist, eng := newTestEngine(t)
	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Keep me")))
	require.NoError(t, mono.WriteTask(sampleTask("T-02", "Delete me")))
	_, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)

	require.NoError(t, dist.DeleteTask("T-02"))

	report, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	require.Len(t, report.Applied, 1)
	assert.Equal(t, ChangeDelete, report.Applied[0].Kind)
	assert.Equal(t, "monolith", report.Applied[0].Target)

	tasks, _, err := mono.Load()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "T-01", tasks[0].ID)

	// The forgotten task does not reappear on later runs.
	after, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	assert.Empty(t, after.Applied)
	assert.Equal(t, []string{"T-01"}, after.Unchanged)
}

func TestSyncEditWinsOverDelete(t *testing.T) {
	mono, dist, eng := newTestEngine(t)
	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Contested")))
	_, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)

	// One side deletes while the other edits: the edit survives.
	require.NoError(t, mono.DeleteTask("T-01"))
	editDistributed(t, dist, "T-01", func(cur *task.Task) {
		cur.Status = "complete"
	})

	report, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 1)
	require.Len(t, report.Conflicts[0].Decisions, 1)
	d := report.Conflicts[0].Decisions[0]
	assert.Equal(t, "record", d.Field)
	assert.Equal(t, "distributed", d.Winner)
	assert.Equal(t, task.AbsentChecksum, d.Monolith)

	got, _, err := mono.LoadTask("T-01")
	require.NoError(t, err)
	assert.Equal(t, "complete", got.Status)
}

func TestSyncIsolatesParseFailures(t *testing.T) {
	mono, dist, eng := newTestEngine(t)
	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Healthy")))

	// A document with no front matter must not block other tasks.
	require.NoError(t, os.MkdirAll(dist.Dir(), 0755))
	badPath := filepath.Join(dist.Dir(), "T-BAD.md")
	require.NoError(t, os.WriteFile(badPath, []byte("no front matter here\n"), 0644))

	report, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)

	require.Len(t, report.Applied, 1)
	assert.Equal(t, "T-01", report.Applied[0].TaskID)

	require.NotEmpty(t, report.Failed)
	var sawBad bool
	for _, f := range report.Failed {
		if f.TaskID == "T-BAD" {
			sawBad = true
			assert.Equal(t, "parse", f.Stage)
		}
	}
	assert.True(t, sawBad, "expected a parse failure for T-BAD")

	// The unreadable document itself is left alone.
	data, err := os.ReadFile(badPath)
	require.NoError(t, err)
	assert.Equal(t, "no front matter here\n", string(data))
}

func TestSyncStatePersistsAcrossEngines(t *testing.T) {
	mono, dist, eng := newTestEngine(t)
	require.NoError(t, mono.WriteTask(sampleTask("T-01", "Persist me")))
	_, err := eng.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)

	// A fresh engine over the same state file sees a fully synced pair.
	fresh := New(mono, dist, eng.statePath, "migration", zerolog.Nop())
	report, err := fresh.Sync(context.Background(), Bidirectional)
	require.NoError(t, err)
	assert.Empty(t, report.Applied)
	assert.Equal(t, []string{"T-01"}, report.Unchanged)
}

func TestSyncRejectsUnknownDirection(t *testing.T) {
	_, _, eng := newTestEngine(t)
	_, err := eng.Sync(context.Background(), Direction("sideways"))
	assert.Error(t, err)
}

func TestDirectionValidate(t *testing.T) {
	for _, d := range []Direction{MonolithToDistributed, DistributedToMonolith, Bidirectional} {
		assert.NoError(t, d.Validate())
	}
	assert.Error(t, Direction("").Validate())
}
