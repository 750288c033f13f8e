package validate

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

func newTestValidator(t *testing.T, sample int) (*store.Monolith, *store.Distributed, *Validator) {
	t.Helper()
	root := t.TempDir()
	lockDir := filepath.Join(root, ".warren", "locks")
	mono := store.NewMonolith(filepath.Join(root, "TASKS.md"), lockDir, time.Second)
	dist := store.NewDistributed(filepath.Join(root, "tasks"), lockDir, time.Second, 10*time.Millisecond)
	return mono, dist, New(mono, dist, sample, zerolog.Nop())
}

func validTask(id string) *task.Task {
	return &task.Task{
		ID:       id,
		Title:    "A well-formed task",
		Status:   "in progress",
		Priority: task.PriorityMedium,
		Type:     task.TypeFeature,
	}
}

func writeDistributed(t *testing.T, dist *store.Distributed, tk *task.Task) {
	t.Helper()
	sum, err := task.Checksum(tk)
	require.NoError(t, err)
	tk.Meta = &task.SyncMetadata{
		LastSynced:    time.Now().UTC(),
		Checksum:      sum,
		Origin:        "distributed",
		Phase:         "migration",
		SchemaVersion: 1,
	}
	require.NoError(t, dist.WriteTask(tk))
}

func findingsFor(r *Report, check string) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Check == check {
			out = append(out, f)
		}
	}
	return out
}

func TestRunCleanStores(t *testing.T) {
	mono, dist, v := newTestValidator(t, 0)
	require.NoError(t, mono.WriteTask(validTask("T-01")))
	writeDistributed(t, dist, validTask("T-01"))

	report, err := v.Run(context.Background(), ScopeFull)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
	assert.False(t, report.HasErrors())
	assert.Equal(t, 2, report.Entities)
}

func TestRunStructuralFindings(t *testing.T) {
	mono, dist, v := newTestValidator(t, 0)

	bad := validTask("T-01")
	bad.Priority = "urgent" // not a valid enum value
	require.NoError(t, mono.WriteTask(bad))

	// A distributed document whose recorded checksum no longer matches.
	stale := validTask("T-02")
	writeDistributed(t, dist, stale)
	tampered, _, err := dist.LoadTask("T-02")
	require.NoError(t, err)
	tampered.Title = "Edited behind the checksum's back"
	require.NoError(t, dist.WriteTask(tampered))

	report, err := v.Run(context.Background(), ScopeStructural)
	require.NoError(t, err)
	assert.True(t, report.HasErrors())

	structural := findingsFor(report, "structural")
	require.Len(t, structural, 1)
	assert.Equal(t, "T-01", structural[0].EntityID)

	checksum := findingsFor(report, "checksum")
	require.Len(t, checksum, 1)
	assert.Equal(t, "T-02", checksum[0].EntityID)
	assert.Equal(t, SeverityError, checksum[0].Severity)
}

func TestRunMissingSyncMetadata(t *testing.T) {
	_, dist, v := newTestValidator(t, 0)
	bare := validTask("T-01")
	require.NoError(t, dist.WriteTask(bare)) // Meta never populated

	report, err := v.Run(context.Background(), ScopeStructural)
	require.NoError(t, err)
	assert.True(t, report.HasErrors())
	// Both the parser and the checksum check flag the missing block.
	assert.NotEmpty(t, findingsFor(report, "checksum"))
}

func TestRunDanglingDependency(t *testing.T) {
	mono, _, v := newTestValidator(t, 0)
	tk := validTask("T-01")
	tk.DependsOn = []string{"T-99"}
	require.NoError(t, mono.WriteTask(tk))

	report, err := v.Run(context.Background(), ScopeReferential)
	require.NoError(t, err)

	refs := findingsFor(report, "referential")
	require.Len(t, refs, 1)
	assert.Equal(t, "T-01", refs[0].EntityID)
	assert.Contains(t, refs[0].Message, "T-99")
}

func TestRunDependencySatisfiedAcrossStores(t *testing.T) {
	mono, dist, v := newTestValidator(t, 0)
	tk := validTask("T-01")
	tk.DependsOn = []string{"T-02"}
	require.NoError(t, mono.WriteTask(tk))
	writeDistributed(t, dist, validTask("T-02"))

	report, err := v.Run(context.Background(), ScopeReferential)
	require.NoError(t, err)
	assert.Empty(t, findingsFor(report, "referential"))
}

func TestRunDependencyCycle(t *testing.T) {
	mono, _, v := newTestValidator(t, 0)
	a := validTask("T-01")
	a.DependsOn = []string{"T-02"}
	b := validTask("T-02")
	b.DependsOn = []string{"T-03"}
	c := validTask("T-03")
	c.DependsOn = []string{"T-01"}
	require.NoError(t, mono.WriteTask(a))
	require.NoError(t, mono.WriteTask(b))
	require.NoError(t, mono.WriteTask(c))

	report, err := v.Run(context.Background(), ScopeReferential)
	require.NoError(t, err)

	refs := findingsFor(report, "referential")
	require.Len(t, refs, 1)
	assert.Contains(t, refs[0].Message, "cycle")
	assert.Contains(t, refs[0].Message, "T-01 -> T-02 -> T-03 -> T-01")
}

func TestRunReportsEveryDisjointCycle(t *testing.T) {
	mono, _, v := newTestValidator(t, 0)
	pairs := [][2]string{{"T-01", "T-02"}, {"T-03", "T-04"}}
	for _, p := range pairs {
		a := validTask(p[0])
		a.DependsOn = []string{p[1]}
		b := validTask(p[1])
		b.DependsOn = []string{p[0]}
		require.NoError(t, mono.WriteTask(a))
		require.NoError(t, mono.WriteTask(b))
	}

	report, err := v.Run(context.Background(), ScopeReferential)
	require.NoError(t, err)

	refs := findingsFor(report, "referential")
	require.Len(t, refs, 2, "both independent cycles surface in one run")
	assert.Contains(t, refs[0].Message, "T-01 -> T-02 -> T-01")
	assert.Contains(t, refs[1].Message, "T-03 -> T-04 -> T-03")
}

func TestRunRoundTripStability(t *testing.T) {
	mono, dist, v := newTestValidator(t, 0)

	rich := validTask("T-01")
	rich.DependsOn = []string{"T-02"}
	rich.Context = task.TechnicalContext{Stack: []string{"go", "redis"}}
	rich.Acceptance = []task.ChecklistItem{{Text: "parses", Done: true}}
	rich.Notes = "Free-form narrative.\n\nWith a blank line."
	rich.Subtasks = []task.Subtask{{
		WII:         task.WII{Release: "R1", WorkPackage: "WP1", TaskID: "T-01", Sequence: 1},
		Description: "first slice",
		Points:      2,
		Status:      task.SubtaskPending,
	}}
	require.NoError(t, mono.WriteTask(rich))
	require.NoError(t, mono.WriteTask(validTask("T-02")))
	writeDistributed(t, dist, validTask("T-02"))

	report, err := v.Run(context.Background(), ScopeRoundTrip)
	require.NoError(t, err)
	assert.Empty(t, findingsFor(report, "round-trip"))
}

func TestRunRoundTripSampleLimit(t *testing.T) {
	mono, _, v := newTestValidator(t, 1)
	require.NoError(t, mono.WriteTask(validTask("T-01")))
	require.NoError(t, mono.WriteTask(validTask("T-02")))

	// Sampling is a cap, not a correctness change: a clean store stays
	// clean whichever entities get picked.
	report, err := v.Run(context.Background(), ScopeRoundTrip)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestRunCollectsEveryFinding(t *testing.T) {
	mono, dist, v := newTestValidator(t, 0)

	bad := validTask("T-01")
	bad.Type = "chore"
	bad.DependsOn = []string{"T-404"}
	require.NoError(t, mono.WriteTask(bad))

	// An unparseable distributed document on top.
	require.NoError(t, os.MkdirAll(dist.Dir(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dist.Dir(), "T-02.md"), []byte("garbage"), 0644))

	report, err := v.Run(context.Background(), ScopeFull)
	require.NoError(t, err)

	assert.NotEmpty(t, findingsFor(report, "parse"))
	assert.NotEmpty(t, findingsFor(report, "structural"))
	assert.NotEmpty(t, findingsFor(report, "referential"))
	assert.True(t, report.HasErrors())
}

func TestScopeValidate(t *testing.T) {
	for _, s := range []Scope{ScopeStructural, ScopeReferential, ScopeRoundTrip, ScopeFull} {
		assert.NoError(t, s.Validate())
	}
	assert.Error(t, Scope("partial").Validate())

	_, _, v := newTestValidator(t, 0)
	_, err := v.Run(context.Background(), Scope("partial"))
	assert.Error(t, err)
}
