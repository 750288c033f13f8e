package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/warren/pkg/task"
)

func entityFixture() *task.Task {
	sum := "0000000000000000000000000000000000000000000000000000000000000000"
	return &task.Task{
		ID:         "T-01",
		Title:      "Build the document codec",
		Status:     "renderer in progress",
		Complexity: 7,
		Priority:   task.PriorityHigh,
		Type:       task.TypeFeature,
		DependsOn:  []string{"T-02"},
		Context:    task.TechnicalContext{Stack: []string{"go"}},
		Testing:    map[string]string{"unit": "table-driven parser tests"},
		Acceptance: []task.ChecklistItem{{Text: "deterministic output", Done: true}},
		Subtasks: []task.Subtask{{
			WII:         task.WII{Release: "R1", WorkPackage: "WP2", TaskID: "T-01", Sequence: 1},
			Description: "write the line parser",
			Points:      3,
			Status:      task.SubtaskDone,
		}},
		Notes: "front matter is authoritative",
		Meta: &task.SyncMetadata{
			LastSynced:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			Checksum:      sum,
			Origin:        "monolith",
			Phase:         "migration",
			SchemaVersion: 2,
		},
	}
}

func TestEntity_RoundTrip(t *testing.T) {
	doc, err := RenderEntity(entityFixture())
	require.NoError(t, err)

	parsed, errs := ParseEntity(doc)
	require.Empty(t, errs)

	assert.True(t, task.Equal(entityFixture(), parsed), "entity changed across render/parse")
	require.NotNil(t, parsed.Meta)
	assert.Equal(t, "monolith", parsed.Meta.Origin)
	assert.Equal(t, 2, parsed.Meta.SchemaVersion)
	assert.Equal(t, "R1.WP2-T-01-1", parsed.Subtasks[0].WII.String())
}

func TestRenderEntity_BodyMirrorsFrontMatter(t *testing.T) {
	doc, err := RenderEntity(entityFixture())
	require.NoError(t, err)
	text := string(doc)

	assert.True(t, strings.HasPrefix(text, "---\n"))
	assert.Contains(t, text, "# [T-01] Build the document codec")
	assert.Contains(t, text, "Status: renderer in progress")
	assert.Contains(t, text, "- [R1.WP2-T-01-1] write the line parser")
	assert.Contains(t, text, "schema v2")
}

func TestParseEntity_MissingFrontMatter(t *testing.T) {
	_, errs := ParseEntity([]byte("# just a body\n"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Msg, "missing front-matter")
}

func TestParseEntity_UnterminatedFrontMatter(t *testing.T) {
	_, errs := ParseEntity([]byte("---\nid: T-01\n"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Msg, "unterminated")
}

func TestParseEntity_MissingSyncMetadata(t *testing.T) {
	fx := entityFixture()
	fx.Meta = nil
	doc, err := RenderEntity(fx)
	require.NoError(t, err)

	parsed, errs := ParseEntity(doc)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Msg, "sync metadata")
	assert.Equal(t, "T-01", parsed.ID, "partial entity still carries parsed fields")
}

func TestParseEntity_BadYAML(t *testing.T) {
	doc := "---\nid: [unclosed\n---\n"
	_, errs := ParseEntity([]byte(doc))
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Msg, "invalid front matter")
}
