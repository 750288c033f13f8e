package syncer

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/warren/pkg/task"
)

// PolicyMostComplete is the named tie-break policy: per field, the longer,
// more complete value wins; the monolith wins exact ties so the outcome is
// deterministic. The policy name is recorded on every decision it makes.
// Whole-record semantic merging is deliberately out of scope; the conflict
// is always flagged for manual review regardless of what the policy wrote.
const PolicyMostComplete = "most-complete"

type mergeField struct {
	name string
	get  func(*task.Task) interface{}
	set  func(dst *task.Task, src *task.Task)
}

// mergeFields covers every data field of a task record. Sync metadata is
// excluded: it is store-local, not content.
var mergeFields = []mergeField{
	{"title", func(t *task.Task) interface{} { return t.Title },
		func(d, s *task.Task) { d.Title = s.Title }},
	{"status", func(t *task.Task) interface{} { return t.Status },
		func(d, s *task.Task) { d.Status = s.Status }},
	{"complexity", func(t *task.Task) interface{} { return t.Complexity },
		func(d, s *task.Task) { d.Complexity = s.Complexity }},
	{"priority", func(t *task.Task) interface{} { return t.Priority },
		func(d, s *task.Task) { d.Priority = s.Priority }},
	{"type", func(t *task.Task) interface{} { return t.Type },
		func(d, s *task.Task) { d.Type = s.Type }},
	{"depends_on", func(t *task.Task) interface{} { return t.DependsOn },
		func(d, s *task.Task) { d.DependsOn = s.DependsOn }},
	{"context", func(t *task.Task) interface{} { return t.Context },
		func(d, s *task.Task) { d.Context = s.Context }},
	{"testing", func(t *task.Task) interface{} { return t.Testing },
		func(d, s *task.Task) { d.Testing = s.Testing }},
	{"acceptance", func(t *task.Task) interface{} { return t.Acceptance },
		func(d, s *task.Task) { d.Acceptance = s.Acceptance }},
	{"done", func(t *task.Task) interface{} { return t.Definition },
		func(d, s *task.Task) { d.Definition = s.Definition }},
	{"risk", func(t *task.Task) interface{} { return t.Risk },
		func(d, s *task.Task) { d.Risk = s.Risk }},
	{"refs", func(t *task.Task) interface{} { return t.Refs },
		func(d, s *task.Task) { d.Refs = s.Refs }},
	{"subtasks", func(t *task.Task) interface{} { return t.Subtasks },
		func(d, s *task.Task) { d.Subtasks = s.Subtasks }},
	{"notes", func(t *task.Task) interface{} { return t.Notes },
		func(d, s *task.Task) { d.Notes = s.Notes }},
}

// merge resolves a conflict between the two sides of one task. It returns
// the merged record (built field-by-field under PolicyMostComplete) and one
// decision per differing field, carrying both prior values.
func merge(mono, dist *task.Task) (*task.Task, []FieldDecision) {
	merged := mono.Clone()
	merged.Meta = nil

	var decisions []FieldDecision
	for _, f := range mergeFields {
		mv := renderFieldValue(f.get(mono))
		dv := renderFieldValue(f.get(dist))
		if mv == dv {
			continue
		}

		d := FieldDecision{
			Field:       f.name,
			Monolith:    mv,
			Distributed: dv,
			Policy:      PolicyMostComplete,
		}
		if len(dv) > len(mv) {
			d.Winner = "distributed"
			f.set(merged, dist)
		} else {
			d.Winner = "monolith"
		}
		decisions = append(decisions, d)
	}

	return merged, decisions
}

// renderFieldValue gives a canonical, comparable rendering of one field.
// YAML keeps it readable in reports; empty values normalize to "".
func renderFieldValue(v interface{}) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	s := strings.TrimSpace(string(data))
	switch s {
	case "null", "{}", "[]", `""`:
		return ""
	}
	return s
}
