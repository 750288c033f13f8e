package codec

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/warren/pkg/task"
)

// Distributed-store documents carry a YAML front-matter block followed by a
// human-readable body. The front matter is authoritative and encodes every
// task and subtask field plus sync metadata; the body is regenerated from it
// on every render and is never parsed back.

const frontMatterDelim = "---"

// ParseEntity parses one per-task document. The body is ignored; only the
// front matter is read. A document with no front-matter block, or with YAML
// that does not decode, yields a best-effort partial entity plus ParseErrors.
func ParseEntity(data []byte) (*task.Task, []ParseError) {
	text := string(data)
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return &task.Task{}, []ParseError{{Msg: "missing front-matter block: document must start with '---'"}}
	}
	rest := text[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		return &task.Task{}, []ParseError{{Msg: "unterminated front-matter block: missing closing '---'"}}
	}
	front := rest[:end]

	var t task.Task
	if err := yaml.Unmarshal([]byte(front), &t); err != nil {
		return &t, []ParseError{{TaskID: t.ID, Msg: fmt.Sprintf("invalid front matter: %v", err)}}
	}

	var errs []ParseError
	if err := task.ValidateID(t.ID); err != nil {
		errs = append(errs, ParseError{TaskID: t.ID, Msg: err.Error()})
	}
	if t.Meta == nil {
		errs = append(errs, ParseError{TaskID: t.ID, Msg: "front matter is missing the sync metadata block"})
	}
	return &t, errs
}

// RenderEntity serializes a task into per-entity document form: authoritative
// front matter plus a regenerated readable body mirroring it. Unordered sets
// are sorted in the rendered output via the canonical form of the body.
func RenderEntity(t *task.Task) ([]byte, error) {
	front, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal front matter for %s: %w", t.ID, err)
	}

	var b strings.Builder
	b.WriteString(frontMatterDelim + "\n")
	b.Write(front)
	b.WriteString(frontMatterDelim + "\n\n")
	writeEntityBody(&b, t)
	return []byte(b.String()), nil
}

// writeEntityBody emits the human-readable mirror of the front matter. It
// reuses the monolith section layout so the two dialects read the same way.
func writeEntityBody(b *strings.Builder, t *task.Task) {
	fmt.Fprintf(b, "# [%s] %s\n\n", t.ID, t.Title)
	fmt.Fprintf(b, "Priority: %s\n", t.Priority)
	fmt.Fprintf(b, "Type: %s\n", t.Type)
	fmt.Fprintf(b, "Complexity: %d\n", t.Complexity)
	fmt.Fprintf(b, "Status: %s\n", t.Status)
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(b, "Depends: %s\n", strings.Join(t.DependsOn, ", "))
	}
	writeContext(b, t.Context, "")
	if len(t.Testing) > 0 {
		b.WriteString("Testing:\n")
		for _, name := range sortedKeys(t.Testing) {
			fmt.Fprintf(b, "- %s: %s\n", name, t.Testing[name])
		}
	}
	writeChecklist(b, "Acceptance:", t.Acceptance)
	writeChecklist(b, "Done:", t.Definition)
	if len(t.Subtasks) > 0 {
		b.WriteString("Subtasks:\n")
		for i := range t.Subtasks {
			writeSubtask(b, &t.Subtasks[i])
		}
	}
	if t.Notes != "" {
		b.WriteString("Notes:\n")
		b.WriteString(t.Notes)
		b.WriteString("\n")
	}
	if t.Meta != nil {
		fmt.Fprintf(b, "\n<!-- synced %s from %s, schema v%d -->\n",
			t.Meta.LastSynced.UTC().Format("2006-01-02T15:04:05Z"), t.Meta.Origin, t.Meta.SchemaVersion)
	}
}
