package codec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dyluth/warren/pkg/task"
)

// Monolith document grammar (line oriented, hand written):
//
//	## [T-01] Title text
//	Priority: high
//	Type: feature
//	Complexity: 7
//	Status: free text on one line
//	Depends: T-02, T-03
//	Stack: go, redis
//	Protocols: http
//	Libraries: cobra
//	Risk: high | mitigation text | certification name
//	Testing:
//	- unit: table-driven parser tests
//	Acceptance:
//	- [x] a completed criterion
//	- [ ] an open criterion
//	Done:
//	- [ ] definition-of-done entry
//	Refs:
//	- dependency T-02: needs the schema first
//	Subtasks:
//	- [R1.WP2-T-01-1] write the line parser
//	  points: 3
//	  status: in_progress 40%
//	  deliverable: parser handles the fixture corpus
//	  stack: go
//	Notes:
//	free text, preserved verbatim until the next task heading; a notes
//	line that starts like a task heading is rendered with a leading
//	backslash so it cannot terminate the block
//
// Everything before the first task heading is document preamble and carries
// no task data.

type section int

const (
	sectionFields section = iota
	sectionTesting
	sectionAcceptance
	sectionDone
	sectionRefs
	sectionSubtasks
	sectionNotes
)

const taskHeadingPrefix = "## ["

// ParseMonolith parses the monolithic document into task entities. Malformed
// lines produce ParseErrors attached to the task being parsed; the parse
// always continues to the end of the document.
func ParseMonolith(data []byte) ([]*task.Task, []ParseError) {
	lines := strings.Split(string(data), "\n")

	var (
		tasks []*task.Task
		errs  []ParseError
		seen  = make(map[string]bool)

		cur    *task.Task
		curDup bool // current heading was a duplicate ID; parse but discard
		sec    section
		notes  []string
		curSub *task.Subtask
	)

	addErr := func(line int, format string, a ...any) {
		id := ""
		if cur != nil {
			id = cur.ID
		}
		errs = append(errs, ParseError{TaskID: id, Line: line, Msg: fmt.Sprintf(format, a...)})
	}

	flush := func() {
		if cur == nil {
			return
		}
		cur.Notes = strings.TrimRight(strings.TrimLeft(strings.Join(notes, "\n"), "\n"), " \t\n")
		if !curDup {
			tasks = append(tasks, cur)
		}
		cur, curDup, notes, curSub = nil, false, nil, nil
		sec = sectionFields
	}

	for i, raw := range lines {
		n := i + 1

		if strings.HasPrefix(raw, taskHeadingPrefix) {
			flush()
			id, title, err := parseHeading(raw)
			cur = &task.Task{ID: id, Title: title}
			if err != nil {
				addErr(n, "%v", err)
			}
			if id != "" && seen[id] {
				addErr(n, "duplicate task ID %q: keeping the first occurrence", id)
				curDup = true
			}
			seen[id] = true
			continue
		}

		if cur == nil {
			continue // preamble
		}

		if sec == sectionNotes {
			notes = append(notes, unescapeNotesLine(raw))
			continue
		}

		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			curSub = nil
			continue
		}

		switch trimmed {
		case "Testing:":
			sec = sectionTesting
			continue
		case "Acceptance:":
			sec = sectionAcceptance
			continue
		case "Done:":
			sec = sectionDone
			continue
		case "Refs:":
			sec = sectionRefs
			continue
		case "Subtasks:":
			sec = sectionSubtasks
			continue
		case "Notes:":
			sec = sectionNotes
			notes = nil
			continue
		}

		// Indented continuation lines inside the subtask block attach fields
		// to the subtask opened by the preceding "- [" line.
		if sec == sectionSubtasks && curSub != nil && strings.HasPrefix(raw, "  ") && !strings.HasPrefix(trimmed, "- ") {
			if err := parseSubtaskField(curSub, trimmed); err != nil {
				addErr(n, "%v", err)
			}
			continue
		}

		if strings.HasPrefix(trimmed, "- ") {
			item := trimmed[2:]
			switch sec {
			case sectionTesting:
				name, desc, ok := splitKV(item)
				if !ok || name == "" {
					addErr(n, "malformed testing entry %q: want '- category: description'", trimmed)
					continue
				}
				if cur.Testing == nil {
					cur.Testing = make(map[string]string)
				}
				cur.Testing[name] = desc
			case sectionAcceptance, sectionDone:
				ci, err := parseChecklistItem(item)
				if err != nil {
					addErr(n, "%v", err)
					continue
				}
				if sec == sectionAcceptance {
					cur.Acceptance = append(cur.Acceptance, ci)
				} else {
					cur.Definition = append(cur.Definition, ci)
				}
			case sectionRefs:
				ref, err := parseRef(item)
				if err != nil {
					addErr(n, "%v", err)
				}
				cur.Refs = append(cur.Refs, ref)
			case sectionSubtasks:
				st, err := parseSubtaskHeader(item)
				if err != nil {
					addErr(n, "%v", err)
				}
				cur.Subtasks = append(cur.Subtasks, st)
				curSub = &cur.Subtasks[len(cur.Subtasks)-1]
			default:
				addErr(n, "unexpected list item outside a block section: %q", trimmed)
			}
			continue
		}

		// A plain key/value line ends any block section.
		sec = sectionFields
		key, value, ok := splitKV(trimmed)
		if !ok {
			addErr(n, "unparseable line: %q", trimmed)
			continue
		}
		if err := setTaskField(cur, key, value); err != nil {
			addErr(n, "%v", err)
		}
	}
	flush()

	return tasks, errs
}

// RenderMonolith serializes tasks into the normalized monolithic document
// form. Section order and set ordering are deterministic; per-task notes are
// emitted verbatim.
func RenderMonolith(tasks []*task.Task) []byte {
	var b strings.Builder
	b.WriteString("# Task Database\n")

	for _, t := range tasks {
		b.WriteString("\n")
		fmt.Fprintf(&b, "## [%s] %s\n", t.ID, t.Title)
		fmt.Fprintf(&b, "Priority: %s\n", t.Priority)
		fmt.Fprintf(&b, "Type: %s\n", t.Type)
		fmt.Fprintf(&b, "Complexity: %d\n", t.Complexity)
		fmt.Fprintf(&b, "Status: %s\n", t.Status)
		if len(t.DependsOn) > 0 {
			fmt.Fprintf(&b, "Depends: %s\n", strings.Join(t.DependsOn, ", "))
		}
		writeContext(&b, t.Context, "")
		if t.Risk != nil {
			b.WriteString("Risk: " + t.Risk.Level)
			if t.Risk.Mitigation != "" || t.Risk.Certification != "" {
				b.WriteString(" | " + t.Risk.Mitigation)
			}
			if t.Risk.Certification != "" {
				b.WriteString(" | " + t.Risk.Certification)
			}
			b.WriteString("\n")
		}
		if len(t.Testing) > 0 {
			b.WriteString("Testing:\n")
			for _, name := range sortedKeys(t.Testing) {
				fmt.Fprintf(&b, "- %s: %s\n", name, t.Testing[name])
			}
		}
		writeChecklist(&b, "Acceptance:", t.Acceptance)
		writeChecklist(&b, "Done:", t.Definition)
		if len(t.Refs) > 0 {
			b.WriteString("Refs:\n")
			for _, ref := range t.Refs {
				if ref.Note != "" {
					fmt.Fprintf(&b, "- %s %s: %s\n", ref.Type, ref.Target, ref.Note)
				} else {
					fmt.Fprintf(&b, "- %s %s\n", ref.Type, ref.Target)
				}
			}
		}
		if len(t.Subtasks) > 0 {
			b.WriteString("Subtasks:\n")
			for i := range t.Subtasks {
				writeSubtask(&b, &t.Subtasks[i])
			}
		}
		if t.Notes != "" {
			b.WriteString("Notes:\n")
			for _, line := range strings.Split(t.Notes, "\n") {
				b.WriteString(escapeNotesLine(line))
				b.WriteString("\n")
			}
		}
	}

	return []byte(b.String())
}

// escapeNotesLine protects a notes line that would otherwise be re-parsed
// as a task heading. A leading backslash is added before "## [" (and before
// an already-backslashed form, so escaping nests); unescapeNotesLine strips
// exactly one on parse. All other lines pass through untouched.
func escapeNotesLine(line string) string {
	if strings.HasPrefix(strings.TrimLeft(line, `\`), taskHeadingPrefix) {
		return `\` + line
	}
	return line
}

func unescapeNotesLine(line string) string {
	if strings.HasPrefix(line, `\`) && strings.HasPrefix(strings.TrimLeft(line, `\`), taskHeadingPrefix) {
		return line[1:]
	}
	return line
}

func parseHeading(line string) (id, title string, err error) {
	rest := strings.TrimPrefix(line, taskHeadingPrefix)
	end := strings.Index(rest, "]")
	if end < 0 {
		return "", strings.TrimSpace(rest), fmt.Errorf("malformed task heading %q: missing ']'", line)
	}
	id = rest[:end]
	title = strings.TrimSpace(rest[end+1:])
	if err := task.ValidateID(id); err != nil {
		return id, title, err
	}
	return id, title, nil
}

func setTaskField(t *task.Task, key, value string) error {
	switch key {
	case "Priority":
		t.Priority = task.Priority(value)
		return t.Priority.Validate()
	case "Type":
		t.Type = task.TaskType(value)
		return t.Type.Validate()
	case "Complexity":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("complexity %q is not a number", value)
		}
		t.Complexity = n
	case "Status":
		t.Status = value
	case "Depends":
		t.DependsOn = splitList(value)
	case "Stack":
		t.Context.Stack = splitList(value)
	case "Protocols":
		t.Context.Protocols = splitList(value)
	case "Libraries":
		t.Context.Libraries = splitList(value)
	case "Risk":
		parts := strings.Split(value, "|")
		r := task.RiskProfile{Level: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			r.Mitigation = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			r.Certification = strings.TrimSpace(parts[2])
		}
		t.Risk = &r
	default:
		return fmt.Errorf("unknown field %q", key)
	}
	return nil
}

func parseChecklistItem(item string) (task.ChecklistItem, error) {
	switch {
	case strings.HasPrefix(item, "[x] "):
		return task.ChecklistItem{Text: item[4:], Done: true}, nil
	case strings.HasPrefix(item, "[ ] "):
		return task.ChecklistItem{Text: item[4:]}, nil
	default:
		return task.ChecklistItem{}, fmt.Errorf("malformed checklist entry %q: want '- [x] text' or '- [ ] text'", item)
	}
}

func parseRef(item string) (task.CrossReference, error) {
	typePart, rest, found := strings.Cut(item, " ")
	if !found || rest == "" {
		return task.CrossReference{Target: item}, fmt.Errorf("malformed reference %q: want '- <type> <target>[: note]'", item)
	}
	ref := task.CrossReference{Type: task.RefType(typePart)}
	target, note, _ := strings.Cut(rest, ":")
	ref.Target = strings.TrimSpace(target)
	ref.Note = strings.TrimSpace(note)
	if err := ref.Type.Validate(); err != nil {
		return ref, err
	}
	return ref, nil
}

func parseSubtaskHeader(item string) (task.Subtask, error) {
	if !strings.HasPrefix(item, "[") {
		return task.Subtask{Description: item, Status: task.SubtaskPending},
			fmt.Errorf("malformed subtask %q: want '- [<wii>] description'", item)
	}
	end := strings.Index(item, "]")
	if end < 0 {
		return task.Subtask{Description: item, Status: task.SubtaskPending},
			fmt.Errorf("malformed subtask %q: missing ']'", item)
	}
	st := task.Subtask{
		Description: strings.TrimSpace(item[end+1:]),
		Status:      task.SubtaskPending,
	}
	wii, err := task.ParseWII(item[1:end])
	if err != nil {
		return st, err
	}
	st.WII = wii
	return st, nil
}

func parseSubtaskField(st *task.Subtask, line string) error {
	key, value, ok := splitKV(line)
	if !ok {
		return fmt.Errorf("unparseable subtask field: %q", line)
	}
	switch key {
	case "points":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("subtask points %q is not a number", value)
		}
		st.Points = n
	case "status":
		status, pct, found := strings.Cut(value, " ")
		st.Status = task.SubtaskStatus(status)
		if found {
			n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(pct), "%"))
			if err != nil {
				return fmt.Errorf("subtask completion %q is not a percentage", pct)
			}
			st.Completion = n
		}
		return st.Status.Validate()
	case "deliverable":
		st.Deliverable = value
	case "stack":
		ensureContext(st).Stack = splitList(value)
	case "protocols":
		ensureContext(st).Protocols = splitList(value)
	case "libraries":
		ensureContext(st).Libraries = splitList(value)
	default:
		return fmt.Errorf("unknown subtask field %q", key)
	}
	return nil
}

func writeSubtask(b *strings.Builder, st *task.Subtask) {
	fmt.Fprintf(b, "- [%s] %s\n", st.WII, st.Description)
	fmt.Fprintf(b, "  points: %d\n", st.Points)
	if st.Completion > 0 {
		fmt.Fprintf(b, "  status: %s %d%%\n", st.Status, st.Completion)
	} else {
		fmt.Fprintf(b, "  status: %s\n", st.Status)
	}
	if st.Deliverable != "" {
		fmt.Fprintf(b, "  deliverable: %s\n", st.Deliverable)
	}
	if st.Context != nil {
		writeContext(b, *st.Context, "  ")
	}
}

func writeContext(b *strings.Builder, tc task.TechnicalContext, indent string) {
	write := func(label string, set []string) {
		if len(set) == 0 {
			return
		}
		sorted := append([]string(nil), set...)
		sort.Strings(sorted)
		if indent != "" {
			label = strings.ToLower(label)
		}
		fmt.Fprintf(b, "%s%s: %s\n", indent, label, strings.Join(sorted, ", "))
	}
	write("Stack", tc.Stack)
	write("Protocols", tc.Protocols)
	write("Libraries", tc.Libraries)
}

func writeChecklist(b *strings.Builder, header string, items []task.ChecklistItem) {
	if len(items) == 0 {
		return
	}
	b.WriteString(header + "\n")
	for _, ci := range items {
		mark := " "
		if ci.Done {
			mark = "x"
		}
		fmt.Fprintf(b, "- [%s] %s\n", mark, ci.Text)
	}
}

func ensureContext(st *task.Subtask) *task.TechnicalContext {
	if st.Context == nil {
		st.Context = &task.TechnicalContext{}
	}
	return st.Context
}

func splitKV(line string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(line, ":")
	return strings.TrimSpace(key), strings.TrimSpace(value), ok
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
