// Package codec is the single place that understands concrete document
// layout. It parses the monolithic task-database document and per-task
// distributed documents into task entities, and renders entities back into
// either form.
//
// Parsing is total: a malformed record produces ParseErrors attached to a
// best-effort partial entity instead of aborting the parse, so validators can
// report every defect in one pass. Rendering normalizes whitespace and set
// ordering; the guaranteed invariant is the semantic round-trip,
// parse(render(parse(d))) field-equal to parse(d).
package codec

import "fmt"

// ParseError describes one defect found while parsing a document. It is
// collected, never thrown: a batch parse returns every error it found.
type ParseError struct {
	TaskID string // Task the defect belongs to, if attributable
	Line   int    // 1-based line number in the source document, 0 if unknown
	Msg    string
}

func (e ParseError) Error() string {
	switch {
	case e.TaskID != "" && e.Line > 0:
		return fmt.Sprintf("%s (line %d): %s", e.TaskID, e.Line, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	case e.TaskID != "":
		return fmt.Sprintf("%s: %s", e.TaskID, e.Msg)
	default:
		return e.Msg
	}
}
