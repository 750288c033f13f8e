package task

import (
	"fmt"
	"strconv"
	"strings"
)

// WII (Work Item Identifier) is the composite key identifying a subtask
// within a release/work-package/task hierarchy. Its canonical text form is
//
//	<release>.<work-package>-<task_id>-<sequence>
//
// e.g. "R1.WP2-T-01-3". Task IDs may themselves contain dashes, so parsing
// anchors on the single dot separating release from work package, the first
// dash after the work package, and the final dash before the sequence.
type WII struct {
	Release     string `yaml:"release"`
	WorkPackage string `yaml:"work_package"`
	TaskID      string `yaml:"task_id"`
	Sequence    int    `yaml:"sequence"`
}

// ParseWII parses the canonical composite-key form into its four components.
func ParseWII(s string) (WII, error) {
	dot := strings.Index(s, ".")
	if dot <= 0 {
		return WII{}, fmt.Errorf("invalid WII %q: missing release separator '.'", s)
	}
	release := s[:dot]
	rest := s[dot+1:]

	firstDash := strings.Index(rest, "-")
	if firstDash <= 0 {
		return WII{}, fmt.Errorf("invalid WII %q: missing work-package separator '-'", s)
	}
	workPackage := rest[:firstDash]
	rest = rest[firstDash+1:]

	lastDash := strings.LastIndex(rest, "-")
	if lastDash <= 0 || lastDash == len(rest)-1 {
		return WII{}, fmt.Errorf("invalid WII %q: missing sequence component", s)
	}
	taskID := rest[:lastDash]
	seq, err := strconv.Atoi(rest[lastDash+1:])
	if err != nil {
		return WII{}, fmt.Errorf("invalid WII %q: sequence %q is not a number", s, rest[lastDash+1:])
	}

	w := WII{Release: release, WorkPackage: workPackage, TaskID: taskID, Sequence: seq}
	if err := w.Validate(); err != nil {
		return WII{}, err
	}
	return w, nil
}

// String renders the canonical composite-key form.
func (w WII) String() string {
	return fmt.Sprintf("%s.%s-%s-%d", w.Release, w.WorkPackage, w.TaskID, w.Sequence)
}

// Validate checks that every component of the key is populated and the
// sequence number is positive.
func (w WII) Validate() error {
	if w.Release == "" {
		return fmt.Errorf("WII: release is required")
	}
	if w.WorkPackage == "" {
		return fmt.Errorf("WII: work package is required")
	}
	if strings.Contains(w.Release, ".") || strings.Contains(w.Release, "-") {
		return fmt.Errorf("WII: release %q must not contain '.' or '-'", w.Release)
	}
	if strings.Contains(w.WorkPackage, "-") {
		return fmt.Errorf("WII: work package %q must not contain '-'", w.WorkPackage)
	}
	if err := ValidateID(w.TaskID); err != nil {
		return fmt.Errorf("WII: %w", err)
	}
	if w.Sequence < 1 {
		return fmt.Errorf("WII: sequence must be >= 1, got %d", w.Sequence)
	}
	return nil
}

// MarshalYAML encodes the key in its canonical text form so front-matter
// documents stay compact and hand-readable.
func (w WII) MarshalYAML() (interface{}, error) {
	return w.String(), nil
}

// UnmarshalYAML accepts the canonical text form.
func (w *WII) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseWII(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
