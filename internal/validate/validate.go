// Package validate runs integrity checks across both task stores.
//
// A run never repairs anything and never stops at the first problem: every
// finding is enumerated with the entity it concerns, so an operator can fix
// the whole batch in one pass.
package validate

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

// Scope selects which check families a run performs.
type Scope string

const (
	// ScopeStructural checks each entity in isolation: required fields,
	// enum values, subtask key ownership, and recorded checksums.
	ScopeStructural Scope = "structural"

	// ScopeReferential checks the dependency graph: dangling references
	// and cycles.
	ScopeReferential Scope = "referential"

	// ScopeRoundTrip re-renders and re-parses documents and verifies the
	// result is field-equal to the original.
	ScopeRoundTrip Scope = "round-trip"

	// ScopeFull runs every check family.
	ScopeFull Scope = "full"
)

// Validate checks if the Scope is a valid enum value.
func (s Scope) Validate() error {
	switch s {
	case ScopeStructural, ScopeReferential, ScopeRoundTrip, ScopeFull:
		return nil
	default:
		return fmt.Errorf("unknown validation scope: %q", s)
	}
}

// Severity grades a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one problem discovered in one entity (or, for document-level
// problems, in one store).
type Finding struct {
	EntityID string   `json:"entity_id,omitempty"`
	Store    string   `json:"store,omitempty"`
	Severity Severity `json:"severity"`
	Check    string   `json:"check"`
	Message  string   `json:"message"`
}

// Report is the complete outcome of one validation run.
type Report struct {
	Scope      Scope     `json:"scope"`
	Entities   int       `json:"entities"`
	Findings   []Finding `json:"findings,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// HasErrors reports whether any finding is error-grade.
func (r *Report) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Summary renders the one-line operator summary.
func (r *Report) Summary() string {
	errs, warns := 0, 0
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			errs++
		} else {
			warns++
		}
	}
	return fmt.Sprintf("%d entities checked, %d errors, %d warnings", r.Entities, errs, warns)
}

// Validator runs integrity checks over the two stores.
type Validator struct {
	mono *store.Monolith
	dist *store.Distributed

	// roundTripSample caps how many entities per store the round-trip
	// check covers; 0 means all. Selection is deterministic (sorted IDs).
	roundTripSample int

	logger zerolog.Logger
}

// New creates a validator over the given stores.
func New(mono *store.Monolith, dist *store.Distributed, roundTripSample int, logger zerolog.Logger) *Validator {
	return &Validator{mono: mono, dist: dist, roundTripSample: roundTripSample, logger: logger}
}

// Run performs one validation pass. Only I/O failures are errors; integrity
// problems are findings in the report.
func (v *Validator) Run(ctx context.Context, scope Scope) (*Report, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	report := &Report{Scope: scope, StartedAt: time.Now().UTC()}

	monoTasks, monoErrs, err := v.mono.Load()
	if err != nil {
		return nil, err
	}
	distTasks, distErrs, err := v.dist.LoadAll()
	if err != nil {
		return nil, err
	}
	report.Entities = len(monoTasks) + len(distTasks)

	// Parse defects are structural findings regardless of scope: every
	// other check runs over what the parser could recover.
	addParseFindings(report, monoErrs, "monolith")
	addParseFindings(report, distErrs, "distributed")

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if scope == ScopeStructural || scope == ScopeFull {
		v.checkStructural(report, monoTasks, "monolith")
		v.checkStructural(report, distTasks, "distributed")
	}
	if scope == ScopeReferential || scope == ScopeFull {
		v.checkReferential(report, monoTasks, distTasks)
	}
	if scope == ScopeRoundTrip || scope == ScopeFull {
		v.checkRoundTripMonolith(report, monoTasks)
		v.checkRoundTripDistributed(report, distTasks)
	}

	report.FinishedAt = time.Now().UTC()
	v.logger.Info().
		Str("scope", string(scope)).
		Int("entities", report.Entities).
		Int("findings", len(report.Findings)).
		Msg("validation pass complete")
	return report, nil
}

func addParseFindings(report *Report, errs []codec.ParseError, storeName string) {
	for _, pe := range errs {
		report.Findings = append(report.Findings, Finding{
			EntityID: pe.TaskID,
			Store:    storeName,
			Severity: SeverityError,
			Check:    "parse",
			Message:  pe.Error(),
		})
	}
}

// checkStructural validates each entity in isolation.
func (v *Validator) checkStructural(report *Report, tasks []*task.Task, storeName string) {
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			report.Findings = append(report.Findings, Finding{
				EntityID: t.ID,
				Store:    storeName,
				Severity: SeverityError,
				Check:    "structural",
				Message:  err.Error(),
			})
		}

		if storeName != "distributed" {
			continue
		}
		if t.Meta == nil {
			report.Findings = append(report.Findings, Finding{
				EntityID: t.ID,
				Store:    storeName,
				Severity: SeverityError,
				Check:    "checksum",
				Message:  "document carries no sync metadata",
			})
			continue
		}
		sum, err := task.Checksum(t)
		if err != nil {
			report.Findings = append(report.Findings, Finding{
				EntityID: t.ID,
				Store:    storeName,
				Severity: SeverityError,
				Check:    "checksum",
				Message:  err.Error(),
			})
			continue
		}
		if sum != t.Meta.Checksum {
			report.Findings = append(report.Findings, Finding{
				EntityID: t.ID,
				Store:    storeName,
				Severity: SeverityError,
				Check:    "checksum",
				Message:  fmt.Sprintf("recorded checksum %s does not match recomputed %s", t.Meta.Checksum, sum),
			})
		}
	}
}

// checkReferential validates the dependency graph over the union of both
// stores: a reference is satisfied if its target exists anywhere.
func (v *Validator) checkReferential(report *Report, monoTasks, distTasks []*task.Task) {
	known := map[string]bool{}
	deps := map[string][]string{}
	for _, t := range append(append([]*task.Task{}, monoTasks...), distTasks...) {
		known[t.ID] = true
		if _, ok := deps[t.ID]; !ok {
			deps[t.ID] = t.Dependencies()
		}
	}

	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		for _, target := range deps[id] {
			if !known[target] {
				report.Findings = append(report.Findings, Finding{
					EntityID: id,
					Severity: SeverityError,
					Check:    "referential",
					Message:  fmt.Sprintf("dependency %q does not exist in either store", target),
				})
			}
		}
	}

	for _, cycle := range findCycles(ids, deps, known) {
		report.Findings = append(report.Findings, Finding{
			EntityID: cycle[0],
			Severity: SeverityError,
			Check:    "referential",
			Message:  fmt.Sprintf("dependency cycle: %s", joinCycle(cycle)),
		})
	}
}

// checkRoundTripMonolith verifies render/re-parse stability for a sample of
// monolith entities.
func (v *Validator) checkRoundTripMonolith(report *Report, tasks []*task.Task) {
	sample := v.sampleTasks(tasks)
	if len(sample) == 0 {
		return
	}

	rendered := codec.RenderMonolith(sample)
	reparsed, errs := codec.ParseMonolith(rendered)
	if len(errs) > 0 {
		for _, pe := range errs {
			report.Findings = append(report.Findings, Finding{
				EntityID: pe.TaskID,
				Store:    "monolith",
				Severity: SeverityError,
				Check:    "round-trip",
				Message:  fmt.Sprintf("re-parse failed: %s", pe.Error()),
			})
		}
		return
	}

	byID := map[string]*task.Task{}
	for _, t := range reparsed {
		byID[t.ID] = t
	}
	for _, orig := range sample {
		v.compareRoundTrip(report, "monolith", orig, byID[orig.ID])
	}
}

// checkRoundTripDistributed does the same per entity document.
func (v *Validator) checkRoundTripDistributed(report *Report, tasks []*task.Task) {
	for _, orig := range v.sampleTasks(tasks) {
		data, err := codec.RenderEntity(orig)
		if err != nil {
			report.Findings = append(report.Findings, Finding{
				EntityID: orig.ID,
				Store:    "distributed",
				Severity: SeverityError,
				Check:    "round-trip",
				Message:  err.Error(),
			})
			continue
		}
		reparsed, errs := codec.ParseEntity(data)
		if len(errs) > 0 {
			report.Findings = append(report.Findings, Finding{
				EntityID: orig.ID,
				Store:    "distributed",
				Severity: SeverityError,
				Check:    "round-trip",
				Message:  fmt.Sprintf("re-parse failed: %s", errs[0].Error()),
			})
			continue
		}
		v.compareRoundTrip(report, "distributed", orig, reparsed)
	}
}

// compareRoundTrip checks field equality through the content checksum, which
// already covers every data field and ignores store-local metadata.
func (v *Validator) compareRoundTrip(report *Report, storeName string, orig, reparsed *task.Task) {
	if reparsed == nil {
		report.Findings = append(report.Findings, Finding{
			EntityID: orig.ID,
			Store:    storeName,
			Severity: SeverityError,
			Check:    "round-trip",
			Message:  "entity lost during re-parse",
		})
		return
	}
	origSum, err := task.Checksum(orig)
	if err != nil {
		report.Findings = append(report.Findings, Finding{
			EntityID: orig.ID, Store: storeName, Severity: SeverityError,
			Check: "round-trip", Message: err.Error(),
		})
		return
	}
	newSum, err := task.Checksum(reparsed)
	if err != nil {
		report.Findings = append(report.Findings, Finding{
			EntityID: orig.ID, Store: storeName, Severity: SeverityError,
			Check: "round-trip", Message: err.Error(),
		})
		return
	}
	if origSum != newSum {
		report.Findings = append(report.Findings, Finding{
			EntityID: orig.ID,
			Store:    storeName,
			Severity: SeverityError,
			Check:    "round-trip",
			Message:  "entity is not stable through render and re-parse",
		})
	}
}

// sampleTasks returns the round-trip sample: the first N entities by sorted
// ID, or all of them when the sample size is 0 or exceeds the store.
func (v *Validator) sampleTasks(tasks []*task.Task) []*task.Task {
	sorted := append([]*task.Task{}, tasks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	if v.roundTripSample <= 0 || v.roundTripSample >= len(sorted) {
		return sorted
	}
	return sorted[:v.roundTripSample]
}
