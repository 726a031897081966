// Package coverage computes, per obligation, how well the available
// evidence atoms satisfy its evidentiary requirements within a reporting
// period. The analyzer is a pure computation over a point-in-time snapshot
// of atoms; it may run concurrently with ongoing ingestion and its output
// is coherent only as of the read instant.
package coverage

import (
	"fmt"
	"sort"
	"time"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
	"github.com/Smarticus81/psur-regos/pkg/registry"
)

// ComputationError reports a malformed case or period. It is fatal for
// that case only.
type ComputationError struct {
	CaseID string
	Reason string
}

// Error implements the error interface.
func (e *ComputationError) Error() string {
	return fmt.Sprintf("coverage: case %s: %s", e.CaseID, e.Reason)
}

// SatisfactionRelation is the explicit many-to-one table mapping an
// available atom type to the required types it satisfies (e.g. a raw
// per-record type satisfies its aggregated type). The relation is data,
// never inferred from type names.
type SatisfactionRelation map[string][]string

// DefaultSatisfactionRelation covers the built-in evidence types.
func DefaultSatisfactionRelation() SatisfactionRelation {
	return SatisfactionRelation{
		"complaint_record": {"complaints_aggregate"},
		"incident_record":  {"incidents_aggregate"},
	}
}

// satisfiers inverts the relation: required type -> contributing types.
func (r SatisfactionRelation) satisfiers(requiredType string) []string {
	var types []string
	for available, satisfies := range r {
		for _, t := range satisfies {
			if t == requiredType {
				types = append(types, available)
			}
		}
	}
	sort.Strings(types)
	return types
}

// Analyzer computes coverage snapshots.
type Analyzer struct {
	registry     *registry.Registry
	satisfaction SatisfactionRelation
	artifactType string
	clock        func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithSatisfactionRelation replaces the default satisfaction table.
func WithSatisfactionRelation(rel SatisfactionRelation) Option {
	return func(a *Analyzer) { a.satisfaction = rel }
}

// WithArtifactType sets the artifact type obligations are selected for.
func WithArtifactType(artifactType string) Option {
	return func(a *Analyzer) { a.artifactType = artifactType }
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return func(a *Analyzer) { a.clock = clock }
}

// NewAnalyzer creates an analyzer over the given registry.
func NewAnalyzer(reg *registry.Registry, opts ...Option) *Analyzer {
	a := &Analyzer{
		registry:     reg,
		satisfaction: DefaultSatisfactionRelation(),
		artifactType: "psur",
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze computes the coverage snapshot for a case over the given atom
// set. Only atoms with status "valid" count as evidence; invalid and
// superseded atoms are excluded.
func (a *Analyzer) Analyze(c contracts.Case, atoms []contracts.EvidenceAtom) (*contracts.CoverageSnapshot, error) {
	if c.CaseID == "" {
		return nil, &ComputationError{CaseID: c.CaseID, Reason: "case ID is required"}
	}
	if !c.Period.Valid() {
		return nil, &ComputationError{CaseID: c.CaseID, Reason: "case period is malformed"}
	}

	byType := make(map[string][]contracts.EvidenceAtom)
	for _, atom := range atoms {
		if atom.Status != contracts.AtomStatusValid {
			continue
		}
		byType[atom.AtomType] = append(byType[atom.AtomType], atom)
	}

	obligations, err := a.registry.ApplicableForCase(c, a.artifactType)
	if err != nil {
		return nil, &ComputationError{CaseID: c.CaseID, Reason: err.Error()}
	}

	snapshot := &contracts.CoverageSnapshot{
		CaseID:      c.CaseID,
		Period:      c.Period,
		Obligations: make(map[string]contracts.ObligationCoverage, len(obligations)),
		ComputedAt:  a.clock().UTC(),
	}

	for _, ob := range obligations {
		oc := a.analyzeObligation(ob, c.Period, byType)
		snapshot.Obligations[ob.ObligationID] = oc

		if oc.Status == contracts.StatusUnsatisfied {
			switch {
			case ob.Kind == contracts.KindConstraint:
				snapshot.Warnings = append(snapshot.Warnings,
					fmt.Sprintf("constraint %s is unsatisfied: %s", ob.ObligationID, firstOrDefault(oc.WhyUnsatisfied, "no evidence")))
			case ob.Mandatory:
				snapshot.Blocking = append(snapshot.Blocking, ob.ObligationID)
			}
		}
	}
	sort.Strings(snapshot.Blocking)
	sort.Strings(snapshot.Warnings)

	return snapshot, nil
}

func (a *Analyzer) analyzeObligation(ob contracts.Obligation, period contracts.Period, byType map[string][]contracts.EvidenceAtom) contracts.ObligationCoverage {
	oc := contracts.ObligationCoverage{
		ObligationID: ob.ObligationID,
		Kind:         ob.Kind,
		Mandatory:    ob.Mandatory,
	}

	// An obligation with no evidentiary requirements is trivially
	// satisfied.
	if len(ob.RequiredEvidenceTypes) == 0 {
		oc.Status = contracts.StatusSatisfied
		return oc
	}

	fullCount := 0
	anyEvidence := false
	for _, requiredType := range ob.RequiredEvidenceTypes {
		tc := a.classifyType(requiredType, period, byType)
		oc.Types = append(oc.Types, tc)

		switch tc.Classification {
		case contracts.CoverageFull:
			fullCount++
			anyEvidence = true
		case contracts.CoveragePartial:
			anyEvidence = true
			oc.WhyUnsatisfied = append(oc.WhyUnsatisfied,
				fmt.Sprintf("%s: evidence only partially covers the reporting period", requiredType))
		case contracts.CoverageOutOfPeriod:
			oc.WhyUnsatisfied = append(oc.WhyUnsatisfied,
				fmt.Sprintf("%s: evidence exists but none overlaps the reporting period", requiredType))
		case contracts.CoverageNone:
			oc.WhyUnsatisfied = append(oc.WhyUnsatisfied,
				fmt.Sprintf("%s: no evidence of this type has been ingested", requiredType))
		}
	}

	switch {
	case fullCount == len(ob.RequiredEvidenceTypes):
		oc.Status = contracts.StatusSatisfied
		oc.WhyUnsatisfied = nil
	case anyEvidence:
		oc.Status = contracts.StatusPartiallySatisfied
	default:
		oc.Status = contracts.StatusUnsatisfied
	}
	return oc
}

// classifyType gathers atoms of the required type plus atoms of any type
// registered as satisfying it, and classifies period coverage. The four
// classes are mutually exclusive:
//
//	full          — at least one atom completely covers the period
//	partial       — some atoms overlap, but none covers completely
//	out_of_period — atoms exist, none overlaps
//	none          — zero atoms of the type (or its satisfiers) exist
func (a *Analyzer) classifyType(requiredType string, period contracts.Period, byType map[string][]contracts.EvidenceAtom) contracts.TypeCoverage {
	tc := contracts.TypeCoverage{EvidenceType: requiredType}

	gathered := append([]contracts.EvidenceAtom(nil), byType[requiredType]...)
	for _, satisfier := range a.satisfaction.satisfiers(requiredType) {
		if satisfierAtoms := byType[satisfier]; len(satisfierAtoms) > 0 {
			gathered = append(gathered, satisfierAtoms...)
			tc.SatisfiedVia = append(tc.SatisfiedVia, satisfier)
		}
	}

	covers := false
	for _, atom := range gathered {
		tc.AtomCount++
		if atom.PSURPeriod == nil {
			// Period-agnostic evidence (e.g. device registration data)
			// counts as complete coverage.
			tc.InPeriodCount++
			covers = true
			continue
		}
		if atom.PSURPeriod.Overlaps(period) {
			tc.InPeriodCount++
			if atom.PSURPeriod.Covers(period) {
				covers = true
			}
		}
	}

	switch {
	case tc.AtomCount == 0:
		tc.Classification = contracts.CoverageNone
	case tc.InPeriodCount == 0:
		tc.Classification = contracts.CoverageOutOfPeriod
	case covers:
		tc.Classification = contracts.CoverageFull
	default:
		tc.Classification = contracts.CoveragePartial
	}
	return tc
}

func firstOrDefault(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}
