package contracts

import "time"

// TypeClassification is the per-evidence-type coverage class. The four
// classes are mutually exclusive: "no evidence ever uploaded" (none) is a
// different failure mode from "evidence exists but outside the period"
// (out_of_period).
type TypeClassification string

const (
	CoverageFull        TypeClassification = "full"
	CoveragePartial     TypeClassification = "partial"
	CoverageOutOfPeriod TypeClassification = "out_of_period"
	CoverageNone        TypeClassification = "none"
)

// CoverageStatus is the obligation-level satisfaction state.
type CoverageStatus string

const (
	StatusSatisfied          CoverageStatus = "satisfied"
	StatusPartiallySatisfied CoverageStatus = "partially_satisfied"
	StatusUnsatisfied        CoverageStatus = "unsatisfied"
)

// TypeCoverage is the coverage record for one required evidence type.
type TypeCoverage struct {
	EvidenceType   string             `json:"evidence_type"`
	Classification TypeClassification `json:"classification"`
	AtomCount      int                `json:"atom_count"`
	InPeriodCount  int                `json:"in_period_count"`
	// SatisfiedVia lists atom types (other than EvidenceType itself) that
	// contributed atoms through the satisfaction relation.
	SatisfiedVia []string `json:"satisfied_via,omitempty"`
	Notes        []string `json:"notes,omitempty"`
}

// ObligationCoverage is the coverage record for one obligation.
type ObligationCoverage struct {
	ObligationID string         `json:"obligation_id"`
	Kind         ObligationKind `json:"kind"`
	Mandatory    bool           `json:"mandatory"`
	Status       CoverageStatus `json:"status"`
	Types        []TypeCoverage `json:"types"`
	// WhyUnsatisfied holds human-readable reasons when Status is not
	// satisfied, one per deficient evidence type.
	WhyUnsatisfied []string `json:"why_unsatisfied,omitempty"`
}

// CoverageSnapshot is the full output of one coverage computation. It is
// coherent as of ComputedAt only; callers tolerate staleness.
type CoverageSnapshot struct {
	CaseID      string                        `json:"case_id"`
	Period      Period                        `json:"period"`
	Obligations map[string]ObligationCoverage `json:"obligations"`
	// Blocking lists mandatory obligations in unsatisfied state; a
	// non-empty list blocks case qualification.
	Blocking   []string  `json:"blocking,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}

// SatisfiedCount returns (satisfied, total) over mandatory obligations.
func (s *CoverageSnapshot) SatisfiedCount() (satisfied, total int) {
	for _, oc := range s.Obligations {
		if !oc.Mandatory {
			continue
		}
		total++
		if oc.Status == StatusSatisfied {
			satisfied++
		}
	}
	return satisfied, total
}
