package audit

import (
	"fmt"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// ObligationCoverageLayer re-derives the satisfied/total ratio over
// mandatory obligations from the coverage snapshot.
type ObligationCoverageLayer struct{}

func (l *ObligationCoverageLayer) ID() string   { return LayerObligationCoverage }
func (l *ObligationCoverageLayer) Name() string { return "Obligation Coverage" }

func (l *ObligationCoverageLayer) Run(ctx *RunContext) *Outcome {
	out := &Outcome{}

	if ctx.Coverage == nil {
		out.Recommendations = append(out.Recommendations,
			"run a coverage computation for this case before auditing")
		return out
	}

	satisfied, total := ctx.Coverage.SatisfiedCount()
	out.Score = scoreRatio(satisfied, total)

	for _, id := range ctx.Coverage.Blocking {
		oc := ctx.Coverage.Obligations[id]
		out.Warnings = append(out.Warnings, contracts.AuditWarning{
			Level:       contracts.WarnCritical,
			Category:    LayerObligationCoverage,
			Message:     fmt.Sprintf("mandatory obligation %s is unsatisfied", id),
			Remediation: firstReason(oc.WhyUnsatisfied),
			Impact:      "the case does not qualify for submission",
		})
	}
	for _, w := range ctx.Coverage.Warnings {
		out.Warnings = append(out.Warnings, contracts.AuditWarning{
			Level:    contracts.WarnInfo,
			Category: LayerObligationCoverage,
			Message:  w,
		})
	}

	if satisfied == total {
		out.PassedChecks = append(out.PassedChecks,
			fmt.Sprintf("all %d mandatory obligations satisfied", total))
	} else {
		out.Recommendations = append(out.Recommendations,
			fmt.Sprintf("ingest evidence for the %d remaining mandatory obligations", total-satisfied))
	}
	return out
}

func firstReason(reasons []string) string {
	if len(reasons) > 0 {
		return reasons[0]
	}
	return "ingest the missing evidence"
}
