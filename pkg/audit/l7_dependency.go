package audit

import (
	"fmt"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// DependencyChainLayer verifies that every filled slot's declared
// prerequisites were filled before it, using the FilledSeq recorded at
// generation time.
type DependencyChainLayer struct{}

func (l *DependencyChainLayer) ID() string   { return LayerDependencyChain }
func (l *DependencyChainLayer) Name() string { return "Dependency Chain" }

func (l *DependencyChainLayer) Run(ctx *RunContext) *Outcome {
	out := &Outcome{}

	filled := make(map[string]contracts.CompiledSlot, len(ctx.Document.Slots))
	for _, s := range ctx.Document.Slots {
		filled[s.SlotID] = s
	}

	totalEdges, satisfiedEdges := 0, 0
	for _, spec := range ctx.Template.Slots {
		slot, ok := filled[spec.SlotID]
		if !ok {
			continue
		}
		deps := append(append([]string(nil), spec.Dependencies.MustFillBefore...), spec.Dependencies.MustHaveEvidenceBefore...)
		for _, dep := range deps {
			totalEdges++
			prereq, ok := filled[dep]
			if !ok {
				out.Warnings = append(out.Warnings, contracts.AuditWarning{
					Level:       contracts.WarnWarning,
					Category:    LayerDependencyChain,
					Message:     fmt.Sprintf("slot %s was filled but its prerequisite %s never was", spec.SlotID, dep),
					Remediation: "fill the prerequisite and regenerate the dependent slot",
					Impact:      "the dependent content may rest on data that was never produced",
				})
				continue
			}
			if prereq.FilledSeq >= slot.FilledSeq {
				out.Warnings = append(out.Warnings, contracts.AuditWarning{
					Level:       contracts.WarnWarning,
					Category:    LayerDependencyChain,
					Message:     fmt.Sprintf("slot %s was filled before its prerequisite %s", spec.SlotID, dep),
					Remediation: "regenerate the dependent slot after its prerequisites",
					Impact:      "derived content may not reflect the prerequisite data",
				})
				continue
			}
			satisfiedEdges++
		}
	}

	out.Score = scoreRatio(satisfiedEdges, totalEdges)
	if totalEdges > 0 && satisfiedEdges == totalEdges {
		out.PassedChecks = append(out.PassedChecks,
			fmt.Sprintf("all %d dependency edges filled in order", totalEdges))
	}
	return out
}
