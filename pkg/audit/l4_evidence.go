package audit

import (
	"fmt"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// EvidenceTypeMappingLayer checks that every claimed evidence atom ID
// resolves to a stored atom whose type is among the types the slot's
// obligations require. A document citing no evidence at all scores zero.
type EvidenceTypeMappingLayer struct{}

func (l *EvidenceTypeMappingLayer) ID() string   { return LayerEvidenceTypeMapping }
func (l *EvidenceTypeMappingLayer) Name() string { return "Evidence Type Mapping" }

func (l *EvidenceTypeMappingLayer) Run(ctx *RunContext) *Outcome {
	out := &Outcome{}

	slotSpecs := make(map[string]contracts.SlotSpec, len(ctx.Template.Slots))
	for _, s := range ctx.Template.Slots {
		slotSpecs[s.SlotID] = s
	}

	totalClaims, validClaims := 0, 0
	for _, slot := range ctx.Document.Slots {
		allowed := l.allowedTypes(slotSpecs[slot.SlotID], ctx.Obligations)
		for _, atomID := range slot.EvidenceAtomIDs {
			totalClaims++
			atom, ok := ctx.Atoms[atomID]
			if !ok {
				out.Warnings = append(out.Warnings, contracts.AuditWarning{
					Level:       contracts.WarnCritical,
					Category:    LayerEvidenceTypeMapping,
					Message:     fmt.Sprintf("slot %s cites unknown atom %s", slot.SlotID, atomID),
					Remediation: "remove the citation or ingest the referenced evidence",
					Impact:      "the slot's content is not traceable to stored evidence",
				})
				continue
			}
			if atom.Status != contracts.AtomStatusValid {
				out.Warnings = append(out.Warnings, contracts.AuditWarning{
					Level:       contracts.WarnWarning,
					Category:    LayerEvidenceTypeMapping,
					Message:     fmt.Sprintf("slot %s cites %s atom %s", slot.SlotID, atom.Status, atomID),
					Remediation: "re-cite the superseding atom",
				})
				continue
			}
			if len(allowed) > 0 && !allowed[atom.AtomType] {
				out.Warnings = append(out.Warnings, contracts.AuditWarning{
					Level:       contracts.WarnWarning,
					Category:    LayerEvidenceTypeMapping,
					Message:     fmt.Sprintf("slot %s cites atom of type %s, which its obligations do not require", slot.SlotID, atom.AtomType),
					Remediation: "verify the slot's evidence mapping",
				})
				continue
			}
			validClaims++
		}
	}

	if totalClaims == 0 {
		out.Recommendations = append(out.Recommendations,
			"no evidence atoms are cited anywhere in the document")
		return out
	}

	out.Score = scoreRatio(validClaims, totalClaims)
	if validClaims == totalClaims {
		out.PassedChecks = append(out.PassedChecks,
			fmt.Sprintf("all %d evidence citations resolve to matching atoms", totalClaims))
	}
	return out
}

// allowedTypes is the union of required evidence types across the slot's
// mapped obligations. Empty means the slot is untyped and any valid atom
// is acceptable.
func (l *EvidenceTypeMappingLayer) allowedTypes(spec contracts.SlotSpec, obligations map[string]contracts.Obligation) map[string]bool {
	allowed := make(map[string]bool)
	for _, m := range spec.MappedObligations {
		if ob, ok := obligations[m.ObligationID]; ok {
			for _, et := range ob.RequiredEvidenceTypes {
				allowed[et] = true
			}
		}
	}
	return allowed
}
