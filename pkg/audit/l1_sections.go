package audit

import (
	"fmt"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// SectionStructureLayer checks that every required section of the
// template appears in the compiled document, in template order.
type SectionStructureLayer struct{}

func (l *SectionStructureLayer) ID() string   { return LayerSectionStructure }
func (l *SectionStructureLayer) Name() string { return "Section Structure" }

func (l *SectionStructureLayer) Run(ctx *RunContext) *Outcome {
	out := &Outcome{}

	required := requiredSections(ctx.Template.Sections)
	if len(required) == 0 {
		out.Score = 100
		return out
	}

	present := flattenSections(ctx.Document.Sections)
	position := make(map[string]int, len(present))
	for i, id := range present {
		position[id] = i
	}

	passed := 0
	lastPos := -1
	for _, sectionID := range required {
		pos, ok := position[sectionID]
		if !ok {
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnWarning,
				Category:    LayerSectionStructure,
				Message:     fmt.Sprintf("required section %s is missing", sectionID),
				Remediation: "add the section before export",
				Impact:      "reviewers cannot locate mandated content",
			})
			continue
		}
		if pos < lastPos {
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnWarning,
				Category:    LayerSectionStructure,
				Message:     fmt.Sprintf("section %s appears out of order", sectionID),
				Remediation: "reorder sections to match the template",
			})
			continue
		}
		lastPos = pos
		passed++
		out.PassedChecks = append(out.PassedChecks, fmt.Sprintf("section %s present and ordered", sectionID))
	}

	out.Score = scoreRatio(passed, len(required))
	if passed < len(required) {
		out.Recommendations = append(out.Recommendations,
			"restore the template's required section order before submission")
	}
	return out
}

// requiredSections walks the section tree depth-first and returns the IDs
// of required sections in template order.
func requiredSections(sections []contracts.SectionSpec) []string {
	var ids []string
	for _, s := range sections {
		if s.Required {
			ids = append(ids, s.SectionID)
		}
		ids = append(ids, requiredSections(s.Subsections)...)
	}
	return ids
}

// flattenSections returns all compiled section IDs in document order.
func flattenSections(sections []contracts.CompiledSection) []string {
	var ids []string
	for _, s := range sections {
		ids = append(ids, s.SectionID)
		ids = append(ids, flattenSections(s.Subsections)...)
	}
	return ids
}
