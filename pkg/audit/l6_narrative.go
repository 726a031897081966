package audit

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// NarrativeConstraintsLayer checks narrative slots against their declared
// length bounds, forbidden phrases, and mandatory terms. Text is
// NFC-normalized before comparison so composed and decomposed forms of
// the same phrase match.
type NarrativeConstraintsLayer struct{}

func (l *NarrativeConstraintsLayer) ID() string   { return LayerNarrativeConstraints }
func (l *NarrativeConstraintsLayer) Name() string { return "Narrative Constraints" }

func (l *NarrativeConstraintsLayer) Run(ctx *RunContext) *Outcome {
	out := &Outcome{}
	rules := ctx.Template.NarrativeRules
	if len(rules) == 0 {
		out.Score = 100
		return out
	}

	passed := 0
	for _, rule := range rules {
		slot, ok := ctx.slotByID(rule.SlotID)
		if !ok || slot.Content == "" {
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnWarning,
				Category:    LayerNarrativeConstraints,
				Message:     fmt.Sprintf("narrative slot %s is empty", rule.SlotID),
				Remediation: "generate the narrative content",
			})
			continue
		}

		text := norm.NFC.String(slot.Content)
		lower := strings.ToLower(text)
		violations := 0

		if n := utf8.RuneCountInString(text); rule.MinLength > 0 && n < rule.MinLength {
			violations++
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnWarning,
				Category:    LayerNarrativeConstraints,
				Message:     fmt.Sprintf("slot %s narrative is %d characters, below the %d minimum", rule.SlotID, n, rule.MinLength),
				Remediation: "expand the narrative to cover the required ground",
			})
		} else if rule.MaxLength > 0 && n > rule.MaxLength {
			violations++
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnInfo,
				Category:    LayerNarrativeConstraints,
				Message:     fmt.Sprintf("slot %s narrative is %d characters, above the %d maximum", rule.SlotID, n, rule.MaxLength),
				Remediation: "tighten the narrative",
			})
		}

		for _, phrase := range rule.ForbiddenPhrases {
			if strings.Contains(lower, strings.ToLower(norm.NFC.String(phrase))) {
				violations++
				out.Warnings = append(out.Warnings, contracts.AuditWarning{
					Level:       contracts.WarnWarning,
					Category:    LayerNarrativeConstraints,
					Message:     fmt.Sprintf("slot %s contains forbidden phrase %q", rule.SlotID, phrase),
					Remediation: "rephrase; absolute safety claims are not defensible",
				})
			}
		}
		for _, term := range rule.MandatoryTerms {
			if !strings.Contains(lower, strings.ToLower(norm.NFC.String(term))) {
				violations++
				out.Warnings = append(out.Warnings, contracts.AuditWarning{
					Level:       contracts.WarnWarning,
					Category:    LayerNarrativeConstraints,
					Message:     fmt.Sprintf("slot %s is missing mandatory term %q", rule.SlotID, term),
					Remediation: "address the term explicitly in the narrative",
				})
			}
		}

		if violations == 0 {
			passed++
			out.PassedChecks = append(out.PassedChecks, fmt.Sprintf("narrative constraints met for slot %s", rule.SlotID))
		}
	}

	out.Score = scoreRatio(passed, len(rules))
	return out
}
