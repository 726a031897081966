package audit

import (
	"fmt"
	"math"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// defaultTolerancePct bounds the relative deviation between a rendered
// value and its recomputation when the rule declares no tolerance.
const defaultTolerancePct = 0.1

// CalculationRulesLayer independently recomputes each declared derived
// value from the evidence aggregates and compares it to the rendered
// value within the rule's tolerance. A mismatch is a CRITICAL warning:
// a wrong complaint rate in a safety report is a reportable defect.
type CalculationRulesLayer struct{}

func (l *CalculationRulesLayer) ID() string   { return LayerCalculationRules }
func (l *CalculationRulesLayer) Name() string { return "Calculation Rules" }

func (l *CalculationRulesLayer) Run(ctx *RunContext) *Outcome {
	out := &Outcome{}
	rules := ctx.Template.CalculationRules
	if len(rules) == 0 {
		out.Score = 100
		return out
	}

	passed := 0
	for _, rule := range rules {
		slot, ok := ctx.slotByID(rule.SlotID)
		if !ok {
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnWarning,
				Category:    LayerCalculationRules,
				Message:     fmt.Sprintf("rule %s: slot %s is not filled", rule.RuleID, rule.SlotID),
				Remediation: "fill the slot before auditing the calculation",
			})
			continue
		}
		rendered, ok := slot.Values[rule.TargetField]
		if !ok {
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnWarning,
				Category:    LayerCalculationRules,
				Message:     fmt.Sprintf("rule %s: slot %s does not render value %s", rule.RuleID, rule.SlotID, rule.TargetField),
				Remediation: "render the derived value in the slot",
			})
			continue
		}

		expected, err := l.recompute(rule, ctx.Atoms)
		if err != nil {
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnWarning,
				Category:    LayerCalculationRules,
				Message:     fmt.Sprintf("rule %s: cannot recompute: %v", rule.RuleID, err),
				Remediation: "ingest the evidence aggregates the rule reads from",
			})
			continue
		}

		tolerance := rule.TolerancePct
		if tolerance == 0 {
			tolerance = defaultTolerancePct
		}
		if !withinTolerance(rendered, expected, tolerance) {
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnCritical,
				Category:    LayerCalculationRules,
				Message:     fmt.Sprintf("rule %s: rendered %s=%.4f but recomputation yields %.4f", rule.RuleID, rule.TargetField, rendered, expected),
				Remediation: "regenerate the slot from the current evidence",
				Impact:      "the document states a derived figure its own evidence does not support",
			})
			continue
		}

		passed++
		out.PassedChecks = append(out.PassedChecks, fmt.Sprintf("calculation %s verified", rule.RuleID))
	}

	out.Score = scoreRatio(passed, len(rules))
	return out
}

// recompute evaluates the rule over the valid atoms: field values are
// summed per type, then combined per the rule's operation.
func (l *CalculationRulesLayer) recompute(rule contracts.CalculationRule, atoms map[string]contracts.EvidenceAtom) (float64, error) {
	numerator, numFound := sumField(atoms, rule.NumeratorType, rule.NumeratorField)
	if !numFound {
		return 0, fmt.Errorf("no %s atoms carry field %s", rule.NumeratorType, rule.NumeratorField)
	}

	switch rule.Operation {
	case "sum":
		return numerator, nil
	case "ratio", "rate_per_unit":
		denominator, denFound := sumField(atoms, rule.DenominatorType, rule.DenominatorField)
		if !denFound {
			return 0, fmt.Errorf("no %s atoms carry field %s", rule.DenominatorType, rule.DenominatorField)
		}
		if denominator == 0 {
			return 0, fmt.Errorf("denominator %s.%s sums to zero", rule.DenominatorType, rule.DenominatorField)
		}
		result := numerator / denominator
		if rule.Operation == "rate_per_unit" {
			scale := rule.ScaleFactor
			if scale == 0 {
				scale = 1
			}
			result *= scale
		}
		return result, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", rule.Operation)
	}
}

// sumField adds the numeric field across all valid atoms of the type.
func sumField(atoms map[string]contracts.EvidenceAtom, atomType, field string) (sum float64, found bool) {
	for _, atom := range atoms {
		if atom.AtomType != atomType || atom.Status != contracts.AtomStatusValid {
			continue
		}
		if v, ok := numericPayloadField(atom.Payload, field); ok {
			sum += v
			found = true
		}
	}
	return sum, found
}

// numericPayloadField extracts a float from a decoded JSON payload.
func numericPayloadField(payload map[string]any, field string) (float64, bool) {
	switch v := payload[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func withinTolerance(rendered, expected, tolerancePct float64) bool {
	if expected == 0 {
		return rendered == 0
	}
	return math.Abs(rendered-expected)/math.Abs(expected)*100 <= tolerancePct
}
