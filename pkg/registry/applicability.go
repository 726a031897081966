package registry

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// applicabilityPrograms holds the compiled CEL applicability expressions,
// one per obligation that declares one. Compilation happens at registry
// load so a malformed expression fails at startup, not per request.
type applicabilityPrograms struct {
	programs map[string]cel.Program
}

// newApplicabilityEnv declares the case context visible to expressions:
// the case's jurisdictions and device scope plus the period bounds as
// timestamps.
func newApplicabilityEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("jurisdictions", cel.ListType(cel.StringType)),
		cel.Variable("devices", cel.ListType(cel.StringType)),
		cel.Variable("period_start", cel.TimestampType),
		cel.Variable("period_end", cel.TimestampType),
	)
}

func compileApplicability(obligations map[string]contracts.Obligation) (*applicabilityPrograms, error) {
	env, err := newApplicabilityEnv()
	if err != nil {
		return nil, fmt.Errorf("registry: create CEL environment: %w", err)
	}

	programs := make(map[string]cel.Program)
	for id, ob := range obligations {
		if ob.Applicability == "" {
			continue
		}
		ast, issues := env.Compile(ob.Applicability)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("registry: obligation %s: bad applicability expression: %w", id, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("registry: obligation %s: program applicability expression: %w", id, err)
		}
		programs[id] = prg
	}

	return &applicabilityPrograms{programs: programs}, nil
}

// Evaluate runs an obligation's applicability expression against the case
// context. Obligations without an expression always apply.
func (p *applicabilityPrograms) Evaluate(obligationID string, c contracts.Case) (bool, error) {
	prg, ok := p.programs[obligationID]
	if !ok {
		return true, nil
	}

	out, _, err := prg.Eval(map[string]any{
		"jurisdictions": c.Jurisdictions,
		"devices":       c.DeviceScope,
		"period_start":  c.Period.Start,
		"period_end":    c.Period.End,
	})
	if err != nil {
		return false, err
	}

	applies, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not evaluate to bool")
	}
	return applies, nil
}
