package template

import (
	"fmt"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
	"github.com/Smarticus81/psur-regos/pkg/registry"
)

// minMethodStatementLen is the minimum method statement length a
// generation agent must supply with a slot proposal.
const minMethodStatementLen = 10

// ProposalContract validates what generation agents return per slot.
// Proposals failing any minimum are rejected; validation is returned as a
// list, never thrown.
type ProposalContract struct {
	registry *registry.Registry
}

// NewProposalContract creates the contract bound to the obligation
// registry for claimed-ID resolution.
func NewProposalContract(reg *registry.Registry) *ProposalContract {
	return &ProposalContract{registry: reg}
}

// Validate checks a slot proposal against the contract minima:
// non-empty content, at least one evidence atom ID, at least one known
// claimed obligation ID, and a method statement of at least 10 characters.
func (c *ProposalContract) Validate(p contracts.SlotProposal) contracts.ValidationErrors {
	var errs contracts.ValidationErrors

	if p.SlotID == "" {
		errs = errs.Add("/slot_id", contracts.CodeEmptyValue, "slot ID is required")
	}
	if p.Content == "" {
		errs = errs.Add("/content", contracts.CodeEmptyValue, "proposal content must not be empty")
	}
	if len(p.EvidenceAtomIDs) == 0 {
		errs = errs.Add("/evidence_atom_ids", contracts.CodeEmptyValue, "proposal must cite at least one evidence atom")
	}
	if len(p.ClaimedObligationIDs) == 0 {
		errs = errs.Add("/claimed_obligation_ids", contracts.CodeEmptyValue, "proposal must claim at least one obligation")
	}
	if len(p.MethodStatement) < minMethodStatementLen {
		errs = errs.Add("/method_statement", contracts.CodeEmptyValue,
			fmt.Sprintf("method statement must be at least %d characters", minMethodStatementLen))
	}

	for i, id := range p.ClaimedObligationIDs {
		if !c.registry.Has(id) {
			errs = errs.Add(fmt.Sprintf("/claimed_obligation_ids/%d", i), contracts.CodeUnknownReference,
				fmt.Sprintf("claimed obligation %s does not exist in the registry", id))
		}
	}

	return errs
}
