package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
	"github.com/Smarticus81/psur-regos/pkg/registry"
)

func minimalTemplate() *contracts.Template {
	return &contracts.Template{
		TemplateID: "t-1",
		Slots: []contracts.SlotSpec{
			{SlotID: "s-a", SlotPath: "sec/a", SlotType: contracts.SlotNarrative, Requiredness: contracts.SlotRequired},
			{SlotID: "s-b", SlotPath: "sec/b", SlotType: contracts.SlotTable, Requiredness: contracts.SlotRequired},
		},
	}
}

func TestRegister_DefaultTemplateIsStructurallyValid(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(DefaultPSURTemplate()))

	got, err := r.Get("psur-eu-mdr-v1")
	require.NoError(t, err)
	assert.NotEmpty(t, got.Slots)
}

func TestRegister_RejectsDuplicateSlotIDs(t *testing.T) {
	tmpl := minimalTemplate()
	tmpl.Slots = append(tmpl.Slots, contracts.SlotSpec{
		SlotID: "s-a", SlotPath: "sec/dup", SlotType: contracts.SlotNarrative, Requiredness: contracts.SlotOptional,
	})

	err := NewRegistry().Register(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate slot ID s-a")
}

func TestRegister_RejectsUnknownDependency(t *testing.T) {
	tmpl := minimalTemplate()
	tmpl.Slots[1].Dependencies.MustFillBefore = []string{"s-missing"}

	err := NewRegistry().Register(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown slot s-missing")
}

func TestRegister_RejectsTableTargetingUnknownSlot(t *testing.T) {
	tmpl := minimalTemplate()
	tmpl.RequiredTables = []contracts.TableContract{
		{TableID: "tbl-x", SlotID: "nope", RequiredColumns: []string{"a"}},
	}

	err := NewRegistry().Register(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown slot nope")
}

func TestParse_ValidYAML(t *testing.T) {
	doc := []byte(`
template_id: t-yaml
name: Test Template
sections:
  - section_id: sec-1
    title: Section One
    required: true
slots:
  - slot_id: s-1
    slot_path: sec-1/body
    slot_type: narrative
    requiredness: required
`)
	tmpl, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "t-yaml", tmpl.TemplateID)
	require.Len(t, tmpl.Slots, 1)
	assert.Equal(t, contracts.SlotNarrative, tmpl.Slots[0].SlotType)
}

func TestParse_RejectsMissingTemplateID(t *testing.T) {
	doc := []byte(`
sections: []
slots: []
`)
	_, err := Parse(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema violation")
}

func TestParse_RejectsBadSlotType(t *testing.T) {
	doc := []byte(`
template_id: t-bad
sections: []
slots:
  - slot_id: s-1
    slot_path: a/b
    slot_type: hologram
    requiredness: required
`)
	_, err := Parse(doc)
	require.Error(t, err)
}

func proposalRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.New([]contracts.Obligation{{
		ObligationID: "OB-1", Jurisdiction: "EU", ArtifactType: "psur",
		Kind: contracts.KindObligation, Version: "1.0.0", Mandatory: true,
	}})
	require.NoError(t, err)
	return r
}

func validProposal() contracts.SlotProposal {
	return contracts.SlotProposal{
		SlotID:               "s-1",
		Content:              "The complaint rate for the period was 1.2 per 10,000 units.",
		EvidenceAtomIDs:      []string{"complaints_aggregate:abc"},
		ClaimedObligationIDs: []string{"OB-1"},
		MethodStatement:      "Aggregated complaint records and divided by sales volume.",
	}
}

func TestProposalContract_AcceptsValidProposal(t *testing.T) {
	c := NewProposalContract(proposalRegistry(t))
	assert.True(t, c.Validate(validProposal()).OK())
}

func TestProposalContract_RejectsEmptyFields(t *testing.T) {
	c := NewProposalContract(proposalRegistry(t))

	p := validProposal()
	p.Content = ""
	p.EvidenceAtomIDs = nil
	p.ClaimedObligationIDs = nil

	errs := c.Validate(p)
	require.Len(t, errs, 3)
	paths := []string{errs[0].Path, errs[1].Path, errs[2].Path}
	assert.Contains(t, paths, "/content")
	assert.Contains(t, paths, "/evidence_atom_ids")
	assert.Contains(t, paths, "/claimed_obligation_ids")
}

func TestProposalContract_RejectsShortMethodStatement(t *testing.T) {
	c := NewProposalContract(proposalRegistry(t))

	p := validProposal()
	p.MethodStatement = "counted"

	errs := c.Validate(p)
	require.Len(t, errs, 1)
	assert.Equal(t, "/method_statement", errs[0].Path)
	assert.Equal(t, contracts.CodeEmptyValue, errs[0].Code)
}

func TestProposalContract_RejectsUnknownObligation(t *testing.T) {
	c := NewProposalContract(proposalRegistry(t))

	p := validProposal()
	p.ClaimedObligationIDs = []string{"OB-1", "OB-GHOST"}

	errs := c.Validate(p)
	require.Len(t, errs, 1)
	assert.Equal(t, "/claimed_obligation_ids/1", errs[0].Path)
	assert.Equal(t, contracts.CodeUnknownReference, errs[0].Code)
}
