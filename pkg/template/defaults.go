package template

import "github.com/Smarticus81/psur-regos/pkg/contracts"

// DefaultPSURTemplate returns the built-in EU-MDR PSUR template. Loaders
// may replace or extend it; deployments without a template document get
// this one seeded into the registry.
func DefaultPSURTemplate() *contracts.Template {
	return &contracts.Template{
		TemplateID: "psur-eu-mdr-v1",
		Name:       "Periodic Safety Update Report (EU MDR)",
		ProfileID:  "eu-mdr-default",
		Sections: []contracts.SectionSpec{
			{SectionID: "sec-admin", Title: "Administrative Particulars", Required: true},
			{SectionID: "sec-device", Title: "Device Description and Scope", Required: true},
			{
				SectionID: "sec-data", Title: "Post-Market Data", Required: true,
				Subsections: []contracts.SectionSpec{
					{SectionID: "sec-data-sales", Title: "Sales and Usage Volumes", Required: true},
					{SectionID: "sec-data-complaints", Title: "Complaints and Incidents", Required: true},
					{SectionID: "sec-data-capa", Title: "Corrective and Preventive Actions", Required: false},
				},
			},
			{SectionID: "sec-literature", Title: "Literature and External Data", Required: true},
			{SectionID: "sec-benefit-risk", Title: "Benefit-Risk Conclusion", Required: true},
		},
		Slots: []contracts.SlotSpec{
			{
				SlotID:       "slot-admin-particulars",
				SlotPath:     "sec-admin/particulars",
				SlotType:     contracts.SlotKeyValue,
				Requiredness: contracts.SlotRequired,
				MappedObligations: []contracts.SlotObligationMapping{
					{ObligationID: "EU-MDR:ART-86:1", RequirementLevel: contracts.LevelMust},
				},
				GenerationContract: contracts.GenerationContract{
					AllowedTransformations: []string{"verbatim"},
					TraceGranularity:       "atom",
				},
			},
			{
				SlotID:       "slot-device-description",
				SlotPath:     "sec-device/description",
				SlotType:     contracts.SlotNarrative,
				Requiredness: contracts.SlotRequired,
				MappedObligations: []contracts.SlotObligationMapping{
					{ObligationID: "EU-MDR:ART-86:1", RequirementLevel: contracts.LevelMust},
				},
				GenerationContract: contracts.GenerationContract{
					AllowedTransformations: []string{"summarize"},
					MustInclude:            []string{"intended purpose", "device classification"},
					TraceGranularity:       "aggregate",
				},
			},
			{
				SlotID:       "slot-sales-volume",
				SlotPath:     "sec-data/sec-data-sales/volume-table",
				SlotType:     contracts.SlotTable,
				Requiredness: contracts.SlotRequired,
				MappedObligations: []contracts.SlotObligationMapping{
					{ObligationID: "EU-MDR:ART-86:1a", RequirementLevel: contracts.LevelMust},
				},
				GenerationContract: contracts.GenerationContract{
					AllowedTransformations:   []string{"aggregate", "tabulate"},
					ForbiddenTransformations: []string{"extrapolate"},
					TraceGranularity:         "atom",
				},
			},
			{
				SlotID:       "slot-complaints-summary",
				SlotPath:     "sec-data/sec-data-complaints/summary-table",
				SlotType:     contracts.SlotTable,
				Requiredness: contracts.SlotRequired,
				MappedObligations: []contracts.SlotObligationMapping{
					{ObligationID: "EU-MDR:ART-86:1b", RequirementLevel: contracts.LevelMust},
				},
				GenerationContract: contracts.GenerationContract{
					AllowedTransformations: []string{"aggregate", "tabulate"},
					TraceGranularity:       "atom",
				},
				Dependencies: contracts.SlotDependencies{
					MustHaveEvidenceBefore: []string{"slot-sales-volume"},
				},
			},
			{
				SlotID:       "slot-complaint-rate",
				SlotPath:     "sec-data/sec-data-complaints/rate-narrative",
				SlotType:     contracts.SlotNarrative,
				Requiredness: contracts.SlotRequired,
				MappedObligations: []contracts.SlotObligationMapping{
					{ObligationID: "EU-MDR:ART-86:1b", RequirementLevel: contracts.LevelMust},
				},
				GenerationContract: contracts.GenerationContract{
					AllowedTransformations: []string{"calculate", "summarize"},
					TraceGranularity:       "aggregate",
				},
				Dependencies: contracts.SlotDependencies{
					MustFillBefore: []string{"slot-sales-volume", "slot-complaints-summary"},
				},
			},
			{
				SlotID:       "slot-capa-summary",
				SlotPath:     "sec-data/sec-data-capa/summary",
				SlotType:     contracts.SlotNarrative,
				Requiredness: contracts.SlotRequiredIfApplicable,
				MappedObligations: []contracts.SlotObligationMapping{
					{ObligationID: "EU-MDR:ART-83:CAPA", RequirementLevel: contracts.LevelMustIfApplicable},
				},
				GenerationContract: contracts.GenerationContract{
					AllowedTransformations: []string{"summarize"},
					TraceGranularity:       "atom",
				},
			},
			{
				SlotID:       "slot-literature-review",
				SlotPath:     "sec-literature/review",
				SlotType:     contracts.SlotNarrative,
				Requiredness: contracts.SlotRequired,
				MappedObligations: []contracts.SlotObligationMapping{
					{ObligationID: "EU-MDR:ANNEX-III:LIT", RequirementLevel: contracts.LevelShould},
				},
				GenerationContract: contracts.GenerationContract{
					AllowedTransformations: []string{"summarize", "cite"},
					TraceGranularity:       "aggregate",
				},
			},
			{
				SlotID:       "slot-benefit-risk",
				SlotPath:     "sec-benefit-risk/conclusion",
				SlotType:     contracts.SlotNarrative,
				Requiredness: contracts.SlotRequired,
				MappedObligations: []contracts.SlotObligationMapping{
					{ObligationID: "EU-MDR:ART-86:1c", RequirementLevel: contracts.LevelMust},
				},
				GenerationContract: contracts.GenerationContract{
					AllowedTransformations:   []string{"conclude"},
					ForbiddenTransformations: []string{"introduce_new_data"},
					MustInclude:              []string{"benefit-risk determination"},
					TraceGranularity:         "aggregate",
				},
				Dependencies: contracts.SlotDependencies{
					MustFillBefore: []string{
						"slot-sales-volume",
						"slot-complaints-summary",
						"slot-complaint-rate",
						"slot-literature-review",
					},
				},
			},
		},
		RequiredTables: []contracts.TableContract{
			{
				TableID:         "tbl-sales-volume",
				SlotID:          "slot-sales-volume",
				RequiredColumns: []string{"device_code", "region", "quantity", "period_start", "period_end"},
			},
			{
				TableID:         "tbl-complaints",
				SlotID:          "slot-complaints-summary",
				RequiredColumns: []string{"category", "count", "rate_per_10k"},
			},
		},
		CalculationRules: []contracts.CalculationRule{
			{
				RuleID:          "calc-complaint-rate",
				SlotID:          "slot-complaint-rate",
				TargetField:     "complaint_rate_per_10k",
				Operation:       "rate_per_unit",
				NumeratorType:   "complaints_aggregate",
				NumeratorField:  "total_complaints",
				DenominatorType: "sales_volume",
				DenominatorField: "quantity",
				ScaleFactor:     10000,
				TolerancePct:    0.5,
			},
		},
		NarrativeRules: []contracts.NarrativeRule{
			{
				SlotID:           "slot-benefit-risk",
				MinLength:        200,
				ForbiddenPhrases: []string{"no issues whatsoever", "completely safe"},
				MandatoryTerms:   []string{"benefit-risk"},
			},
			{
				SlotID:    "slot-literature-review",
				MinLength: 100,
			},
		},
	}
}
