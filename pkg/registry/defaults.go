package registry

import "github.com/Smarticus81/psur-regos/pkg/contracts"

// DefaultObligations returns the built-in EU MDR obligation set for PSUR
// reporting. Deployments normally load a seed document; the defaults keep
// the engine usable out of the box and back the default template.
func DefaultObligations() []contracts.Obligation {
	return []contracts.Obligation{
		{
			ObligationID:          "EU-MDR:ART-86:1",
			Jurisdiction:          "EU",
			ArtifactType:          "psur",
			Kind:                  contracts.KindObligation,
			Title:                 "PSUR summary of results and conclusions",
			Text:                  "The PSUR shall set out a summary of the results and conclusions of the post-market surveillance data analyses.",
			SourceCitation:        "Regulation (EU) 2017/745, Article 86(1)",
			Version:               "1.0.0",
			Mandatory:             true,
			RequiredEvidenceTypes: []string{"device_registration"},
		},
		{
			ObligationID:          "EU-MDR:ART-86:1a",
			Jurisdiction:          "EU",
			ArtifactType:          "psur",
			Kind:                  contracts.KindObligation,
			Title:                 "Sales volume and population estimate",
			Text:                  "The PSUR shall include the volume of sales of the device and an estimate of the size and other characteristics of the population using the device.",
			SourceCitation:        "Regulation (EU) 2017/745, Article 86(1)(a)",
			Version:               "1.0.0",
			Mandatory:             true,
			RequiredEvidenceTypes: []string{"sales_volume"},
		},
		{
			ObligationID:          "EU-MDR:ART-86:1b",
			Jurisdiction:          "EU",
			ArtifactType:          "psur",
			Kind:                  contracts.KindObligation,
			Title:                 "Complaint and incident analysis",
			Text:                  "The PSUR shall include the main findings of the analysis of serious incidents, field safety corrective actions and complaint trends.",
			SourceCitation:        "Regulation (EU) 2017/745, Article 86(1)(b)",
			Version:               "1.0.0",
			Mandatory:             true,
			RequiredEvidenceTypes: []string{"complaints_aggregate", "incidents_aggregate"},
		},
		{
			ObligationID:          "EU-MDR:ART-86:1c",
			Jurisdiction:          "EU",
			ArtifactType:          "psur",
			Kind:                  contracts.KindObligation,
			Title:                 "Benefit-risk determination",
			Text:                  "The PSUR shall set out the conclusions of the benefit-risk determination for the device.",
			SourceCitation:        "Regulation (EU) 2017/745, Article 86(1)(c)",
			Version:               "1.0.0",
			Mandatory:             true,
			// The conclusion synthesizes other sections; it requires no
			// evidence of its own.
		},
		{
			ObligationID:          "EU-MDR:ART-83:CAPA",
			Jurisdiction:          "EU",
			ArtifactType:          "psur",
			Kind:                  contracts.KindObligation,
			Title:                 "Preventive and corrective action summary",
			Text:                  "Where preventive or corrective actions were taken during the reporting period, the PSUR shall summarize them.",
			SourceCitation:        "Regulation (EU) 2017/745, Article 83(4)",
			Version:               "1.0.0",
			Mandatory:             false,
			RequiredEvidenceTypes: []string{"capa_record"},
			Applicability:         `"EU" in jurisdictions`,
		},
		{
			ObligationID:          "EU-MDR:ANNEX-III:LIT",
			Jurisdiction:          "EU",
			ArtifactType:          "psur",
			Kind:                  contracts.KindConstraint,
			Title:                 "Literature screening of relevant publications",
			Text:                  "Post-market surveillance shall cover relevant specialist or technical literature and databases.",
			SourceCitation:        "Regulation (EU) 2017/745, Annex III 1.1(a)",
			Version:               "1.0.0",
			Mandatory:             false,
			RequiredEvidenceTypes: []string{"literature_review"},
		},
	}
}
