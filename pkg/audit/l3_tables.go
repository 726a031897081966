package audit

import (
	"fmt"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// RequiredTablesLayer checks that every mandated table is present in its
// slot with the required columns populated.
type RequiredTablesLayer struct{}

func (l *RequiredTablesLayer) ID() string   { return LayerRequiredTables }
func (l *RequiredTablesLayer) Name() string { return "Required Tables" }

func (l *RequiredTablesLayer) Run(ctx *RunContext) *Outcome {
	out := &Outcome{}
	contractsList := ctx.Template.RequiredTables
	if len(contractsList) == 0 {
		out.Score = 100
		return out
	}

	passed := 0
	for _, tc := range contractsList {
		slot, ok := ctx.slotByID(tc.SlotID)
		if !ok || slot.Table == nil {
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnWarning,
				Category:    LayerRequiredTables,
				Message:     fmt.Sprintf("mandated table %s is missing from slot %s", tc.TableID, tc.SlotID),
				Remediation: "generate the table from the cited evidence atoms",
			})
			continue
		}

		have := make(map[string]bool, len(slot.Table.Columns))
		for _, col := range slot.Table.Columns {
			have[col] = true
		}
		var missing []string
		for _, col := range tc.RequiredColumns {
			if !have[col] {
				missing = append(missing, col)
			}
		}
		if len(missing) > 0 {
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnWarning,
				Category:    LayerRequiredTables,
				Message:     fmt.Sprintf("table %s lacks required columns %v", tc.TableID, missing),
				Remediation: "add the missing columns",
			})
			continue
		}
		if len(slot.Table.Rows) == 0 {
			out.Warnings = append(out.Warnings, contracts.AuditWarning{
				Level:       contracts.WarnWarning,
				Category:    LayerRequiredTables,
				Message:     fmt.Sprintf("table %s has the required columns but no rows", tc.TableID),
				Remediation: "populate the table or state why no data exists",
			})
			continue
		}

		passed++
		out.PassedChecks = append(out.PassedChecks, fmt.Sprintf("table %s complete", tc.TableID))
	}

	out.Score = scoreRatio(passed, len(contractsList))
	return out
}
