package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Smarticus81/psur-regos/pkg/audit"
	"github.com/Smarticus81/psur-regos/pkg/contracts"
	"github.com/Smarticus81/psur-regos/pkg/coverage"
	"github.com/Smarticus81/psur-regos/pkg/evidence"
	"github.com/Smarticus81/psur-regos/pkg/ingest"
	"github.com/Smarticus81/psur-regos/pkg/observability"
	"github.com/Smarticus81/psur-regos/pkg/queue"
	"github.com/Smarticus81/psur-regos/pkg/registry"
	"github.com/Smarticus81/psur-regos/pkg/store"
	"github.com/Smarticus81/psur-regos/pkg/template"
)

func testServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()

	obligations := []contracts.Obligation{{
		ObligationID: "EU-MDR:ART-86:1a", Jurisdiction: "EU", ArtifactType: "psur",
		Kind: contracts.KindObligation, Version: "1.0.0", Mandatory: true,
		RequiredEvidenceTypes: []string{"sales_volume"},
	}}
	reg, err := registry.New(obligations)
	require.NoError(t, err)

	templates := template.NewRegistry()
	tmpl := &contracts.Template{
		TemplateID: "t-1",
		Slots: []contracts.SlotSpec{{
			SlotID: "s-sales", SlotPath: "sec/sales", SlotType: contracts.SlotTable,
			Requiredness: contracts.SlotRequired,
			MappedObligations: []contracts.SlotObligationMapping{
				{ObligationID: "EU-MDR:ART-86:1a", RequirementLevel: contracts.LevelMust},
			},
		}},
	}
	require.NoError(t, templates.Register(tmpl))

	types, err := evidence.NewTypeRegistry(evidence.DefaultTypeSpecs())
	require.NoError(t, err)
	atoms := store.NewMemoryAtomStore()
	ingestSvc := ingest.NewService(evidence.NewBuilder(types), atoms)

	return NewServer(
		ingestSvc, atoms, reg, templates,
		coverage.NewAnalyzer(reg),
		queue.NewBuilder(obligations),
		audit.NewAuditor(obligations),
		opts...,
	)
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func registerCase(t *testing.T, h http.Handler) {
	t.Helper()
	w := postJSON(t, h, "/v1/cases", contracts.Case{
		CaseID:     "case-1",
		TemplateID: "t-1",
		Period: contracts.Period{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		},
		Jurisdictions: []string{"EU"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestHealthz(t *testing.T) {
	h := testServer(t).Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIngestEndpoint(t *testing.T) {
	h := testServer(t).Handler()

	w := postJSON(t, h, "/v1/evidence/ingest", IngestRequest{Rows: []evidence.Input{{
		AtomType: "sales_volume",
		Payload:  map[string]any{"device_code": "DEV-1", "region": "EU", "quantity": float64(100)},
		Provenance: contracts.Provenance{SourceSystem: "erp"},
	}}})
	require.Equal(t, http.StatusOK, w.Code)

	var result ingest.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Created)
}

func TestIngestEndpoint_EmptyBatchRejected(t *testing.T) {
	h := testServer(t).Handler()
	w := postJSON(t, h, "/v1/evidence/ingest", IngestRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestCoverageEndpoint(t *testing.T) {
	h := testServer(t).Handler()
	registerCase(t, h)

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/case-1/coverage", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var snap contracts.CoverageSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "case-1", snap.CaseID)
	assert.Contains(t, snap.Obligations, "EU-MDR:ART-86:1a")
}

func TestCoverageEndpoint_UnknownCase(t *testing.T) {
	h := testServer(t).Handler()
	req := httptest.NewRequest(http.MethodGet, "/v1/cases/ghost/coverage", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueEndpoint(t *testing.T) {
	h := testServer(t).Handler()
	registerCase(t, h)

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/case-1/queue", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var q contracts.GenerationQueue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	require.Len(t, q.Queue, 1)
	assert.Equal(t, "s-sales", q.Queue[0].SlotID)
	assert.Equal(t, 1, q.MandatoryObligationsRemaining)
}

func TestEngineEndpoints_WithObservability(t *testing.T) {
	// A disabled provider is inert but still runs the span wrapping on
	// every tracked operation.
	cfg := observability.DefaultConfig()
	cfg.Enabled = false
	obs, err := observability.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })

	h := testServer(t, WithObservability(obs)).Handler()
	registerCase(t, h)

	for _, path := range []string{"/v1/cases/case-1/coverage", "/v1/cases/case-1/queue"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := postJSON(t, h, "/v1/audit", AuditRequest{
		CaseID:   "case-1",
		Document: &contracts.CompiledDocument{TemplateID: "t-1"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidateProposalEndpoint(t *testing.T) {
	h := testServer(t).Handler()

	w := postJSON(t, h, "/v1/proposals/validate", contracts.SlotProposal{
		SlotID:               "s-sales",
		Content:              "Total units sold in the period: 100.",
		EvidenceAtomIDs:      []string{"sales_volume:abc123"},
		ClaimedObligationIDs: []string{"EU-MDR:ART-86:1a"},
		MethodStatement:      "Summed quantity over all sales volume atoms in period.",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["valid"])
	assert.Equal(t, "s-sales", resp["slot_id"])
}

func TestValidateProposalEndpoint_RejectsUnknownObligation(t *testing.T) {
	h := testServer(t).Handler()

	w := postJSON(t, h, "/v1/proposals/validate", contracts.SlotProposal{
		SlotID:               "s-sales",
		Content:              "Total units sold in the period: 100.",
		EvidenceAtomIDs:      []string{"sales_volume:abc123"},
		ClaimedObligationIDs: []string{"EU-MDR:GHOST"},
		MethodStatement:      "Summed quantity over all sales volume atoms in period.",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "unknown_reference")
}

func TestValidateProposalEndpoint_EmptyProposal(t *testing.T) {
	h := testServer(t).Handler()
	w := postJSON(t, h, "/v1/proposals/validate", contracts.SlotProposal{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAuditEndpoint(t *testing.T) {
	h := testServer(t).Handler()
	registerCase(t, h)

	w := postJSON(t, h, "/v1/audit", AuditRequest{
		CaseID:   "case-1",
		Document: &contracts.CompiledDocument{TemplateID: "t-1"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result contracts.ComplianceAuditResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Len(t, result.LayerResults, 7)
}
