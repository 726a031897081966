package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
	"github.com/Smarticus81/psur-regos/pkg/evidence"
	"github.com/Smarticus81/psur-regos/pkg/observability"
	"github.com/Smarticus81/psur-regos/pkg/store"
)

func newService(t *testing.T) (*Service, *store.MemoryAtomStore) {
	t.Helper()
	types, err := evidence.NewTypeRegistry(evidence.DefaultTypeSpecs())
	require.NoError(t, err)
	atoms := store.NewMemoryAtomStore()
	builder := evidence.NewBuilder(types).WithClock(func() time.Time {
		return time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	})
	return NewService(builder, atoms, WithWorkers(3)), atoms
}

func salesInput(qty float64) evidence.Input {
	return evidence.Input{
		AtomType: "sales_volume",
		Payload: map[string]any{
			"device_code": "DEV-1",
			"region":      "EU",
			"quantity":    qty,
		},
		Provenance: contracts.Provenance{SourceSystem: "erp-export"},
		PSURPeriod: &contracts.Period{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestIngestBatch_CountersAndOrder(t *testing.T) {
	s, _ := newService(t)

	bad := salesInput(10)
	bad.Payload = map[string]any{"region": "EU"} // missing required fields

	inputs := []evidence.Input{salesInput(100), salesInput(200), bad, salesInput(300)}
	result, err := s.IngestBatch(context.Background(), inputs)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 0, result.Deduplicated)
	assert.Equal(t, 1, result.Invalid)
	require.Len(t, result.Rows, 4)
	for i, row := range result.Rows {
		assert.Equal(t, i, row.Index)
	}
	assert.False(t, result.Rows[2].Errors.OK())
	assert.NotEmpty(t, result.BatchID)
}

func TestIngestBatch_DedupDoesNotIncrementCreated(t *testing.T) {
	// Two byte-equivalent payloads, one with keys built in a different
	// insertion order: same atom ID, single stored record.
	s, atoms := newService(t)

	a := salesInput(100)
	b := evidence.Input{
		AtomType: "sales_volume",
		Payload: map[string]any{
			"quantity":    float64(100),
			"region":      "EU",
			"device_code": "DEV-1",
		},
		Provenance: contracts.Provenance{SourceSystem: "other-file"},
		PSURPeriod: a.PSURPeriod,
	}

	result, err := s.IngestBatch(context.Background(), []evidence.Input{a, b})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Deduplicated)
	assert.Equal(t, result.Rows[0].AtomID, result.Rows[1].AtomID)

	stored, err := atoms.ListByType(context.Background(), "sales_volume")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestIngestBatch_SupersessionCounted(t *testing.T) {
	s, _ := newService(t)

	first := evidence.Input{
		AtomType: "complaint_record",
		Payload: map[string]any{
			"complaint_id":  "C-9",
			"device_code":   "DEV-1",
			"received_date": "2024-04-02",
			"description":   "intermittent alarm",
			"severity":      "minor",
		},
		Provenance: contracts.Provenance{SourceSystem: "complaints-csv"},
	}
	_, err := s.IngestBatch(context.Background(), []evidence.Input{first})
	require.NoError(t, err)

	// Same complaint, severity revised: same logical key, new hash.
	revised := first
	revised.Payload = map[string]any{
		"complaint_id":  "C-9",
		"device_code":   "DEV-1",
		"received_date": "2024-04-02",
		"description":   "intermittent alarm",
		"severity":      "major",
	}
	result, err := s.IngestBatch(context.Background(), []evidence.Input{revised})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Superseded)
	assert.NotEmpty(t, result.Rows[0].SupersededAtomID)
}

func TestIngestBatch_WithObservability(t *testing.T) {
	// A disabled provider is inert but still runs the span wrapping and
	// the per-type atom counters.
	cfg := observability.DefaultConfig()
	cfg.Enabled = false
	obs, err := observability.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })

	types, err := evidence.NewTypeRegistry(evidence.DefaultTypeSpecs())
	require.NoError(t, err)
	atoms := store.NewMemoryAtomStore()
	s := NewService(evidence.NewBuilder(types), atoms, WithObservability(obs))

	result, err := s.IngestBatch(context.Background(), []evidence.Input{salesInput(100), salesInput(200)})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	require.Len(t, result.Rows, 2)
	for _, row := range result.Rows {
		assert.True(t, row.Created)
	}
}

func TestIngestBatch_InvalidRowsNotStored(t *testing.T) {
	s, atoms := newService(t)

	bad := evidence.Input{AtomType: "sales_volume", Payload: map[string]any{}}
	result, err := s.IngestBatch(context.Background(), []evidence.Input{bad})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Invalid)
	all, err := atoms.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
