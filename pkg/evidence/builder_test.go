package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	types, err := NewTypeRegistry(DefaultTypeSpecs())
	require.NoError(t, err)
	return NewBuilder(types).WithClock(func() time.Time {
		return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	})
}

func validProvenance() contracts.Provenance {
	return contracts.Provenance{
		SourceSystem:   "complaint-db",
		SourceFileHash: "sha256:abc123",
		Uploader:       "qa-team",
		UploadedAt:     time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC),
	}
}

func TestBuild_ValidSalesVolume(t *testing.T) {
	b := testBuilder(t)

	res := b.Build(Input{
		AtomType: "sales_volume",
		Payload: map[string]any{
			"device_code": "DEV-1",
			"region":      "EU",
			"quantity":    100,
		},
		Provenance: validProvenance(),
	})

	require.Empty(t, res.Errors)
	require.NotNil(t, res.Atom)
	assert.Equal(t, contracts.AtomStatusValid, res.Atom.Status)
	assert.Equal(t, "sales_volume", res.Atom.AtomType)
	assert.NotEmpty(t, res.Atom.ContentHash)
	assert.Equal(t, "sales_volume:"+res.Atom.ContentHash, res.Atom.AtomID)
	assert.Equal(t, 1, res.Atom.Version)
}

func TestBuild_SameLogicalPayloadSameAtomID(t *testing.T) {
	b := testBuilder(t)

	// Same logical content, keys inserted in a different order, different
	// source files. Both must yield the same atom ID.
	first := b.Build(Input{
		AtomType: "complaint_record",
		Payload: map[string]any{
			"complaint_id":  "C-100",
			"device_code":   "DEV-1",
			"received_date": "2024-05-01",
			"description":   "intermittent alarm failure",
		},
		Provenance: validProvenance(),
	})

	reordered := map[string]any{}
	reordered["description"] = "intermittent alarm failure"
	reordered["received_date"] = "2024-05-01"
	reordered["device_code"] = "DEV-1"
	reordered["complaint_id"] = "C-100"

	prov := validProvenance()
	prov.SourceFileHash = "sha256:other-file"
	second := b.Build(Input{
		AtomType:   "complaint_record",
		Payload:    reordered,
		Provenance: prov,
	})

	require.Empty(t, first.Errors)
	require.Empty(t, second.Errors)
	assert.Equal(t, first.Atom.AtomID, second.Atom.AtomID)
}

func TestBuild_ValueChangeChangesAtomID(t *testing.T) {
	b := testBuilder(t)

	base := map[string]any{
		"device_code": "DEV-1",
		"region":      "EU",
		"quantity":    100,
	}
	changed := map[string]any{
		"device_code": "DEV-1",
		"region":      "EU",
		"quantity":    101,
	}

	r1 := b.Build(Input{AtomType: "sales_volume", Payload: base, Provenance: validProvenance()})
	r2 := b.Build(Input{AtomType: "sales_volume", Payload: changed, Provenance: validProvenance()})

	assert.NotEqual(t, r1.Atom.AtomID, r2.Atom.AtomID)
}

func TestBuild_MissingRequiredField(t *testing.T) {
	b := testBuilder(t)

	res := b.Build(Input{
		AtomType: "sales_volume",
		Payload: map[string]any{
			"device_code": "DEV-1",
			"region":      "EU",
		},
		Provenance: validProvenance(),
	})

	require.NotEmpty(t, res.Errors)
	assert.Equal(t, contracts.AtomStatusInvalid, res.Atom.Status)

	var paths []string
	for _, e := range res.Errors {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "/payload/quantity")
}

func TestBuild_WrongFieldType(t *testing.T) {
	b := testBuilder(t)

	res := b.Build(Input{
		AtomType: "sales_volume",
		Payload: map[string]any{
			"device_code": "DEV-1",
			"region":      "EU",
			"quantity":    "a lot",
		},
		Provenance: validProvenance(),
	})

	require.NotEmpty(t, res.Errors)
	assert.Equal(t, contracts.AtomStatusInvalid, res.Atom.Status)
	assert.Equal(t, "/payload/quantity", res.Errors[0].Path)
	assert.Equal(t, contracts.CodeWrongType, res.Errors[0].Code)
}

func TestBuild_UnknownTypeFallsBackToObjectCheck(t *testing.T) {
	b := testBuilder(t)

	res := b.Build(Input{
		AtomType: "exotic_registry_extract",
		Payload: map[string]any{
			"anything": "goes",
		},
		Provenance: validProvenance(),
	})

	// No required-field check for unregistered types.
	assert.Empty(t, res.Errors)
	assert.Equal(t, contracts.AtomStatusValid, res.Atom.Status)
	assert.Empty(t, res.Atom.LogicalKey)
}

func TestBuild_BadPeriod(t *testing.T) {
	b := testBuilder(t)

	res := b.Build(Input{
		AtomType: "sales_volume",
		Payload: map[string]any{
			"device_code": "DEV-1",
			"region":      "EU",
			"quantity":    50,
		},
		PSURPeriod: &contracts.Period{
			Start: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Provenance: validProvenance(),
	})

	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "/psur_period", res.Errors[0].Path)
	assert.Equal(t, contracts.CodeBadPeriod, res.Errors[0].Code)
}

func TestBuild_LogicalKey(t *testing.T) {
	b := testBuilder(t)

	res := b.Build(Input{
		AtomType: "complaint_record",
		Payload: map[string]any{
			"complaint_id":  "C-200",
			"device_code":   "DEV-9",
			"received_date": "2024-02-02",
			"description":   "housing crack",
		},
		Provenance: validProvenance(),
	})

	require.Empty(t, res.Errors)
	assert.Equal(t, "complaint_record|C-200|DEV-9", res.Atom.LogicalKey)
}

func TestBuildAll_PerRowErrors(t *testing.T) {
	b := testBuilder(t)

	results := b.BuildAll([]Input{
		{
			AtomType:   "sales_volume",
			Payload:    map[string]any{"device_code": "DEV-1", "region": "EU", "quantity": 10},
			Provenance: validProvenance(),
		},
		{
			AtomType:   "sales_volume",
			Payload:    map[string]any{"region": "EU"},
			Provenance: validProvenance(),
		},
		{
			AtomType:   "sales_volume",
			Payload:    map[string]any{"device_code": "DEV-2", "region": "US", "quantity": 20},
			Provenance: validProvenance(),
		},
	})

	require.Len(t, results, 3)
	assert.Empty(t, results[0].Errors)
	assert.NotEmpty(t, results[1].Errors)
	assert.Empty(t, results[2].Errors)
}

func TestNewTypeRegistry_DuplicateType(t *testing.T) {
	_, err := NewTypeRegistry([]TypeSpec{
		{AtomType: "sales_volume"},
		{AtomType: "sales_volume"},
	})
	require.Error(t, err)
}
