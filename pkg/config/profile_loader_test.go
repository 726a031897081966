package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfile = `
name: EU MDR default
code: eu
artifact_type: psur
satisfaction:
  complaint_record: [complaints_aggregate]
  incident_record: [incidents_aggregate]
evidence_tiers:
  device_registration: 0
  sales_volume: 1
  complaints_aggregate: 2
  literature_review: 3
audit_weights:
  obligation_coverage: 0.25
  dependency_chain: 0.20
`

func writeProfile(t *testing.T, dir, code, content string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+code+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "eu", sampleProfile)

	p, err := LoadProfile(dir, "EU")
	require.NoError(t, err)

	assert.Equal(t, "eu", p.Code)
	assert.Equal(t, "psur", p.ArtifactType)
	assert.Equal(t, []string{"complaints_aggregate"}, p.Satisfaction["complaint_record"])
	assert.Equal(t, 1, p.EvidenceTiers["sales_volume"])
	assert.InDelta(t, 0.25, p.AuditWeights["obligation_coverage"], 1e-9)
}

func TestLoadProfile_Missing(t *testing.T) {
	_, err := LoadProfile(t.TempDir(), "xx")
	require.Error(t, err)
}

func TestLoadProfile_TierOutOfRange(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bad", "evidence_tiers:\n  sales_volume: 9\n")

	_, err := LoadProfile(dir, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestLoadAllProfiles_CodeFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "uk", "name: UK profile\n")

	profiles, err := LoadAllProfiles(dir)
	require.NoError(t, err)

	require.Contains(t, profiles, "uk")
	assert.Equal(t, "uk", profiles["uk"].Code)
	assert.Equal(t, "psur", profiles["uk"].ArtifactType)
}
