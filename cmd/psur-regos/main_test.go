package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
	"github.com/Smarticus81/psur-regos/pkg/ingest"
	"github.com/Smarticus81/psur-regos/pkg/store"
)

func TestRun_Help(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"psur-regos", "help"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	if !strings.Contains(out.String(), "psur-regos <command>") {
		t.Errorf("usage missing from output: %s", out.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"psur-regos", "frobnicate"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "Unknown command") {
		t.Errorf("missing error message: %s", errOut.String())
	}
}

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"psur-regos", "version"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	if !strings.Contains(out.String(), version) {
		t.Errorf("version missing from output: %s", out.String())
	}
}

func TestRegistryVerify_Defaults(t *testing.T) {
	// The built-in obligations must resolve every reference in the
	// default template.
	var out, errOut bytes.Buffer
	code := Run([]string{"psur-regos", "registry", "verify"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, want 0 (stderr: %s)", code, errOut.String())
	}
	if !strings.Contains(out.String(), "all references resolve") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestIngestCmd_WritesAtoms(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "rows.json")
	storePath := filepath.Join(dir, "atoms.db")

	rows := `[{
		"atom_type": "sales_volume",
		"payload": {"device_code": "DEV-1", "region": "EU", "quantity": 500},
		"provenance": {"source_system": "erp"}
	}]`
	if err := os.WriteFile(inputPath, []byte(rows), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	code := Run([]string{"psur-regos", "ingest", "--input", inputPath, "--store", storePath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, want 0 (stderr: %s)", code, errOut.String())
	}

	var result ingest.BatchResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("created = %d, want 1", result.Created)
	}

	atoms, err := store.OpenSQLiteAtomStore(storePath)
	if err != nil {
		t.Fatal(err)
	}
	defer atoms.Close()
	stored, err := atoms.ListAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].AtomType != "sales_volume" {
		t.Errorf("stored atoms = %+v", stored)
	}
}

func TestCoverageCmd_EmptyStore(t *testing.T) {
	dir := t.TempDir()
	casePath := filepath.Join(dir, "case.json")
	storePath := filepath.Join(dir, "atoms.db")

	caseDoc := `{
		"case_id": "case-7",
		"template_id": "psur-eu-mdr-v1",
		"period": {"start": "2024-01-01T00:00:00Z", "end": "2024-12-31T00:00:00Z"},
		"jurisdictions": ["EU"]
	}`
	if err := os.WriteFile(casePath, []byte(caseDoc), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	code := Run([]string{"psur-regos", "coverage", "--case", casePath, "--store", storePath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, want 0 (stderr: %s)", code, errOut.String())
	}

	var snap contracts.CoverageSnapshot
	if err := json.Unmarshal(out.Bytes(), &snap); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if snap.CaseID != "case-7" {
		t.Errorf("case = %s, want case-7", snap.CaseID)
	}
	if len(snap.Obligations) == 0 {
		t.Error("expected built-in obligations in snapshot")
	}
}

func TestQueueCmd_DefaultTemplate(t *testing.T) {
	dir := t.TempDir()
	casePath := filepath.Join(dir, "case.json")
	storePath := filepath.Join(dir, "atoms.db")

	caseDoc := `{
		"case_id": "case-8",
		"template_id": "psur-eu-mdr-v1",
		"period": {"start": "2024-01-01T00:00:00Z", "end": "2024-12-31T00:00:00Z"},
		"jurisdictions": ["EU"]
	}`
	if err := os.WriteFile(casePath, []byte(caseDoc), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	code := Run([]string{"psur-regos", "queue", "--case", casePath, "--store", storePath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, want 0 (stderr: %s)", code, errOut.String())
	}

	var q contracts.GenerationQueue
	if err := json.Unmarshal(out.Bytes(), &q); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(q.Queue) == 0 {
		t.Fatal("expected a non-empty queue with no atoms ingested")
	}
	// Dependencies hold: sales volume is generated before the complaint
	// rate that divides by it.
	rank := make(map[string]int)
	for _, item := range q.Queue {
		rank[item.SlotID] = item.Rank
	}
	if rank["slot-complaint-rate"] <= rank["slot-sales-volume"] {
		t.Errorf("complaint rate ranked %d, sales volume %d", rank["slot-complaint-rate"], rank["slot-sales-volume"])
	}
}

func writeCaseFile(t *testing.T, dir string) string {
	t.Helper()
	casePath := filepath.Join(dir, "case.json")
	caseDoc := `{
		"case_id": "case-9",
		"template_id": "psur-eu-mdr-v1",
		"period": {"start": "2024-01-01T00:00:00Z", "end": "2024-12-31T00:00:00Z"},
		"jurisdictions": ["EU"]
	}`
	if err := os.WriteFile(casePath, []byte(caseDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	return casePath
}

func TestQueueCmd_ProfileOverridesTiers(t *testing.T) {
	// A profile moving sales volume to the conclusions tier must show up
	// in the emitted queue items.
	dir := t.TempDir()
	casePath := writeCaseFile(t, dir)
	storePath := filepath.Join(dir, "atoms.db")

	profilesDir := filepath.Join(dir, "profiles")
	if err := os.MkdirAll(profilesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	profile := `name: Strict tiering
code: strict
artifact_type: psur
evidence_tiers:
  sales_volume: 4
`
	if err := os.WriteFile(filepath.Join(profilesDir, "profile_strict.yaml"), []byte(profile), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	code := Run([]string{"psur-regos", "queue",
		"--case", casePath, "--store", storePath,
		"--profiles-dir", profilesDir, "--profile", "strict"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, want 0 (stderr: %s)", code, errOut.String())
	}

	var q contracts.GenerationQueue
	if err := json.Unmarshal(out.Bytes(), &q); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	found := false
	for _, item := range q.Queue {
		if item.SlotID == "slot-sales-volume" {
			found = true
			if item.EvidenceTier != 4 {
				t.Errorf("sales volume tier = %d, want 4 from profile", item.EvidenceTier)
			}
		}
	}
	if !found {
		t.Fatal("slot-sales-volume missing from queue")
	}
}

func TestCoverageCmd_ProfileSeedReplacesDefaults(t *testing.T) {
	dir := t.TempDir()
	casePath := writeCaseFile(t, dir)
	storePath := filepath.Join(dir, "atoms.db")

	profilesDir := filepath.Join(dir, "profiles")
	if err := os.MkdirAll(profilesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	seed := `obligations:
  - obligation_id: "TEST:OB:1"
    jurisdiction: EU
    artifact_type: psur
    kind: obligation
    title: Test obligation
    version: 1.0.0
    mandatory: true
    required_evidence_types: [sales_volume]
`
	if err := os.WriteFile(filepath.Join(profilesDir, "seed.yaml"), []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}
	profile := `name: Custom seed
code: custom
artifact_type: psur
seed_files: [seed.yaml]
`
	if err := os.WriteFile(filepath.Join(profilesDir, "profile_custom.yaml"), []byte(profile), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	code := Run([]string{"psur-regos", "coverage",
		"--case", casePath, "--store", storePath,
		"--profiles-dir", profilesDir, "--profile", "custom"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, want 0 (stderr: %s)", code, errOut.String())
	}

	var snap contracts.CoverageSnapshot
	if err := json.Unmarshal(out.Bytes(), &snap); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if _, ok := snap.Obligations["TEST:OB:1"]; !ok {
		t.Error("profile seed obligation missing from snapshot")
	}
	if _, ok := snap.Obligations["EU-MDR:ART-86:1a"]; ok {
		t.Error("built-in obligations should be replaced when a profile supplies seeds")
	}
}
