package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// seedEntry is the YAML seed format for one obligation.
type seedEntry struct {
	ObligationID          string   `yaml:"obligation_id"`
	Jurisdiction          string   `yaml:"jurisdiction"`
	ArtifactType          string   `yaml:"artifact_type"`
	Kind                  string   `yaml:"kind"`
	Title                 string   `yaml:"title"`
	Text                  string   `yaml:"text"`
	SourceCitation        string   `yaml:"source_citation"`
	Version               string   `yaml:"version"`
	Mandatory             bool     `yaml:"mandatory"`
	RequiredEvidenceTypes []string `yaml:"required_evidence_types"`
	Applicability         string   `yaml:"applicability,omitempty"`
}

type seedFile struct {
	Obligations []seedEntry `yaml:"obligations"`
}

// LoadSeed reads a YAML seed file and constructs the registry from it.
func LoadSeed(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read seed %q: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed constructs the registry from raw YAML seed bytes.
func ParseSeed(data []byte) (*Registry, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("registry: parse seed: %w", err)
	}

	entries := make([]contracts.Obligation, 0, len(file.Obligations))
	for _, e := range file.Obligations {
		kind := contracts.ObligationKind(e.Kind)
		switch kind {
		case contracts.KindObligation, contracts.KindConstraint:
		case "":
			kind = contracts.KindObligation
		default:
			return nil, fmt.Errorf("registry: obligation %s: unknown kind %q", e.ObligationID, e.Kind)
		}

		entries = append(entries, contracts.Obligation{
			ObligationID:          e.ObligationID,
			Jurisdiction:          e.Jurisdiction,
			ArtifactType:          e.ArtifactType,
			Kind:                  kind,
			Title:                 e.Title,
			Text:                  e.Text,
			SourceCitation:        e.SourceCitation,
			Version:               e.Version,
			Mandatory:             e.Mandatory,
			RequiredEvidenceTypes: e.RequiredEvidenceTypes,
			Applicability:         e.Applicability,
		})
	}

	return New(entries)
}
