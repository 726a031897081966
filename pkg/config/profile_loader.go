package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EngineProfile is a jurisdiction-specific tuning profile: the
// satisfaction relation, the evidence tier table, and the audit layer
// weights. Everything has a built-in default; a profile only overrides.
type EngineProfile struct {
	Name         string `yaml:"name" json:"name"`
	Code         string `yaml:"code" json:"code"`
	ArtifactType string `yaml:"artifact_type" json:"artifact_type"`
	// Satisfaction maps an available atom type to the required types it
	// satisfies.
	Satisfaction map[string][]string `yaml:"satisfaction" json:"satisfaction"`
	// EvidenceTiers maps an evidence type to its queue ranking tier.
	EvidenceTiers map[string]int `yaml:"evidence_tiers" json:"evidence_tiers"`
	// AuditWeights maps an audit layer name to its share of the overall
	// score.
	AuditWeights map[string]float64 `yaml:"audit_weights" json:"audit_weights"`
	// SeedFiles lists obligation seed documents to load, relative to the
	// profile file.
	SeedFiles []string `yaml:"seed_files" json:"seed_files"`
	// TemplateFiles lists template documents to load, relative to the
	// profile file.
	TemplateFiles []string `yaml:"template_files" json:"template_files"`
}

// Validate checks the profile's internal consistency.
func (p *EngineProfile) Validate() error {
	for layer, w := range p.AuditWeights {
		if w < 0 {
			return fmt.Errorf("profile %q: negative weight for layer %s", p.Code, layer)
		}
	}
	for evidenceType, tier := range p.EvidenceTiers {
		if tier < 0 || tier > 4 {
			return fmt.Errorf("profile %q: tier %d for %s is out of range 0-4", p.Code, tier, evidenceType)
		}
	}
	return nil
}

// LoadProfile loads an engine profile YAML by jurisdiction code. It
// searches the profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*EngineProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}
	return parseProfile(data, code)
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles
// directory, keyed by code.
func LoadAllProfiles(profilesDir string) (map[string]*EngineProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*EngineProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		base := filepath.Base(path)
		code := strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		profile, err := parseProfile(data, code)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		profiles[profile.Code] = profile
	}
	return profiles, nil
}

func parseProfile(data []byte, fallbackCode string) (*EngineProfile, error) {
	var profile EngineProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", fallbackCode, err)
	}
	if profile.Code == "" {
		profile.Code = fallbackCode
	}
	if profile.ArtifactType == "" {
		profile.ArtifactType = "psur"
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}
