// Package discovery turns unit manifests into candidate batches for
// the registry
package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/marionette/marionette/pkg/types"
)

// ManifestVersion is the only supported manifest schema version
const ManifestVersion = "1.0"

// Manifest describes a set of candidate units
type Manifest struct {
	Version string         `yaml:"version" json:"version" toml:"version"`
	Units   []ManifestUnit `yaml:"units" json:"units" toml:"units"`
}

// ManifestUnit is the raw declaration of one unit
type ManifestUnit struct {
	Ref         string                 `yaml:"ref" json:"ref" toml:"ref"`
	Name        string                 `yaml:"name,omitempty" json:"name,omitempty" toml:"name,omitempty"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty" toml:"description,omitempty"`
	Priority    *int                   `yaml:"priority,omitempty" json:"priority,omitempty" toml:"priority,omitempty"`
	Prioritized bool                   `yaml:"prioritized,omitempty" json:"prioritized,omitempty" toml:"prioritized,omitempty"`
	DependsOn   []string               `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty" toml:"dependsOn,omitempty"`
	Categories  []string               `yaml:"categories,omitempty" json:"categories,omitempty" toml:"categories,omitempty"`
	Loader      string                 `yaml:"loader,omitempty" json:"loader,omitempty" toml:"loader,omitempty"`
	AutoClose   *bool                  `yaml:"autoClose,omitempty" json:"autoClose,omitempty" toml:"autoClose,omitempty"`
	Attributes  map[string]interface{} `yaml:"attributes,omitempty" json:"attributes,omitempty" toml:"attributes,omitempty"`
}

// ParseRef parses a canonical reference name. The segment after the
// last dot is the type name; everything before it is the package path.
func ParseRef(raw string) (types.Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.Ref{}, fmt.Errorf("empty unit reference")
	}
	idx := strings.LastIndex(raw, ".")
	if idx < 0 {
		return types.NewRef("", raw), nil
	}
	pkgPath, typeName := raw[:idx], raw[idx+1:]
	if typeName == "" {
		return types.Ref{}, fmt.Errorf("unit reference %q has no type name", raw)
	}
	return types.NewRef(pkgPath, typeName), nil
}

// LoadManifest reads and validates a manifest file. The format is
// chosen by extension: .yaml/.yml, .json, or .toml.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", path)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks the manifest's structural invariants
func (m *Manifest) Validate() error {
	if m.Version != ManifestVersion {
		return fmt.Errorf("unsupported manifest version: %q", m.Version)
	}
	if len(m.Units) == 0 {
		return fmt.Errorf("no units defined")
	}

	seen := make(map[string]bool, len(m.Units))
	for i, u := range m.Units {
		ref, err := ParseRef(u.Ref)
		if err != nil {
			return fmt.Errorf("unit %d: %w", i, err)
		}
		key := ref.String()
		if seen[key] {
			return fmt.Errorf("duplicate unit reference: %s", key)
		}
		seen[key] = true
	}

	// Dependencies must resolve within the manifest.
	for _, u := range m.Units {
		for _, dep := range u.DependsOn {
			ref, err := ParseRef(dep)
			if err != nil {
				return fmt.Errorf("unit %s: bad dependency: %w", u.Ref, err)
			}
			if !seen[ref.String()] {
				return fmt.Errorf("unit %s: dependency %s is not declared in this manifest", u.Ref, ref)
			}
		}
	}
	return nil
}

// Candidates converts the manifest into the registry's candidate
// batch, applying defaults: loader "constructor", autoClose on, and
// the explicit-but-unvalued priority marker ranking above unannotated
// units.
func (m *Manifest) Candidates() ([]types.Candidate, error) {
	out := make([]types.Candidate, 0, len(m.Units))
	for _, u := range m.Units {
		ref, err := ParseRef(u.Ref)
		if err != nil {
			return nil, err
		}

		priority := types.PriorityDefault
		switch {
		case u.Priority != nil:
			priority = *u.Priority
		case u.Prioritized:
			priority = types.PriorityMarked
		}

		autoClose := true
		if u.AutoClose != nil {
			autoClose = *u.AutoClose
		}

		deps := make([]types.Ref, 0, len(u.DependsOn))
		for _, raw := range u.DependsOn {
			depRef, err := ParseRef(raw)
			if err != nil {
				return nil, err
			}
			deps = append(deps, depRef)
		}

		out = append(out, types.Candidate{
			Ref:         ref,
			Name:        u.Name,
			Description: u.Description,
			Priority:    priority,
			DependsOn:   deps,
			Categories:  u.Categories,
			Loader:      u.Loader,
			AutoClose:   autoClose,
			Attributes:  u.Attributes,
		})
	}
	return out, nil
}
