package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	ArtifactDecisionTree = "decision_tree"
	ArtifactLinear       = "linear"
)

// Artifact is the serialized form of a trained model. The same envelope is
// accepted as JSON, YAML or TOML.
type Artifact struct {
	Kind     string   `json:"kind" yaml:"kind" toml:"kind"`
	Name     string   `json:"name" yaml:"name" toml:"name"`
	Version  string   `json:"version" yaml:"version" toml:"version"`
	Features []string `json:"features" yaml:"features" toml:"features"`

	Nodes []TreeNode `json:"nodes,omitempty" yaml:"nodes,omitempty" toml:"nodes,omitempty"`

	Intercept    float64                       `json:"intercept,omitempty" yaml:"intercept,omitempty" toml:"intercept,omitempty"`
	Coefficients []float64                     `json:"coefficients,omitempty" yaml:"coefficients,omitempty" toml:"coefficients,omitempty"`
	Categories   map[string]map[string]float64 `json:"categories,omitempty" yaml:"categories,omitempty" toml:"categories,omitempty"`
	Floor        *float64                      `json:"floor,omitempty" yaml:"floor,omitempty" toml:"floor,omitempty"`
}

// Validate checks that the artifact can be turned into a working model.
func (a *Artifact) Validate() error {
	if len(a.Features) == 0 {
		return errors.New("artifact declares no features")
	}
	switch a.Kind {
	case ArtifactDecisionTree:
		if len(a.Nodes) == 0 {
			return ErrModelNotTrained
		}
		for i, node := range a.Nodes {
			if node.IsLeaf {
				continue
			}
			if node.FeatureIdx < 0 || node.FeatureIdx >= len(a.Features) {
				return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
			}
			if node.LeftChild <= i || node.LeftChild >= len(a.Nodes) || node.RightChild <= i || node.RightChild >= len(a.Nodes) {
				return fmt.Errorf("node %d: invalid children %d/%d", i, node.LeftChild, node.RightChild)
			}
		}
	case ArtifactLinear:
		if len(a.Coefficients) != len(a.Features) {
			return fmt.Errorf("artifact has %d coefficients for %d features", len(a.Coefficients), len(a.Features))
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, a.Kind)
	}
	return nil
}

// Build turns a validated artifact into a Model.
func (a *Artifact) Build() (Model, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	switch a.Kind {
	case ArtifactDecisionTree:
		tree := NewDecisionTree(a.Name, a.Version, a.Features)
		tree.nodes = append([]TreeNode(nil), a.Nodes...)
		return tree, nil
	default:
		return NewLinearModel(a.Name, a.Version, a.Features, a.Intercept, a.Coefficients, a.Categories, a.Floor)
	}
}

// TreeArtifact captures a trained tree for saving.
func TreeArtifact(dt *DecisionTree) *Artifact {
	return &Artifact{
		Kind:     ArtifactDecisionTree,
		Name:     dt.name,
		Version:  dt.version,
		Features: dt.features,
		Nodes:    dt.nodes,
	}
}

// LinearArtifact captures a fitted linear model for saving.
func LinearArtifact(m *LinearModel) *Artifact {
	return &Artifact{
		Kind:         ArtifactLinear,
		Name:         m.name,
		Version:      m.version,
		Features:     m.features,
		Intercept:    m.intercept,
		Coefficients: m.coefficients,
		Categories:   m.categories,
		Floor:        m.floor,
	}
}

// Save writes the artifact as indented JSON.
func (a *Artifact) Save(path string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}
