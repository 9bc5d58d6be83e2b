package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

const treeJSON = `{
  "kind": "decision_tree",
  "name": "seed_pipeline",
  "version": "2024.1",
  "features": ["Area", "Perimeter", "Compactness", "Length", "Width", "AsymmetryCoeff", "Groove", "Length_Width_Ratio"],
  "nodes": [
    {"feature_idx": 0, "threshold": 13.5, "left_child": 1, "right_child": 2, "class_label": 1},
    {"feature_idx": -1, "left_child": -1, "right_child": -1, "class_label": 3, "is_leaf": true, "confidence": 0.9},
    {"feature_idx": -1, "left_child": -1, "right_child": -1, "class_label": 2, "is_leaf": true, "confidence": 0.8}
  ]
}`

const linearYAML = `
kind: linear
name: used_car_price
version: "7"
features: [Year, Kilometers_Driven, Mileage, Engine, Power, Seats]
intercept: -1000
coefficients: [0.5, -0.00002, 0, 0, 0, 0]
categories:
  Location:
    Mumbai: 1.5
floor: 1
`

const linearTOML = `
kind = "linear"
name = "used_car_price"
version = "toml"
features = ["Year", "Kilometers_Driven", "Mileage", "Engine", "Power", "Seats"]
intercept = 0.0
coefficients = [0.0, 0.0, 0.0, 0.0, 0.0, 1.0]
floor = 1.0

[categories.Fuel_Type]
Diesel = 2.0
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadFirstSkipsBrokenCandidates(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.json")
	broken := writeFile(t, dir, "broken.json", "not a model")
	good := writeFile(t, dir, "seed.json", treeJSON)

	model, path, attempts := LoadFirst([]string{missing, broken, good}, zap.NewNop())
	if model == nil {
		t.Fatal("expected model to load")
	}
	if path != good {
		t.Fatalf("expected %s, got %s", good, path)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	if attempts[0].OK || attempts[1].OK || !attempts[2].OK {
		t.Fatalf("unexpected attempt outcomes: %+v", attempts)
	}
	if attempts[2].Decoder != "json" {
		t.Fatalf("expected json decoder, got %s", attempts[2].Decoder)
	}

	fv, err := BuildWheatFeatures(wheatForm())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := model.Predict(context.Background(), fv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Label != 2 || result.Confidence != 0.8 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestLoadFirstNothingLoads(t *testing.T) {
	model, path, attempts := LoadFirst([]string{filepath.Join(t.TempDir(), "nope.json")}, zap.NewNop())
	if model != nil || path != "" {
		t.Fatal("expected no model")
	}
	if len(attempts) != 1 || attempts[0].Error == "" {
		t.Fatalf("expected a failed attempt, got %+v", attempts)
	}
}

func TestLoadModelYAMLAndTOML(t *testing.T) {
	dir := t.TempDir()
	// The extension is misleading on purpose: decoders fall through.
	yamlPath := writeFile(t, dir, "car.model", linearYAML)
	tomlPath := writeFile(t, dir, "car.toml", linearTOML)

	fv, err := BuildCarFeatures(Fields{
		"brand_model": "Honda City", "location": "Mumbai", "fuel_type": "Diesel",
		"year": "2015", "kilometers_driven": "50000", "seats": "7",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	yamlModel, err := LoadModel(ArtifactLinear, yamlPath)
	if err != nil {
		t.Fatalf("yaml load: %v", err)
	}
	result, err := yamlModel.Predict(context.Background(), fv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// -1000 + 0.5*2015 - 0.00002*50000 + 1.5
	if result.Value != 8 {
		t.Fatalf("expected 8, got %v", result.Value)
	}

	tomlModel, err := LoadModel(ArtifactLinear, tomlPath)
	if err != nil {
		t.Fatalf("toml load: %v", err)
	}
	result, err = tomlModel.Predict(context.Background(), fv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Value != 9 || tomlModel.Version() != "toml" {
		t.Fatalf("unexpected toml result: %+v", result)
	}

	if _, err := LoadModel(ArtifactDecisionTree, tomlPath); err == nil {
		t.Fatal("expected kind mismatch error")
	}
}

func TestResolveCandidatesOrder(t *testing.T) {
	got := ResolveCandidates([]string{"/etc/model.json", "/etc/model.json"}, "seed.json", "/srv/app", "/srv/app")
	want := []string{"/etc/model.json", "/srv/app/artifacts/seed.json", "/srv/app/seed.json"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
