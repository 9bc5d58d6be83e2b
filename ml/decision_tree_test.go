package ml

import (
	"context"
	"errors"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := NewDecisionTree("toy", "v1", []string{"a", "b"})
	if err := model.Train(features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := model.PredictVector([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	if confidence <= 0 {
		t.Fatalf("expected confidence > 0")
	}
	if label, _, _ := model.PredictVector([]float64{0.85, 0.85}); label != 2 {
		t.Fatalf("expected label 2, got %d", label)
	}
}

func TestDecisionTreeDeepChildIndices(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}}
	labels := []int{1, 1, 2, 2, 3, 3, 1, 1}

	model := NewDecisionTree("deep", "v1", []string{"x"})
	if err := model.Train(features, labels, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := TreeArtifact(model).Validate(); err != nil {
		t.Fatalf("trained tree should validate: %v", err)
	}
	for i, f := range features {
		label, _, err := model.PredictVector(f)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if label != labels[i] {
			t.Fatalf("row %d: expected %d, got %d", i, labels[i], label)
		}
	}
}

func TestDecisionTreePredictSchemaMismatch(t *testing.T) {
	model := NewDecisionTree("wheat", "v1", WheatFeatureNames[:7])
	if err := model.Train([][]float64{{1, 1, 1, 1, 1, 1, 1}}, []int{1}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fv, err := BuildWheatFeatures(wheatForm())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := model.Predict(context.Background(), fv); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestDecisionTreeUntrained(t *testing.T) {
	model := NewDecisionTree("empty", "v1", nil)
	if _, _, err := model.PredictVector(nil); !errors.Is(err, ErrModelNotTrained) {
		t.Fatalf("expected ErrModelNotTrained, got %v", err)
	}
}
