package ml

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies which prediction flow a model or feature vector belongs to.
type Kind string

const (
	KindWheat Kind = "wheat"
	KindCar   Kind = "car"
)

var (
	ErrModelNotTrained = errors.New("model not trained")
	ErrSchemaMismatch  = errors.New("feature schema mismatch")
	ErrUnsupportedKind = errors.New("unsupported model type")
	ErrAmbiguousField  = errors.New("ambiguous field")
)

// Result is the outcome of a single prediction.
type Result struct {
	Value      float64 `json:"value"`
	Label      int     `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Fallback   bool    `json:"fallback"`
	Note       string  `json:"note,omitempty"`
	Model      string  `json:"model"`
	Version    string  `json:"version"`
}

// Model is anything that can turn a feature vector into a Result: a loaded
// artifact or one of the closed-form fallbacks.
type Model interface {
	Name() string
	Version() string
	// Features is the ordered numeric schema the model was trained on.
	Features() []string
	Predict(ctx context.Context, fv FeatureVector) (Result, error)
}

// checkSchema rejects vectors whose numeric fields differ from the trained schema.
func checkSchema(expected []string, fv FeatureVector) error {
	mismatch := len(expected) != len(fv.Names)
	for i := 0; !mismatch && i < len(expected); i++ {
		mismatch = fv.Names[i] != expected[i]
	}
	if mismatch {
		return fmt.Errorf("%w: model expects %v, got %v", ErrSchemaMismatch, expected, fv.Names)
	}
	return nil
}
