package ml

import (
	"context"
	"errors"
	"math"
)

// LinearModel is a regression over numeric features plus one-hot
// categorical weights. Categories missing from the weight table contribute
// nothing, the same as an encoder that ignores unknown values.
type LinearModel struct {
	name         string
	version      string
	features     []string
	intercept    float64
	coefficients []float64
	categories   map[string]map[string]float64
	floor        *float64
}

func NewLinearModel(name, version string, features []string, intercept float64, coefficients []float64, categories map[string]map[string]float64, floor *float64) (*LinearModel, error) {
	if len(features) == 0 {
		return nil, ErrModelNotTrained
	}
	if len(features) != len(coefficients) {
		return nil, errors.New("coefficients and features size mismatch")
	}
	return &LinearModel{
		name:         name,
		version:      version,
		features:     append([]string(nil), features...),
		intercept:    intercept,
		coefficients: append([]float64(nil), coefficients...),
		categories:   categories,
		floor:        floor,
	}, nil
}

func (m *LinearModel) Name() string       { return m.name }
func (m *LinearModel) Version() string    { return m.version }
func (m *LinearModel) Features() []string { return m.features }

func (m *LinearModel) Predict(ctx context.Context, fv FeatureVector) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := checkSchema(m.features, fv); err != nil {
		return Result{}, err
	}

	value := m.intercept
	for i, coef := range m.coefficients {
		value += coef * fv.Values[i]
	}
	for field, weights := range m.categories {
		value += weights[fv.Categories[field]]
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Result{}, errors.New("prediction is not finite")
	}
	if m.floor != nil && value < *m.floor {
		value = *m.floor
	}

	return Result{
		Value:   round2(value),
		Model:   m.name,
		Version: m.version,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
