package ml

import (
	"context"
	"math"
)

// CarFallback is the closed-form price estimate used when no car artifact
// is usable:
//
//	price = Base + (year-BaseYear)*YearRate - (km/10000)*KmRate, at least Floor
type CarFallback struct {
	Base     float64
	BaseYear float64
	YearRate float64
	KmRate   float64
	Floor    float64
}

func DefaultCarFallback() CarFallback {
	return CarFallback{
		Base:     15.0,
		BaseYear: 2010,
		YearRate: 0.5,
		KmRate:   0.2,
		Floor:    1.0,
	}
}

// Estimate returns the price in lakhs, rounded to two decimals.
func (f CarFallback) Estimate(year, km float64) float64 {
	price := f.Base + (year-f.BaseYear)*f.YearRate - (km/10000)*f.KmRate
	if math.IsNaN(price) || price < f.Floor {
		price = f.Floor
	}
	return round2(price)
}

func (f CarFallback) Name() string       { return "car-fallback" }
func (f CarFallback) Version() string    { return "formula-v1" }
func (f CarFallback) Features() []string { return CarNumericNames }

func (f CarFallback) Predict(_ context.Context, fv FeatureVector) (Result, error) {
	year, _ := fv.Get("Year")
	km, _ := fv.Get("Kilometers_Driven")
	return Result{
		Value:   f.Estimate(year, km),
		Model:   f.Name(),
		Version: f.Version(),
	}, nil
}

// ConstantClassifier always answers the same class. It stands in for the
// wheat model when no artifact loads.
type ConstantClassifier struct {
	Label int
}

func (c ConstantClassifier) Name() string       { return "wheat-fallback" }
func (c ConstantClassifier) Version() string    { return "constant-v1" }
func (c ConstantClassifier) Features() []string { return WheatFeatureNames }

func (c ConstantClassifier) Predict(_ context.Context, _ FeatureVector) (Result, error) {
	return Result{
		Value:   float64(c.Label),
		Label:   c.Label,
		Model:   c.Name(),
		Version: c.Version(),
	}, nil
}
