package ml

import (
	"context"
	"math"
	"strconv"
	"strings"
	"testing"
)

const seedsCSV = `area,perimeter,compactness,length,width,asymmetry_coeff,groove,type
15.26,14.84,0.871,5.763,3.312,2.221,5.22,1
14.88,14.57,0.8811,5.554,3.333,1.018,4.956,1
17.63,15.98,0.8673,6.191,3.561,4.076,6.06,2
16.84,15.67,0.8623,5.998,3.484,4.675,5.877,2
11.23,12.63,0.884,4.902,2.879,2.269,4.703,3
11.84,13.21,0.8521,5.175,2.836,3.598,5.044,3
`

func TestWheatTrainingRoundTrip(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(seedsCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	features, labels, err := WheatTrainingSet(ds, "type")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(features) != 6 || len(features[0]) != len(WheatFeatureNames) {
		t.Fatalf("unexpected shape %dx%d", len(features), len(features[0]))
	}

	tree := NewDecisionTree("seed_pipeline", "test", WheatFeatureNames)
	if err := tree.Train(features, labels, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc := Accuracy(tree, features, labels); acc != 1 {
		t.Fatalf("expected perfect training accuracy, got %f", acc)
	}

	model, err := TreeArtifact(tree).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fv, _ := BuildWheatFeatures(ds.Rows[2])
	result, err := model.Predict(context.Background(), fv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Label != 2 {
		t.Fatalf("expected label 2, got %d", result.Label)
	}
}

func TestFitLinearRecoversFormula(t *testing.T) {
	var b strings.Builder
	b.WriteString("brand_model,location,year,kilometers_driven,seats,price\n")
	locations := []string{"Delhi", "Mumbai"}
	for i := 0; i < 24; i++ {
		year := 2005 + i%12
		km := 10000 * (1 + i%7)
		loc := locations[i%2]
		price := 15 + float64(year-2010)*0.5 - float64(km)/10000*0.2
		if loc == "Mumbai" {
			price += 1
		}
		b.WriteString("Honda City," + loc + "," + itoa(year) + "," + itoa(km) + ",5," + ftoa(price) + "\n")
	}

	ds, err := ReadCSV(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vectors, targets, err := CarTrainingSet(ds, "price")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	floor := 1.0
	model, err := FitLinear("used_car_price", "test", vectors, targets, &floor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rmse := RMSE(model, vectors, targets); rmse > 1e-6 {
		t.Fatalf("expected exact fit, rmse=%g", rmse)
	}
	if w := model.categories["Location"]["Mumbai"]; math.Abs(w-1) > 1e-6 {
		t.Fatalf("expected Mumbai weight 1, got %f", w)
	}
}

func itoa(v int) string     { return strconv.Itoa(v) }
func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
