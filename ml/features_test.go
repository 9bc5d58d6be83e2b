package ml

import (
	"errors"
	"strings"
	"testing"
)

func wheatForm() Fields {
	return Fields{
		"area":            "15.26",
		"perimeter":       "14.84",
		"compactness":     "0.871",
		"length":          "5.763",
		"width":           "3.312",
		"asymmetry_coeff": "2.221",
		"groove":          "5.22",
	}
}

func TestBuildWheatFeatures(t *testing.T) {
	fv, err := BuildWheatFeatures(wheatForm())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fv.Names) != len(WheatFeatureNames) {
		t.Fatalf("expected %d fields, got %d", len(WheatFeatureNames), len(fv.Names))
	}
	for i, name := range WheatFeatureNames {
		if fv.Names[i] != name {
			t.Fatalf("field %d: expected %s, got %s", i, name, fv.Names[i])
		}
	}
	length, width := 5.763, 3.312
	ratio, _ := fv.Get("Length_Width_Ratio")
	if want := length / width; ratio != want {
		t.Fatalf("expected ratio %f, got %f", want, ratio)
	}
}

func TestBuildWheatFeaturesJSONKeys(t *testing.T) {
	fields := Fields{
		"Area": 15.26, "Perimeter": 14.84, "Compactness": 0.871, "Length": 5.763,
		"Width": 3.312, "AsymmetryCoeff": 2.221, "Groove": 5.22,
	}
	fv, err := BuildWheatFeatures(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if area, _ := fv.Get("Area"); area != 15.26 {
		t.Fatalf("unexpected area %f", area)
	}
}

func TestWheatRatioZeroWidth(t *testing.T) {
	fields := wheatForm()
	fields["width"] = "0"
	fv, err := BuildWheatFeatures(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ratio, _ := fv.Get("Length_Width_Ratio"); ratio != 0 {
		t.Fatalf("expected ratio 0 for zero width, got %f", ratio)
	}

	fields["width"] = "1e-9"
	fv, err = BuildWheatFeatures(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ratio, _ := fv.Get("Length_Width_Ratio"); ratio == 0 {
		t.Fatal("expected non-zero ratio for non-zero width")
	}
}

func TestBuildWheatFeaturesValidation(t *testing.T) {
	fields := wheatForm()
	fields["width"] = "wide"
	delete(fields, "groove")

	_, err := BuildWheatFeatures(fields)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields["Width"] != "not a number" {
		t.Fatalf("unexpected width reason: %q", verr.Fields["Width"])
	}
	if verr.Fields["Groove"] != "is required" {
		t.Fatalf("unexpected groove reason: %q", verr.Fields["Groove"])
	}
}

func TestBuildCarFeaturesDefaults(t *testing.T) {
	fv, err := BuildCarFeatures(Fields{
		"brand_model":       "Honda City",
		"location":          "  mumbai ",
		"year":              "2015",
		"kilometers_driven": "50000",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fv.Categories["Location"] != "Mumbai" {
		t.Fatalf("expected normalized location, got %q", fv.Categories["Location"])
	}
	if fv.Categories["Fuel_Type"] != "Petrol" || fv.Categories["Transmission"] != "Manual" {
		t.Fatalf("expected defaults, got %+v", fv.Categories)
	}
	if seats, _ := fv.Get("Seats"); seats != 5 {
		t.Fatalf("expected default seats 5, got %f", seats)
	}
	if year, _ := fv.Get("Year"); year != 2015 {
		t.Fatalf("expected year 2015, got %f", year)
	}
}

func TestBuildCarFeaturesValidation(t *testing.T) {
	_, err := BuildCarFeatures(Fields{
		"brand_model":       "Honda City",
		"year":              "2015.5",
		"kilometers_driven": "lots",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"Location", "Year", "Kilometers_Driven"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("expected error for %s, got %+v", field, verr.Fields)
		}
	}
}

func TestFeatureVectorKeyStable(t *testing.T) {
	a, _ := BuildCarFeatures(Fields{"brand_model": "Honda City", "location": "Delhi", "year": 2015, "kilometers_driven": 50000})
	b, _ := BuildCarFeatures(Fields{"Brand_Model": "Honda City", "Location": "Delhi", "Year": "2015", "Kilometers_Driven": "50000"})
	if a.Key() != b.Key() {
		t.Fatalf("expected equal keys:\n%s\n%s", a.Key(), b.Key())
	}
}

func TestFieldsExactKeyWins(t *testing.T) {
	fields := wheatForm()
	fields["area"] = "1"
	fields["Area"] = "2"
	for i := 0; i < 50; i++ {
		fv, err := BuildWheatFeatures(fields)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if area, _ := fv.Get("Area"); area != 2 {
			t.Fatalf("run %d: expected exact key Area=2, got %f", i, area)
		}
	}
}

func TestFieldsAmbiguousKeys(t *testing.T) {
	fields := wheatForm()
	fields["AREA"] = "2"
	_, err := BuildWheatFeatures(fields)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if reason := verr.Fields["Area"]; !strings.HasPrefix(reason, "ambiguous field") {
		t.Fatalf("unexpected area reason: %q", reason)
	}

	car := Fields{
		"brand_model": "Honda City", "Brand-Model": "Toyota Innova",
		"location": "Delhi", "year": "2015", "kilometers_driven": "50000",
	}
	_, err = BuildCarFeatures(car)
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if reason := verr.Fields["Brand_Model"]; reason != "ambiguous field: Brand-Model, brand_model" {
		t.Fatalf("unexpected brand reason: %q", reason)
	}
}
