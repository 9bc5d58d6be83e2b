package ml

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// WheatFeatureNames is the wheat schema, including the derived ratio.
	WheatFeatureNames = []string{
		"Area", "Perimeter", "Compactness", "Length", "Width",
		"AsymmetryCoeff", "Groove", "Length_Width_Ratio",
	}

	CarNumericNames     = []string{"Year", "Kilometers_Driven", "Mileage", "Engine", "Power", "Seats"}
	CarCategoricalNames = []string{"Brand_Model", "Location", "Fuel_Type", "Transmission", "Owner_Type"}

	// CarCommonValues is the category vocabulary the car model was fitted with.
	CarCommonValues = map[string][]string{
		"Brand_Model":  {"Maruti Swift Dzire VDI", "Hyundai i20 Sportz", "Honda City", "Toyota Innova", "Maruti Wagon R LXI CNG"},
		"Location":     {"Mumbai", "Delhi", "Bangalore", "Chennai", "Kolkata"},
		"Fuel_Type":    {"Petrol", "Diesel", "CNG", "LPG", "Electric"},
		"Transmission": {"Manual", "Automatic"},
		"Owner_Type":   {"First", "Second", "Third", "Fourth"},
	}

	carCategoryDefaults = map[string]string{
		"Fuel_Type":    "Petrol",
		"Transmission": "Manual",
		"Owner_Type":   "First",
	}
	carNumericDefaults = map[string]float64{
		"Mileage": 0,
		"Engine":  0,
		"Power":   0,
		"Seats":   5,
	}
)

// CarFieldDefaults returns the values used for optional car fields.
func CarFieldDefaults() map[string]interface{} {
	out := make(map[string]interface{}, len(carCategoryDefaults)+len(carNumericDefaults))
	for name, value := range carCategoryDefaults {
		out[name] = value
	}
	for name, value := range carNumericDefaults {
		out[name] = value
	}
	return out
}

// WheatVarieties maps class labels to the seed variety names.
var WheatVarieties = map[int]string{
	1: "Kama",
	2: "Rosa",
	3: "Canadian",
}

// Fields holds raw request values keyed by field name. Values are strings
// for form posts and float64/string for JSON bodies.
type Fields map[string]interface{}

// FieldsFromForm keeps the first value of every form key.
func FieldsFromForm(form map[string][]string) Fields {
	fields := make(Fields, len(form))
	for key, values := range form {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	return fields
}

// lookup returns the value stored under name. An exact key wins; otherwise
// keys match ignoring case, underscores, dashes and spaces, so
// "asymmetry_coeff" and "AsymmetryCoeff" address the same field. Two loose
// matches are reported as ErrAmbiguousField.
func (f Fields) lookup(name string) (interface{}, bool, error) {
	if value, ok := f[name]; ok {
		return value, true, nil
	}
	want := normalizeKey(name)
	var (
		found   interface{}
		matches []string
	)
	for key, value := range f {
		if normalizeKey(key) == want {
			found = value
			matches = append(matches, key)
		}
	}
	switch len(matches) {
	case 0:
		return nil, false, nil
	case 1:
		return found, true, nil
	}
	sort.Strings(matches)
	return nil, true, fmt.Errorf("%w: %s", ErrAmbiguousField, strings.Join(matches, ", "))
}

// Has reports whether any of the named fields is present.
func (f Fields) Has(names ...string) bool {
	for _, name := range names {
		if _, ok, _ := f.lookup(name); ok {
			return true
		}
	}
	return false
}

// String returns a field as trimmed text. Ambiguous fields read as empty.
func (f Fields) String(name string) string {
	value, ok, err := f.lookup(name)
	if !ok || err != nil || value == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(value))
}

func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if r == '_' || r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidationError collects every field problem found while building a vector.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = fmt.Sprintf("%s: %s", key, e.Fields[key])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = reason
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// FeatureVector is an ordered numeric record plus named categorical values.
type FeatureVector struct {
	Kind       Kind
	Names      []string
	Values     []float64
	Categories map[string]string
}

// Get returns the numeric value of a named feature.
func (fv FeatureVector) Get(name string) (float64, bool) {
	for i, n := range fv.Names {
		if n == name {
			return fv.Values[i], true
		}
	}
	return 0, false
}

// Key is a canonical string for the vector, used as a cache key.
func (fv FeatureVector) Key() string {
	var b strings.Builder
	b.WriteString(string(fv.Kind))
	for i, name := range fv.Names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(fv.Values[i], 'g', -1, 64))
	}
	cats := make([]string, 0, len(fv.Categories))
	for name := range fv.Categories {
		cats = append(cats, name)
	}
	sort.Strings(cats)
	for _, name := range cats {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(fv.Categories[name])
	}
	return b.String()
}

// Map flattens the vector for logging and persistence.
func (fv FeatureVector) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(fv.Names)+len(fv.Categories))
	for i, name := range fv.Names {
		out[name] = fv.Values[i]
	}
	for name, value := range fv.Categories {
		out[name] = value
	}
	return out
}

// BuildWheatFeatures assembles the wheat vector. All seven measurements are
// required; Length_Width_Ratio is derived and is 0 when Width is 0.
func BuildWheatFeatures(fields Fields) (FeatureVector, error) {
	verr := &ValidationError{}
	measured := WheatFeatureNames[:len(WheatFeatureNames)-1]
	values := make([]float64, 0, len(WheatFeatureNames))
	for _, name := range measured {
		v, ok := requireNumber(fields, name, verr)
		if ok && v < 0 {
			verr.add(name, "must not be negative")
		}
		values = append(values, v)
	}
	if err := verr.orNil(); err != nil {
		return FeatureVector{}, err
	}

	length, width := values[3], values[4]
	ratio := 0.0
	if width != 0 {
		ratio = length / width
	}
	values = append(values, ratio)

	return FeatureVector{
		Kind:   KindWheat,
		Names:  append([]string(nil), WheatFeatureNames...),
		Values: values,
	}, nil
}

// BuildCarFeatures assembles the car vector. Brand_Model, Location, Year and
// Kilometers_Driven are required; the rest fall back to defaults.
func BuildCarFeatures(fields Fields) (FeatureVector, error) {
	verr := &ValidationError{}

	categories := make(map[string]string, len(CarCategoricalNames))
	for _, name := range CarCategoricalNames {
		if _, _, err := fields.lookup(name); err != nil {
			verr.add(name, err.Error())
			continue
		}
		value := fields.String(name)
		if value == "" {
			def, ok := carCategoryDefaults[name]
			if !ok {
				verr.add(name, "is required")
				continue
			}
			value = def
		}
		categories[name] = normalizeCategory(value)
	}

	values := make([]float64, len(CarNumericNames))
	for i, name := range CarNumericNames {
		def, optional := carNumericDefaults[name]
		var (
			v  float64
			ok bool
		)
		if optional {
			v, ok = optionalNumber(fields, name, def, verr)
		} else {
			v, ok = requireNumber(fields, name, verr)
		}
		if !ok {
			continue
		}
		switch name {
		case "Year":
			if v != math.Trunc(v) || v < 1900 || v > 2100 {
				verr.add(name, "must be a whole year between 1900 and 2100")
			}
		case "Seats":
			if v != math.Trunc(v) || v < 0 {
				verr.add(name, "must be a whole non-negative number")
			}
		default:
			if v < 0 {
				verr.add(name, "must not be negative")
			}
		}
		values[i] = v
	}
	if err := verr.orNil(); err != nil {
		return FeatureVector{}, err
	}

	return FeatureVector{
		Kind:       KindCar,
		Names:      append([]string(nil), CarNumericNames...),
		Values:     values,
		Categories: categories,
	}, nil
}

func requireNumber(fields Fields, name string, verr *ValidationError) (float64, bool) {
	raw, ok, err := fields.lookup(name)
	if err != nil {
		verr.add(name, err.Error())
		return 0, false
	}
	if !ok || raw == nil || strings.TrimSpace(cast.ToString(raw)) == "" {
		verr.add(name, "is required")
		return 0, false
	}
	return parseNumber(raw, name, verr)
}

func optionalNumber(fields Fields, name string, def float64, verr *ValidationError) (float64, bool) {
	raw, ok, err := fields.lookup(name)
	if err != nil {
		verr.add(name, err.Error())
		return 0, false
	}
	if !ok || raw == nil || strings.TrimSpace(cast.ToString(raw)) == "" {
		return def, true
	}
	return parseNumber(raw, name, verr)
}

func parseNumber(raw interface{}, name string, verr *ValidationError) (float64, bool) {
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
	}
	if _, ok := raw.(bool); ok {
		verr.add(name, "not a number")
		return 0, false
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		verr.add(name, "not a number")
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		verr.add(name, "must be finite")
		return 0, false
	}
	return v, true
}

// normalizeCategory title-cases all-lowercase input ("mumbai" -> "Mumbai")
// and leaves mixed-case values such as "Hyundai i20 Sportz" untouched.
func normalizeCategory(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if value != strings.ToLower(value) {
		return value
	}
	return cases.Title(language.English).String(value)
}
