package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"gonum.org/v1/gonum/mat"
)

// Dataset is a table of training rows read from CSV.
type Dataset struct {
	Header []string
	Rows   []Fields
}

// ReadCSV loads a headered CSV. Every row becomes a Fields map so the same
// feature builders used for requests can prepare training vectors.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	ds := &Dataset{Header: header}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make(Fields, len(header))
		for i, value := range record {
			if i < len(header) {
				row[header[i]] = value
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	if len(ds.Rows) == 0 {
		return nil, errors.New("dataset is empty")
	}
	return ds, nil
}

// WheatTrainingSet builds wheat vectors and integer labels from labelColumn.
func WheatTrainingSet(ds *Dataset, labelColumn string) ([][]float64, []int, error) {
	features := make([][]float64, 0, len(ds.Rows))
	labels := make([]int, 0, len(ds.Rows))
	for i, row := range ds.Rows {
		fv, err := BuildWheatFeatures(row)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		label, err := cast.ToIntE(row.String(labelColumn))
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: label %q: %w", i+1, row.String(labelColumn), err)
		}
		features = append(features, fv.Values)
		labels = append(labels, label)
	}
	return features, labels, nil
}

// CarTrainingSet builds car vectors and float targets from targetColumn.
func CarTrainingSet(ds *Dataset, targetColumn string) ([]FeatureVector, []float64, error) {
	vectors := make([]FeatureVector, 0, len(ds.Rows))
	targets := make([]float64, 0, len(ds.Rows))
	for i, row := range ds.Rows {
		fv, err := BuildCarFeatures(row)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		target, err := cast.ToFloat64E(row.String(targetColumn))
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: target %q: %w", i+1, row.String(targetColumn), err)
		}
		vectors = append(vectors, fv)
		targets = append(targets, target)
	}
	return vectors, targets, nil
}

// FitLinear solves ordinary least squares over the numeric features and a
// drop-first one-hot encoding of each categorical field. The first category
// seen (alphabetically) is the reference level and gets weight 0.
func FitLinear(name, version string, vectors []FeatureVector, targets []float64, floor *float64) (*LinearModel, error) {
	if len(vectors) == 0 || len(vectors) != len(targets) {
		return nil, errors.New("vectors and targets size mismatch")
	}
	numeric := vectors[0].Names

	type column struct{ field, value string }
	var dummies []column
	for _, field := range CarCategoricalNames {
		seen := make(map[string]bool)
		for _, fv := range vectors {
			if v, ok := fv.Categories[field]; ok {
				seen[v] = true
			}
		}
		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)
		for _, v := range values[min(1, len(values)):] {
			dummies = append(dummies, column{field, v})
		}
	}

	// Constant numeric columns are collinear with the intercept; they are
	// left out of the fit and keep a zero coefficient.
	active := make([]int, 0, len(numeric))
	for j := range numeric {
		first := vectors[0].Values[j]
		for _, fv := range vectors[1:] {
			if fv.Values[j] != first {
				active = append(active, j)
				break
			}
		}
	}

	cols := 1 + len(active) + len(dummies)
	if len(vectors) < cols {
		return nil, fmt.Errorf("need at least %d rows to fit %d parameters, have %d", cols, cols, len(vectors))
	}

	x := mat.NewDense(len(vectors), cols, nil)
	for i, fv := range vectors {
		x.Set(i, 0, 1)
		for k, j := range active {
			x.Set(i, 1+k, fv.Values[j])
		}
		for k, d := range dummies {
			if fv.Categories[d.field] == d.value {
				x.Set(i, 1+len(active)+k, 1)
			}
		}
	}
	y := mat.NewVecDense(len(targets), append([]float64(nil), targets...))

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("least squares: %w", err)
		}
	}

	coefficients := make([]float64, len(numeric))
	for k, j := range active {
		coefficients[j] = beta.AtVec(1 + k)
	}
	categories := make(map[string]map[string]float64)
	for k, d := range dummies {
		if categories[d.field] == nil {
			categories[d.field] = make(map[string]float64)
		}
		categories[d.field][d.value] = beta.AtVec(1 + len(active) + k)
	}
	return NewLinearModel(name, version, numeric, beta.AtVec(0), coefficients, categories, floor)
}

// SplitDataset shuffles indices with seed and holds out testRatio of rows.
func SplitDataset(n int, testRatio float64, seed int64) (train, test []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	indices := rand.New(rand.NewSource(seed)).Perm(n)
	split := int(math.Round(float64(n) * (1 - testRatio)))
	return indices[:split], indices[split:]
}

// Accuracy is the share of rows the tree classifies correctly.
func Accuracy(dt *DecisionTree, features [][]float64, labels []int) float64 {
	if len(features) == 0 {
		return 0
	}
	correct := 0
	for i, feature := range features {
		label, _, err := dt.PredictVector(feature)
		if err == nil && label == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(features))
}

// RMSE is the root mean squared error of the linear model over vectors.
func RMSE(m *LinearModel, vectors []FeatureVector, targets []float64) float64 {
	if len(vectors) == 0 {
		return 0
	}
	var sum float64
	for i, fv := range vectors {
		pred := m.intercept
		for j, coef := range m.coefficients {
			pred += coef * fv.Values[j]
		}
		for field, weights := range m.categories {
			pred += weights[fv.Categories[field]]
		}
		diff := pred - targets[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(vectors)))
}
