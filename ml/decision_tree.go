package ml

import (
	"context"
	"errors"
	"math"
	"sort"
)

// DecisionTree is a flattened binary classification tree. Nodes reference
// their children by index; node 0 is the root.
type DecisionTree struct {
	name     string
	version  string
	features []string
	nodes    []TreeNode
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx" yaml:"feature_idx" toml:"feature_idx"`
	Threshold  float64 `json:"threshold" yaml:"threshold" toml:"threshold"`
	LeftChild  int     `json:"left_child" yaml:"left_child" toml:"left_child"`
	RightChild int     `json:"right_child" yaml:"right_child" toml:"right_child"`
	ClassLabel int     `json:"class_label" yaml:"class_label" toml:"class_label"`
	IsLeaf     bool    `json:"is_leaf" yaml:"is_leaf" toml:"is_leaf"`
	Confidence float64 `json:"confidence,omitempty" yaml:"confidence,omitempty" toml:"confidence,omitempty"`
}

func NewDecisionTree(name, version string, features []string) *DecisionTree {
	return &DecisionTree{
		name:     name,
		version:  version,
		features: append([]string(nil), features...),
	}
}

func (dt *DecisionTree) Name() string       { return dt.name }
func (dt *DecisionTree) Version() string    { return dt.version }
func (dt *DecisionTree) Features() []string { return dt.features }
func (dt *DecisionTree) Nodes() []TreeNode  { return dt.nodes }

func (dt *DecisionTree) Train(features [][]float64, labels []int, maxDepth int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}

	dt.nodes = dt.buildNode(features, labels, 0, maxDepth)
	return nil
}

// Predict classifies a wheat vector. Value and Label carry the class.
func (dt *DecisionTree) Predict(ctx context.Context, fv FeatureVector) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := checkSchema(dt.features, fv); err != nil {
		return Result{}, err
	}
	label, confidence, err := dt.PredictVector(fv.Values)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Value:      float64(label),
		Label:      label,
		Confidence: confidence,
		Model:      dt.name,
		Version:    dt.version,
	}, nil
}

// PredictVector walks the tree for a raw, schema-ordered vector.
func (dt *DecisionTree) PredictVector(features []float64) (int, float64, error) {
	if len(dt.nodes) == 0 {
		return 0, 0, ErrModelNotTrained
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, node.Confidence, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, 0, errors.New("invalid tree state")
		}
	}
	return 0, 0, errors.New("tree contains a cycle")
}

func (dt *DecisionTree) buildNode(features [][]float64, labels []int, depth int, maxDepth int) []TreeNode {
	label, share := majorityLabel(labels)
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: label,
		IsLeaf:     true,
		Confidence: share,
	}}
	if depth >= maxDepth || isPure(labels) {
		return leaf
	}

	bestFeature, threshold, ok := findBestSplit(features, labels)
	if !ok {
		return leaf
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return leaf
	}

	leftNodes := dt.buildNode(leftFeatures, leftLabels, depth+1, maxDepth)
	rightNodes := dt.buildNode(rightFeatures, rightLabels, depth+1, maxDepth)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		ClassLabel: label,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, shiftChildren(leftNodes, 1)...)
	nodes = append(nodes, shiftChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// shiftChildren rebases child indices of a subtree placed at offset.
func shiftChildren(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func findBestSplit(features [][]float64, labels []int) (int, float64, bool) {
	featureCount := len(features[0])
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		threshold := median(values)
		leftLabels, rightLabels := splitLabels(features, labels, featureIdx, threshold)
		if len(leftLabels) == 0 || len(rightLabels) == 0 {
			continue
		}
		impurity := weightedGini(leftLabels, rightLabels)
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestFeature = featureIdx
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func splitLabels(features [][]float64, labels []int, featureIdx int, threshold float64) ([]int, []int) {
	leftLabels := make([]int, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftLabels, rightLabels
}

func weightedGini(leftLabels, rightLabels []int) float64 {
	leftWeight := float64(len(leftLabels))
	rightWeight := float64(len(rightLabels))
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(leftLabels) + (rightWeight/total)*gini(rightLabels)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(len(labels))
		impurity -= prob * prob
	}
	return impurity
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// majorityLabel returns the most common label and its share of labels.
// Ties go to the smaller label so training is deterministic.
func majorityLabel(labels []int) (int, float64) {
	if len(labels) == 0 {
		return 0, 0
	}
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	bestLabel, bestCount := 0, -1
	for label, count := range counts {
		if count > bestCount || (count == bestCount && label < bestLabel) {
			bestLabel, bestCount = label, count
		}
	}
	return bestLabel, float64(bestCount) / float64(len(labels))
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}
