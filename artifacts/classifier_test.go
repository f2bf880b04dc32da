package artifacts

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(p []float64) float64 {
	var s float64
	for _, v := range p {
		s += v
	}
	return s
}

func TestLogisticRegressionMulticlass(t *testing.T) {
	lr := &LogisticRegression{
		ClassLabels: []string{"a", "b", "c"},
		Coef:        [][]float64{{1, 0}, {0, 1}, {0, 0}},
		Intercept:   []float64{0, 0, 0},
	}
	require.NoError(t, lr.validate())

	p, err := lr.PredictProba([]float64{2, 0})
	require.NoError(t, err)
	require.Len(t, p, 3)
	assert.InDelta(t, 1.0, sum(p), 1e-12)

	// exp(2) / (exp(2) + 1 + 1)
	assert.InDelta(t, math.Exp(2)/(math.Exp(2)+2), p[0], 1e-12)

	label, err := lr.Predict([]float64{2, 0})
	require.NoError(t, err)
	assert.Equal(t, "a", label)

	label, err = lr.Predict([]float64{0, 3})
	require.NoError(t, err)
	assert.Equal(t, "b", label)
}

func TestLogisticRegressionBinary(t *testing.T) {
	lr := &LogisticRegression{
		ClassLabels: []string{"neg", "pos"},
		Coef:        [][]float64{{2}},
		Intercept:   []float64{-1},
	}
	require.NoError(t, lr.validate())

	p, err := lr.PredictProba([]float64{0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p[1], 1e-12)
	assert.InDelta(t, 0.5, p[0], 1e-12)

	label, err := lr.Predict([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, "pos", label)
}

func TestLogisticRegressionSoftmaxIsStable(t *testing.T) {
	lr := &LogisticRegression{
		ClassLabels: []string{"a", "b"},
		Coef:        [][]float64{{1000}, {-1000}},
		Intercept:   []float64{0, 0},
	}
	p, err := lr.PredictProba([]float64{5})
	require.NoError(t, err)
	for _, v := range p {
		assert.False(t, math.IsNaN(v))
	}
	assert.InDelta(t, 1.0, p[0], 1e-12)
}

func TestLogisticRegressionShapeMismatch(t *testing.T) {
	lr := &LogisticRegression{
		ClassLabels: []string{"a", "b", "c"},
		Coef:        [][]float64{{1, 0}, {0, 1}, {0, 0}},
		Intercept:   []float64{0, 0, 0},
	}
	_, err := lr.PredictProba([]float64{1, 2, 3})
	var shape *ShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, 2, shape.Want)
	assert.Equal(t, 3, shape.Got)
}

func TestLogisticRegressionValidate(t *testing.T) {
	testCases := []struct {
		name string
		lr   LogisticRegression
	}{
		{"one class", LogisticRegression{ClassLabels: []string{"a"}, Coef: [][]float64{{1}}, Intercept: []float64{0}}},
		{"row count", LogisticRegression{ClassLabels: []string{"a", "b", "c"}, Coef: [][]float64{{1}, {1}}, Intercept: []float64{0, 0}}},
		{"intercept", LogisticRegression{ClassLabels: []string{"a", "b"}, Coef: [][]float64{{1}}, Intercept: nil}},
		{"ragged", LogisticRegression{ClassLabels: []string{"a", "b"}, Coef: [][]float64{{1, 2}, {1}}, Intercept: []float64{0, 0}}},
		{"empty row", LogisticRegression{ClassLabels: []string{"a", "b"}, Coef: [][]float64{{}}, Intercept: []float64{0}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.lr.validate())
		})
	}
}

func stumpForest() *RandomForest {
	// x[0] <= 0.5 -> mostly "a"; otherwise all "b"
	stump := DecisionTree{Nodes: []TreeNode{
		{Feature: 0, Threshold: 0.5, Left: 1, Right: 2},
		{Left: -1, Right: -1, Value: []float64{3, 1}},
		{Left: -1, Right: -1, Value: []float64{0, 5}},
	}}
	// x[1] <= 0 -> "a", otherwise split evenly
	other := DecisionTree{Nodes: []TreeNode{
		{Feature: 1, Threshold: 0, Left: 1, Right: 2},
		{Left: -1, Right: -1, Value: []float64{1, 0}},
		{Left: -1, Right: -1, Value: []float64{0.5, 0.5}},
	}}
	return &RandomForest{
		ClassLabels: []string{"a", "b"},
		Features:    2,
		Trees:       []DecisionTree{stump, other},
	}
}

func TestRandomForestPredictProba(t *testing.T) {
	rf := stumpForest()
	require.NoError(t, rf.validate())

	p, err := rf.PredictProba([]float64{0.5, -1})
	require.NoError(t, err)
	// tree 1: [0.75, 0.25], tree 2: [1, 0]
	assert.InDelta(t, 0.875, p[0], 1e-12)
	assert.InDelta(t, 0.125, p[1], 1e-12)

	p, err = rf.PredictProba([]float64{0.6, 1})
	require.NoError(t, err)
	// tree 1: [0, 1], tree 2: [0.5, 0.5]
	assert.InDelta(t, 0.25, p[0], 1e-12)
	assert.InDelta(t, 0.75, p[1], 1e-12)

	label, err := rf.Predict([]float64{0.6, 1})
	require.NoError(t, err)
	assert.Equal(t, "b", label)
}

func TestRandomForestTieGoesToFirstClass(t *testing.T) {
	rf := &RandomForest{
		ClassLabels: []string{"a", "b"},
		Features:    1,
		Trees: []DecisionTree{{Nodes: []TreeNode{
			{Left: -1, Right: -1, Value: []float64{1, 1}},
		}}},
	}
	label, err := rf.Predict([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, "a", label)
}

func TestRandomForestValidateRejectsCycles(t *testing.T) {
	rf := &RandomForest{
		ClassLabels: []string{"a", "b"},
		Features:    1,
		Trees: []DecisionTree{{Nodes: []TreeNode{
			{Feature: 0, Threshold: 0, Left: 1, Right: 1},
			{Feature: 0, Threshold: 0, Left: 0, Right: 0},
		}}},
	}
	err := rf.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid children")
}

func TestRandomForestValidateFeatureRange(t *testing.T) {
	rf := stumpForest()
	rf.Trees[0].Nodes[0].Feature = 7
	assert.Error(t, rf.validate())
}

func TestClassifierEnvelopeRoundTrip(t *testing.T) {
	for _, clf := range []Classifier{
		&LogisticRegression{
			ClassLabels: []string{"a", "b", "c"},
			Coef:        [][]float64{{1, 0}, {0, 1}, {0, 0}},
			Intercept:   []float64{0.1, 0.2, 0.3},
		},
		stumpForest(),
	} {
		var buf bytes.Buffer
		require.NoError(t, EncodeClassifier(&buf, clf))

		decoded, err := DecodeClassifier(&buf)
		require.NoError(t, err)
		assert.Equal(t, clf, decoded)
	}
}

func TestDecodeDecisionTree(t *testing.T) {
	src := `{"type":"decision_tree","params":{"classes":["a","b"],"n_features":1,
		"tree":{"nodes":[{"feature":0,"threshold":1,"left":1,"right":2},
		{"left":-1,"right":-1,"value":[2,0]},{"left":-1,"right":-1,"value":[0,2]}]}}}`

	clf, err := DecodeClassifier(strings.NewReader(src))
	require.NoError(t, err)

	label, err := clf.Predict([]float64{5})
	require.NoError(t, err)
	assert.Equal(t, "b", label)
}

func TestDecodeClassifierUnknownType(t *testing.T) {
	_, err := DecodeClassifier(strings.NewReader(`{"type":"svm","params":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "svm")
}
