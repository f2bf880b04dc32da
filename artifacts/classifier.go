package artifacts

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// Classifier is a trained multi-class model. PredictProba returns one
// probability per class, aligned to Classes(). Predict returns a member of
// Classes().
type Classifier interface {
	Classes() []string
	NumFeatures() int
	Predict(x []float64) (string, error)
	PredictProba(x []float64) ([]float64, error)
}

// Classifier types understood by DecodeClassifier
const (
	TypeLogisticRegression = "logistic_regression"
	TypeRandomForest       = "random_forest"
	TypeDecisionTree       = "decision_tree"
)

// ShapeError reports a vector whose width differs from what a fitted
// component expects.
type ShapeError struct {
	Component string
	Want      int
	Got       int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s expects %d features, got %d", e.Component, e.Want, e.Got)
}

// envelope is the on-disk form of classifiers and scalers
type envelope struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

func writeEnvelope(w io.Writer, typ string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope{Type: typ, Params: raw})
}

// argmax returns the index of the first maximum
func argmax(p []float64) int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

// LogisticRegression is a multinomial logistic regression. With a single
// coefficient row and two classes it is the binary model, where the row
// scores the second class.
type LogisticRegression struct {
	ClassLabels []string    `json:"classes"`
	Coef        [][]float64 `json:"coef"`
	Intercept   []float64   `json:"intercept"`
}

// Classes returns the class labels in probability order
func (l *LogisticRegression) Classes() []string { return l.ClassLabels }

// NumFeatures returns the expected vector width
func (l *LogisticRegression) NumFeatures() int {
	if len(l.Coef) == 0 {
		return 0
	}
	return len(l.Coef[0])
}

// PredictProba returns class probabilities for x
func (l *LogisticRegression) PredictProba(x []float64) ([]float64, error) {
	if len(x) != l.NumFeatures() {
		return nil, &ShapeError{Component: "classifier", Want: l.NumFeatures(), Got: len(x)}
	}

	logits := make([]float64, len(l.Coef))
	for k, row := range l.Coef {
		z := l.Intercept[k]
		for i, c := range row {
			z += c * x[i]
		}
		logits[k] = z
	}

	if len(l.Coef) == 1 {
		p := 1 / (1 + math.Exp(-logits[0]))
		return []float64{1 - p, p}, nil
	}
	return softmax(logits), nil
}

// Predict returns the most probable class
func (l *LogisticRegression) Predict(x []float64) (string, error) {
	p, err := l.PredictProba(x)
	if err != nil {
		return "", err
	}
	return l.ClassLabels[argmax(p)], nil
}

func (l *LogisticRegression) validate() error {
	if len(l.ClassLabels) < 2 {
		return fmt.Errorf("logistic regression needs at least 2 classes, got %d", len(l.ClassLabels))
	}
	rows := len(l.Coef)
	switch {
	case rows == 1 && len(l.ClassLabels) == 2:
	case rows == len(l.ClassLabels):
	default:
		return fmt.Errorf("logistic regression has %d coefficient rows for %d classes", rows, len(l.ClassLabels))
	}
	if len(l.Intercept) != rows {
		return fmt.Errorf("length of intercept is %d, expected %d", len(l.Intercept), rows)
	}
	width := len(l.Coef[0])
	if width == 0 {
		return fmt.Errorf("length of coefficients is 0")
	}
	for k, row := range l.Coef {
		if len(row) != width {
			return fmt.Errorf("coefficient row %d has %d columns, expected %d", k, len(row), width)
		}
	}
	return nil
}

func softmax(z []float64) []float64 {
	maxZ := z[0]
	for _, v := range z[1:] {
		if v > maxZ {
			maxZ = v
		}
	}
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - maxZ)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// TreeNode is one node of a fitted decision tree. Internal nodes route
// x[Feature] <= Threshold to Left and everything else to Right. Leaves have
// Left < 0 and carry per-class weights in Value.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

// IsLeaf reports whether the node is terminal
func (n TreeNode) IsLeaf() bool { return n.Left < 0 }

// DecisionTree is a flat list of nodes rooted at index 0
type DecisionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

// leaf drops x down the tree and returns the leaf it ends up in
func (t *DecisionTree) leaf(x []float64) TreeNode {
	cur := t.Nodes[0]
	for !cur.IsLeaf() {
		if x[cur.Feature] <= cur.Threshold {
			cur = t.Nodes[cur.Left]
		} else {
			cur = t.Nodes[cur.Right]
		}
	}
	return cur
}

func (t *DecisionTree) validate(features, classes int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.IsLeaf() {
			if len(n.Value) != classes {
				return fmt.Errorf("leaf %d has %d class weights, expected %d", i, len(n.Value), classes)
			}
			var sum float64
			for _, v := range n.Value {
				if v < 0 {
					return fmt.Errorf("leaf %d has a negative class weight", i)
				}
				sum += v
			}
			if sum == 0 {
				return fmt.Errorf("leaf %d has no class weight", i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= features {
			return fmt.Errorf("node %d splits on feature %d, tree has %d features", i, n.Feature, features)
		}
		// children always come after their parent, so traversal terminates
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// RandomForest averages the normalised leaf distributions of its trees.
// A single-tree forest is a plain decision tree.
type RandomForest struct {
	ClassLabels []string       `json:"classes"`
	Features    int            `json:"n_features"`
	Trees       []DecisionTree `json:"trees"`
}

// Classes returns the class labels in probability order
func (f *RandomForest) Classes() []string { return f.ClassLabels }

// NumFeatures returns the expected vector width
func (f *RandomForest) NumFeatures() int { return f.Features }

// PredictProba returns class probabilities for x
func (f *RandomForest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.Features {
		return nil, &ShapeError{Component: "classifier", Want: f.Features, Got: len(x)}
	}
	proba := make([]float64, len(f.ClassLabels))
	for i := range f.Trees {
		leaf := f.Trees[i].leaf(x)
		var sum float64
		for _, v := range leaf.Value {
			sum += v
		}
		for k, v := range leaf.Value {
			proba[k] += v / sum
		}
	}
	for k := range proba {
		proba[k] /= float64(len(f.Trees))
	}
	return proba, nil
}

// Predict returns the most probable class
func (f *RandomForest) Predict(x []float64) (string, error) {
	p, err := f.PredictProba(x)
	if err != nil {
		return "", err
	}
	return f.ClassLabels[argmax(p)], nil
}

func (f *RandomForest) validate() error {
	if len(f.ClassLabels) < 2 {
		return fmt.Errorf("random forest needs at least 2 classes, got %d", len(f.ClassLabels))
	}
	if f.Features <= 0 {
		return fmt.Errorf("random forest has invalid feature count %d", f.Features)
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("random forest has no trees")
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.Features, len(f.ClassLabels)); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// DecodeClassifier reads a type-tagged classifier and validates it
func DecodeClassifier(r io.Reader) (Classifier, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("error decoding classifier: %w", err)
	}

	switch env.Type {
	case TypeLogisticRegression:
		var lr LogisticRegression
		if err := json.Unmarshal(env.Params, &lr); err != nil {
			return nil, fmt.Errorf("error deserializing logistic regression: %w", err)
		}
		if err := lr.validate(); err != nil {
			return nil, err
		}
		return &lr, nil

	case TypeRandomForest:
		var rf RandomForest
		if err := json.Unmarshal(env.Params, &rf); err != nil {
			return nil, fmt.Errorf("error deserializing random forest: %w", err)
		}
		if err := rf.validate(); err != nil {
			return nil, err
		}
		return &rf, nil

	case TypeDecisionTree:
		var params struct {
			Classes  []string     `json:"classes"`
			Features int          `json:"n_features"`
			Tree     DecisionTree `json:"tree"`
		}
		if err := json.Unmarshal(env.Params, &params); err != nil {
			return nil, fmt.Errorf("error deserializing decision tree: %w", err)
		}
		rf := &RandomForest{
			ClassLabels: params.Classes,
			Features:    params.Features,
			Trees:       []DecisionTree{params.Tree},
		}
		if err := rf.validate(); err != nil {
			return nil, err
		}
		return rf, nil

	default:
		return nil, fmt.Errorf("found unknown classifier type '%s'", env.Type)
	}
}

// EncodeClassifier writes c in the format read by DecodeClassifier
func EncodeClassifier(w io.Writer, c Classifier) error {
	switch c.(type) {
	case *LogisticRegression:
		return writeEnvelope(w, TypeLogisticRegression, c)
	case *RandomForest:
		return writeEnvelope(w, TypeRandomForest, c)
	default:
		return fmt.Errorf("cannot encode classifier of type %T", c)
	}
}
