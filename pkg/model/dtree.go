package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// ---------------------------
// Types & options
// ---------------------------

// DecisionTreeClassifier is a CART-style classifier.
type DecisionTreeClassifier struct {
	// Hyperparameters / options
	MaxDepth            int     // maximum depth (root depth = 0). 0 => no limit
	MinSamplesSplit     int     // minimum samples to attempt a split
	MinSamplesLeaf      int     // minimum samples required in each leaf
	Criterion           string  // "gini" (default) or "entropy"
	MaxFeatures         int     // 0 => use all features, >0 => number of features to sample when looking for split
	MinImpurityDecrease float64 // minimal impurity decrease to accept a split
	RandomState         int64   // seed for feature subsampling

	// Fitted state. Exported so the forest codec can gob it.
	Root     *Node
	Classes  []int // unique class labels (order used by probas)
	Features int
}

// Node is one node of a fitted tree.
type Node struct {
	Leaf      bool
	Feature   int
	Threshold float64 // numeric split: x <= Threshold goes left
	Cat       bool    // categorical equality split: x == Threshold goes left
	Left      *Node
	Right     *Node

	N      int
	Probas []float64 // aligned with the tree's Classes
}

// Option functional config
type Option func(*DecisionTreeClassifier)

func WithMaxDepth(d int) Option { return func(t *DecisionTreeClassifier) { t.MaxDepth = d } }
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeClassifier) { t.MinSamplesSplit = n }
}
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeClassifier) { t.MinSamplesLeaf = n }
}
func WithCriterion(c string) Option { return func(t *DecisionTreeClassifier) { t.Criterion = c } }
func WithMaxFeatures(k int) Option  { return func(t *DecisionTreeClassifier) { t.MaxFeatures = k } }
func WithMinImpurityDecrease(v float64) Option {
	return func(t *DecisionTreeClassifier) { t.MinImpurityDecrease = v }
}
func WithRandomState(seed int64) Option {
	return func(t *DecisionTreeClassifier) { t.RandomState = seed }
}

// NewDecisionTreeClassifier returns a classifier with sensible defaults.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	d := &DecisionTreeClassifier{
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Criterion:       "gini",
		RandomState:     42,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ---------------------------
// Public API
// ---------------------------

// Fit trains the tree on every row of X.
func (t *DecisionTreeClassifier) Fit(X [][]float64, y []int) error {
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	return t.FitIndices(X, y, idx)
}

// FitIndices trains the tree on the rows of X selected by idx. Indices may
// repeat, which is how bootstrap samples are passed in without copying rows.
// Values must be finite; impute before fitting.
func (t *DecisionTreeClassifier) FitIndices(X [][]float64, y []int, idx []int) error {
	if len(X) == 0 || len(idx) == 0 {
		return errors.New("dtree: empty X")
	}
	if len(y) != len(X) {
		return errors.New("dtree: X and y length mismatch")
	}
	if t.Criterion != "gini" && t.Criterion != "entropy" {
		return fmt.Errorf("dtree: unknown criterion %q", t.Criterion)
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return errors.New("dtree: inconsistent number of features in X rows")
		}
		for j, v := range X[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("dtree: row %d feature %d is not finite", i, j)
			}
		}
	}

	classMap := map[int]bool{}
	t.Classes = nil
	for _, ii := range idx {
		if !classMap[y[ii]] {
			classMap[y[ii]] = true
			t.Classes = append(t.Classes, y[ii])
		}
	}
	sort.Ints(t.Classes)
	t.Features = p

	rnd := rand.New(rand.NewSource(t.RandomState))
	t.Root = t.buildNode(X, y, idx, 0, rnd)
	return nil
}

// Classify returns the most probable class label for row x.
func (t *DecisionTreeClassifier) Classify(x []float64) int {
	return t.Classes[argmaxFloat(t.predictProbaSingle(x))]
}

// ClassProba returns the probability the tree assigns to label for row x.
func (t *DecisionTreeClassifier) ClassProba(x []float64, label int) float64 {
	probs := t.predictProbaSingle(x)
	for i, c := range t.Classes {
		if c == label {
			return probs[i]
		}
	}
	return 0
}

// ---------------------------
// Internal builders & helpers
// ---------------------------

// splitResult holds the best split found for one feature.
type splitResult struct {
	gain      float64
	feature   int
	threshold float64
	isCat     bool
	leftIdx   []int
	rightIdx  []int
}

// pair is a feature value and its row index.
type pair struct {
	v float64
	i int
}

func (t *DecisionTreeClassifier) impurity(counts []int) float64 {
	if t.Criterion == "entropy" {
		return entropyFromCounts(counts)
	}
	return giniFromCounts(counts)
}

func (t *DecisionTreeClassifier) leaf(node *Node, counts []int) *Node {
	node.Leaf = true
	node.Probas = countsToProbas(counts)
	return node
}

func (t *DecisionTreeClassifier) buildNode(X [][]float64, y []int, idx []int, depth int, rnd *rand.Rand) *Node {
	node := &Node{N: len(idx)}
	counts := t.counts(y, idx)

	if isPure(counts) || (t.MinSamplesSplit > 0 && len(idx) < t.MinSamplesSplit) {
		return t.leaf(node, counts)
	}
	if t.MaxDepth > 0 && depth >= t.MaxDepth {
		return t.leaf(node, counts)
	}

	p := t.Features
	featIndices := make([]int, p)
	for j := range p {
		featIndices[j] = j
	}
	if t.MaxFeatures > 0 && t.MaxFeatures < p {
		rnd.Shuffle(p, func(i, j int) { featIndices[i], featIndices[j] = featIndices[j], featIndices[i] })
		featIndices = featIndices[:t.MaxFeatures]
	}

	parentImpurity := t.impurity(counts)

	// Parallel search for the best split, one goroutine per feature.
	results := make([]splitResult, len(featIndices))
	var wg sync.WaitGroup
	for k, f := range featIndices {
		wg.Add(1)
		go func(k, f int) {
			defer wg.Done()
			results[k] = t.findBestSplitForFeature(X, y, idx, f, parentImpurity)
		}(k, f)
	}
	wg.Wait()

	// Ties go to the earliest sampled feature so fits are reproducible.
	best := splitResult{feature: -1}
	for _, r := range results {
		if r.feature >= 0 && r.gain > best.gain {
			best = r
		}
	}
	if best.feature == -1 || best.gain <= t.MinImpurityDecrease {
		return t.leaf(node, counts)
	}

	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Cat = best.isCat
	node.Left = t.buildNode(X, y, best.leftIdx, depth+1, rnd)
	node.Right = t.buildNode(X, y, best.rightIdx, depth+1, rnd)
	return node
}

// findBestSplitForFeature is a goroutine-safe helper that finds the best split for a single feature.
func (t *DecisionTreeClassifier) findBestSplitForFeature(X [][]float64, y []int, idx []int, f int, parentImpurity float64) splitResult {
	result := splitResult{feature: -1}

	valid := make([]pair, 0, len(idx))
	for _, ii := range idx {
		valid = append(valid, pair{X[ii][f], ii})
	}

	consider := func(l, r []int, thr float64, isCat bool) {
		if len(l) == 0 || len(r) == 0 || len(l) < t.MinSamplesLeaf || len(r) < t.MinSamplesLeaf {
			return
		}
		wl := float64(len(l)) / float64(len(idx))
		wr := float64(len(r)) / float64(len(idx))
		gain := parentImpurity - wl*t.impurity(t.counts(y, l)) - wr*t.impurity(t.counts(y, r))
		if gain > result.gain {
			result = splitResult{gain: gain, feature: f, threshold: thr, isCat: isCat, leftIdx: l, rightIdx: r}
		}
	}

	// Equality splits for small integer-like value sets (0/1 indicators, dependents).
	uniqueVals := uniqueValuesFromPairs(valid)
	if len(uniqueVals) > 2 && len(uniqueVals) <= 30 && allIntLike(uniqueVals) {
		for _, uv := range uniqueVals {
			var left, right []int
			for _, pv := range valid {
				if pv.v == uv {
					left = append(left, pv.i)
				} else {
					right = append(right, pv.i)
				}
			}
			consider(left, right, uv, true)
		}
	}

	// Threshold splits between consecutive distinct values.
	sort.Slice(valid, func(a, b int) bool { return valid[a].v < valid[b].v })
	for s := 1; s < len(valid); s++ {
		if valid[s].v == valid[s-1].v {
			continue
		}
		thr := (valid[s-1].v + valid[s].v) / 2.0
		consider(indicesFromPairs(valid[:s]), indicesFromPairs(valid[s:]), thr, false)
	}
	return result
}

func (t *DecisionTreeClassifier) counts(y []int, idx []int) []int {
	counts := make([]int, len(t.Classes))
	for _, ii := range idx {
		counts[classIndex(y[ii], t.Classes)]++
	}
	return counts
}

// ---------------------------
// Helpers used in buildNode
// ---------------------------

func allIntLike(vals []float64) bool {
	for _, v := range vals {
		if math.IsInf(v, 0) {
			return false
		}
		_, frac := math.Modf(math.Abs(v))
		if frac > 1e-9 && frac < 1-1e-9 {
			return false
		}
	}
	return true
}

func uniqueValuesFromPairs(pairs []pair) []float64 {
	m := make(map[float64]struct{})
	out := make([]float64, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := m[p.v]; !ok {
			m[p.v] = struct{}{}
			out = append(out, p.v)
		}
	}
	sort.Float64s(out)
	return out
}

func indicesFromPairs(pairs []pair) []int {
	out := make([]int, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.i)
	}
	return out
}

// ---------------------------
// Prediction helper
// ---------------------------

func (t *DecisionTreeClassifier) predictProbaSingle(x []float64) []float64 {
	if t.Root == nil {
		p := make([]float64, len(t.Classes))
		for i := range p {
			p[i] = 1.0 / float64(len(p))
		}
		return p
	}
	node := t.Root
	for !node.Leaf {
		val := x[node.Feature]
		if node.Cat && val == node.Threshold || !node.Cat && val <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Probas
}

// ---------------------------
// Utilities: impurity & misc
// ---------------------------

func giniFromCounts(counts []int) float64 {
	n := 0.0
	for _, c := range counts {
		n += float64(c)
	}
	if n == 0 {
		return 0
	}
	res := 0.0
	for _, c := range counts {
		p := float64(c) / n
		res += p * (1 - p)
	}
	return res
}

func entropyFromCounts(counts []int) float64 {
	n := 0.0
	for _, c := range counts {
		n += float64(c)
	}
	if n == 0 {
		return 0
	}
	res := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		res -= p * math.Log2(p)
	}
	return res
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func countsToProbas(counts []int) []float64 {
	n := 0
	for _, c := range counts {
		n += c
	}
	p := make([]float64, len(counts))
	if n == 0 {
		return p
	}
	for i := range counts {
		p[i] = float64(counts[i]) / float64(n)
	}
	return p
}

func argmaxFloat(arr []float64) int {
	best := 0
	for i := 1; i < len(arr); i++ {
		if arr[i] > arr[best] {
			best = i
		}
	}
	return best
}

// classIndex returns index of label in classes slice.
func classIndex(label int, classes []int) int {
	for i, v := range classes {
		if v == label {
			return i
		}
	}
	return 0
}
