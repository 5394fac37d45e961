package model

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// RandomForest for binary classification
type RandomForest struct {
	// Hyperparameters / options
	NEstimators         int
	MaxDepth            int
	MinSamplesSplit     int
	MinSamplesLeaf      int
	MaxFeatures         int
	Criterion           string
	MinImpurityDecrease float64
	Bootstrap           bool
	RandomState         int64

	// Internal state
	Trees    []*DecisionTreeClassifier
	Features int
}

// Option functional config for RandomForest
type RandomForestOption func(*RandomForest)

func WithNEstimators(n int) RandomForestOption { return func(rf *RandomForest) { rf.NEstimators = n } }
func WithBootstrap(b bool) RandomForestOption  { return func(rf *RandomForest) { rf.Bootstrap = b } }
func WithSeed(seed int64) RandomForestOption   { return func(rf *RandomForest) { rf.RandomState = seed } }
func WithForestMaxDepth(d int) RandomForestOption {
	return func(rf *RandomForest) { rf.MaxDepth = d }
}
func WithForestMaxFeatures(k int) RandomForestOption {
	return func(rf *RandomForest) { rf.MaxFeatures = k }
}
func WithForestMinSamplesLeaf(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.MinSamplesLeaf = n }
}
func WithForestCriterion(c string) RandomForestOption {
	return func(rf *RandomForest) { rf.Criterion = c }
}
func WithForestMinImpurityDecrease(v float64) RandomForestOption {
	return func(rf *RandomForest) { rf.MinImpurityDecrease = v }
}

// NewRandomForest initializes the forest with sensible defaults.
func NewRandomForest(opts ...RandomForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Criterion:       "gini",
		Bootstrap:       true,
		RandomState:     42,
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

// Fit trains the random forest. Each tree gets its own seeded bootstrap
// sample, passed as row indices rather than copied rows.
func (rf *RandomForest) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return errors.New("randomforest: empty X")
	}
	n := len(X)
	if len(y) != n {
		return errors.New("randomforest: X and y length mismatch")
	}
	if rf.NEstimators <= 0 {
		return fmt.Errorf("randomforest: NEstimators must be positive, got %d", rf.NEstimators)
	}

	trees := make([]*DecisionTreeClassifier, rf.NEstimators)
	var g errgroup.Group
	for i := range rf.NEstimators {
		g.Go(func() error {
			seed := rf.RandomState + int64(i)
			treeRand := rand.New(rand.NewSource(seed))

			sampleIndices := make([]int, n)
			for j := range n {
				if rf.Bootstrap {
					sampleIndices[j] = treeRand.Intn(n)
				} else {
					sampleIndices[j] = j
				}
			}

			tree := NewDecisionTreeClassifier(
				WithMaxDepth(rf.MaxDepth),
				WithMinSamplesSplit(rf.MinSamplesSplit),
				WithMinSamplesLeaf(rf.MinSamplesLeaf),
				WithMaxFeatures(rf.MaxFeatures),
				WithCriterion(rf.Criterion),
				WithMinImpurityDecrease(rf.MinImpurityDecrease),
				WithRandomState(seed),
			)
			if err := tree.FitIndices(X, y, sampleIndices); err != nil {
				return fmt.Errorf("randomforest: tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	rf.Trees = trees
	rf.Features = len(X[0])
	return nil
}

// NumFeatures is the row width the forest was fitted on.
func (rf *RandomForest) NumFeatures() int { return rf.Features }

func (rf *RandomForest) check(x []float64) error {
	if len(rf.Trees) == 0 {
		return ErrNotFitted
	}
	if len(x) != rf.Features {
		return fmt.Errorf("randomforest: row has %d features, fitted on %d", len(x), rf.Features)
	}
	return nil
}

// Classify returns the majority vote of all trees for one row. A tied vote
// yields 0.
func (rf *RandomForest) Classify(x []float64) (int, error) {
	if err := rf.check(x); err != nil {
		return 0, err
	}
	votes := 0
	for _, t := range rf.Trees {
		if t.Classify(x) == 1 {
			votes++
		}
	}
	if 2*votes > len(rf.Trees) {
		return 1, nil
	}
	return 0, nil
}

// Proba returns the mean p(y=1) over all trees.
func (rf *RandomForest) Proba(x []float64) (float64, error) {
	if err := rf.check(x); err != nil {
		return 0, err
	}
	sum := 0.0
	for _, t := range rf.Trees {
		sum += t.ClassProba(x, 1)
	}
	return sum / float64(len(rf.Trees)), nil
}

// forestState is the gob wire form of a fitted forest.
type forestState struct {
	NEstimators         int
	MaxDepth            int
	MinSamplesSplit     int
	MinSamplesLeaf      int
	MaxFeatures         int
	Criterion           string
	MinImpurityDecrease float64
	Bootstrap           bool
	RandomState         int64
	Features            int
	Trees               []*DecisionTreeClassifier
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (rf *RandomForest) MarshalBinary() ([]byte, error) {
	if len(rf.Trees) == 0 {
		return nil, ErrNotFitted
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(forestState{
		NEstimators:         rf.NEstimators,
		MaxDepth:            rf.MaxDepth,
		MinSamplesSplit:     rf.MinSamplesSplit,
		MinSamplesLeaf:      rf.MinSamplesLeaf,
		MaxFeatures:         rf.MaxFeatures,
		Criterion:           rf.Criterion,
		MinImpurityDecrease: rf.MinImpurityDecrease,
		Bootstrap:           rf.Bootstrap,
		RandomState:         rf.RandomState,
		Features:            rf.Features,
		Trees:               rf.Trees,
	})
	if err != nil {
		return nil, fmt.Errorf("randomforest: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
func (rf *RandomForest) UnmarshalBinary(data []byte) error {
	var st forestState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("randomforest: decode: %w", err)
	}
	if len(st.Trees) == 0 || st.Features <= 0 {
		return ErrNotFitted
	}
	for i, t := range st.Trees {
		if t == nil || t.Root == nil || len(t.Classes) == 0 {
			return fmt.Errorf("randomforest: tree %d is empty", i)
		}
	}
	*rf = RandomForest{
		NEstimators:         st.NEstimators,
		MaxDepth:            st.MaxDepth,
		MinSamplesSplit:     st.MinSamplesSplit,
		MinSamplesLeaf:      st.MinSamplesLeaf,
		MaxFeatures:         st.MaxFeatures,
		Criterion:           st.Criterion,
		MinImpurityDecrease: st.MinImpurityDecrease,
		Bootstrap:           st.Bootstrap,
		RandomState:         st.RandomState,
		Features:            st.Features,
		Trees:               st.Trees,
	}
	return nil
}
