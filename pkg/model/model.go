package model

import "errors"

// ErrNotFitted is returned when a model is used before training or after a
// load that produced no trees.
var ErrNotFitted = errors.New("model: not fitted")

// Classifier is a trained, immutable binary classifier. Implementations are
// safe for concurrent use once fitted.
type Classifier interface {
	// Classify returns the predicted label (0 or 1) for one positional
	// feature row.
	Classify(x []float64) (int, error)
	// Proba returns p(y=1) for one row.
	Proba(x []float64) (float64, error)
	// NumFeatures is the row width the classifier was fitted on.
	NumFeatures() int
}

// Estimator is a Classifier that can be fitted.
type Estimator interface {
	Classifier
	Fit(X [][]float64, y []int) error
}

// ClassifyAll applies c to every row of X.
func ClassifyAll(c Classifier, X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	for i, row := range X {
		label, err := c.Classify(row)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}
