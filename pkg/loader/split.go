package loader

import "math/rand"

// TrainTestSplit splits X, y into train and test sets by ratio. The same
// seed always yields the same split.
func TrainTestSplit(X [][]float64, y []int, testRatio float64, seed int64) (XTrain, XTest [][]float64, yTrain, yTest []int) {
	n := len(X)
	indices := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(float64(n) * testRatio)
	if nTest >= n && n > 0 {
		nTest = n - 1
	}
	for i, idx := range indices {
		if i < nTest {
			XTest = append(XTest, X[idx])
			yTest = append(yTest, y[idx])
		} else {
			XTrain = append(XTrain, X[idx])
			yTrain = append(yTrain, y[idx])
		}
	}
	return
}
