package model

// Classification metrics (binary, labels 0/1)

// Report summarizes a classifier on a held-out set.
type Report struct {
	Samples   int     `json:"samples"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	TrueNegative  int `json:"true_negative"`
	FalseNegative int `json:"false_negative"`
}

// Evaluate computes a Report from true and predicted labels.
func Evaluate(yTrue, yPred []int) Report {
	r := Report{Samples: len(yTrue)}
	for i := range yTrue {
		switch {
		case yPred[i] == 1 && yTrue[i] == 1:
			r.TruePositive++
		case yPred[i] == 1 && yTrue[i] == 0:
			r.FalsePositive++
		case yPred[i] == 0 && yTrue[i] == 1:
			r.FalseNegative++
		default:
			r.TrueNegative++
		}
	}
	r.Accuracy = AccuracyInt(yTrue, yPred)
	r.Precision, r.Recall, r.F1 = PrecisionRecallF1(yTrue, yPred)
	return r
}

func AccuracyInt(yTrue []int, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

func PrecisionRecallF1(yTrue []int, yPred []int) (prec, rec, f1 float64) {
	tp, fp, fn := 0, 0, 0
	for i := range yTrue {
		if yPred[i] == 1 && yTrue[i] == 1 {
			tp++
		}
		if yPred[i] == 1 && yTrue[i] == 0 {
			fp++
		}
		if yPred[i] == 0 && yTrue[i] == 1 {
			fn++
		}
	}
	if tp+fp > 0 {
		prec = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		rec = float64(tp) / float64(tp+fn)
	}
	if prec+rec > 0 {
		f1 = 2 * prec * rec / (prec + rec)
	}
	return
}
