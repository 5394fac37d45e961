package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"loanml/pkg/data"
	"loanml/pkg/dataprep"
	"loanml/pkg/model"
)

const header = "Loan_ID,Gender,Married,Dependents,Education,Self_Employed,ApplicantIncome,CoapplicantIncome,LoanAmount,Loan_Amount_Term,Credit_History,Property_Area,Loan_Status\n"

const history = header +
	"LP001,Male,No,0,Graduate,No,5849,0,,360,1,Urban,Y\n" +
	"LP002,Male,Yes,1,Graduate,No,4583,1508,128,360,1,Rural,N\n" +
	"LP003,Male,Yes,0,Graduate,Yes,3000,0,66,360,1,Urban,Y\n" +
	"LP004,Male,Yes,0,Not Graduate,No,2583,2358,120,360,1,Urban,Y\n" +
	"LP005,Male,No,0,Graduate,No,6000,0,141,360,1,Urban,Y\n" +
	"LP006,Male,Yes,2,Graduate,Yes,5417,4196,267,360,1,Urban,Y\n" +
	"LP007,Male,Yes,0,Not Graduate,No,2333,1516,95,360,1,Urban,Y\n" +
	"LP008,Male,Yes,3+,Graduate,No,3036,2504,158,360,0,Semiurban,N\n" +
	"LP009,Male,Yes,2,Graduate,No,4006,1526,168,360,1,Urban,Y\n" +
	"LP010,Male,Yes,1,Graduate,No,12841,10968,349,360,1,Semiurban,N\n" +
	"LP011,Female,No,0,Graduate,No,3200,700,70,360,0,Urban,N\n" +
	"LP012,,Yes,2,Graduate,,2500,1840,109,360,1,Urban,Y\n"

// recorder is an Estimator that keeps what it was fitted on.
type recorder struct {
	X     [][]float64
	y     []int
	width int
	label int
}

func (r *recorder) Fit(X [][]float64, y []int) error {
	r.X, r.y = X, y
	if len(X) > 0 {
		r.width = len(X[0])
	}
	return nil
}
func (r *recorder) Classify([]float64) (int, error) { return r.label, nil }
func (r *recorder) Proba([]float64) (float64, error) { return float64(r.label), nil }
func (r *recorder) NumFeatures() int                 { return r.width }

func frame(t *testing.T, csv string) *data.Frame {
	t.Helper()
	f, err := data.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return f
}

func buildWith(t *testing.T, cfg BuildConfig, f *data.Frame) (*BuildResult, *recorder) {
	t.Helper()
	rec := &recorder{label: 1}
	cfg.NewModel = func() model.Estimator { return rec }
	res, err := NewBuilder(cfg).Build(context.Background(), f)
	require.NoError(t, err)
	return res, rec
}

func TestBuild_SchemaOrder(t *testing.T) {
	res, rec := buildWith(t, DefaultBuildConfig(), frame(t, history))

	want := []string{
		dataprep.Gender,
		dataprep.Married,
		dataprep.Dependents,
		dataprep.Education,
		dataprep.SelfEmployed,
		dataprep.ApplicantIncome,
		dataprep.CoapplicantIncome,
		dataprep.LoanAmount,
		dataprep.LoanAmountTerm,
		dataprep.CreditHistory,
		"Property_Area_Semiurban",
		"Property_Area_Urban",
		dataprep.TotalIncome,
		dataprep.LoanIncomeRatio,
	}
	assert.Equal(t, want, res.Schema.Columns())
	assert.Equal(t, []string{"Loan_ID"}, res.Report.Ignored)
	assert.Equal(t, []string{"Rural", "Semiurban", "Urban"}, res.Report.Levels[dataprep.PropertyArea])
	assert.Equal(t, 12, res.Report.Rows)
	assert.Equal(t, res.Report.Rows, res.Report.TrainRows+res.Report.TestRows)
	assert.Len(t, rec.X, res.Report.TrainRows)
	assert.Equal(t, res.Schema.Len(), rec.width)
	require.NotNil(t, res.Report.Evaluation)
	assert.Equal(t, res.Report.TestRows, res.Report.Evaluation.Samples)
}

func TestBuild_DiscoversOnlyPresentLevels(t *testing.T) {
	csv := "Property_Area,ApplicantIncome,Loan_Status\n" +
		"Urban,100,Y\n" +
		"Rural,200,N\n"
	res, _ := buildWith(t, BuildConfig{TestRatio: 0}, frame(t, csv))
	assert.Equal(t, []string{"Property_Area_Urban", dataprep.ApplicantIncome}, res.Schema.Columns())
	assert.Nil(t, res.Report.Evaluation)
}

func TestBuild_UnknownLevelKept(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	csv := "Property_Area,Loan_Status\n" +
		"Urban,Y\n" +
		"Suburb,N\n"
	rec := &recorder{}
	cfg := BuildConfig{NewModel: func() model.Estimator { return rec }}
	res, err := NewBuilder(cfg, WithBuilderLogger(zap.New(core))).Build(context.Background(), frame(t, csv))
	require.NoError(t, err)
	assert.Equal(t, []string{"Property_Area_Suburb", "Property_Area_Urban"}, res.Schema.Columns())
	assert.Equal(t, 1, logs.FilterMessage("level outside vocabulary kept as column").Len())

	// Inference cannot produce the extra level; it is zero-filled.
	p, err := ReconcileDetailed(dataprep.RawRecord{dataprep.PropertyArea: "Urban"}, res.Schema)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, p.Vector.Values())
	assert.Equal(t, []string{"Property_Area_Suburb"}, p.Filled)
}

func TestBuild_Imputation(t *testing.T) {
	csv := "LoanAmount,Loan_Status\n" +
		"100,Y\n" +
		",N\n" +
		"200,Y\n"

	ffill, _ := buildWith(t, BuildConfig{Impute: dataprep.ImputeForwardFill}, frame(t, csv))
	assert.InDelta(t, 400.0/3.0, ffill.Report.Summaries[dataprep.LoanAmount].Mean, 1e-9)

	stats, _ := buildWith(t, BuildConfig{Impute: dataprep.ImputeColumnStats}, frame(t, csv))
	assert.InDelta(t, 150.0, stats.Report.Summaries[dataprep.LoanAmount].Mean, 1e-9)
}

func TestBuild_LeadingMissingEncodesZero(t *testing.T) {
	csv := "Gender,LoanAmount,Loan_Status\n" +
		",100,Y\n" +
		"Male,200,N\n"
	res, _ := buildWith(t, BuildConfig{}, frame(t, csv))
	s := res.Report.Summaries[dataprep.Gender]
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 1.0, s.Max)
}

func TestBuild_DoesNotModifyInput(t *testing.T) {
	f := frame(t, history)
	before := f.Clone()
	buildWith(t, DefaultBuildConfig(), f)
	assert.Equal(t, before, f)
}

// Training rows and inference requests for the same applicant must produce
// the same vector.
func TestBuild_TrainingMatchesInference(t *testing.T) {
	f := frame(t, history)
	res, rec := buildWith(t, BuildConfig{TestRatio: 0}, f)
	require.Len(t, rec.X, len(f.Rows))

	for i := range f.Rows {
		row := dataprep.RawRecord(f.Record(i))
		if dataprep.Validate(row) != nil {
			continue
		}
		complete := true
		for _, v := range row {
			if dataprep.IsMissing(v) {
				complete = false
			}
		}
		if !complete {
			continue
		}
		v, err := Reconcile(row, res.Schema)
		require.NoError(t, err)
		assert.Contains(t, rec.X, v.Values(), "row %d", i+1)
	}
}

func TestBuild_Malformed(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"no label column", "Gender,LoanAmount\nMale,100\n"},
		{"bad label", "Gender,Loan_Status\nMale,Y\nFemale,Maybe\n"},
		{"missing label", "Gender,Loan_Status\nMale,Y\nFemale,\n"},
		{"bad categorical", "Gender,Loan_Status\nOther,Y\n"},
		{"no features", "Loan_ID,Loan_Status\nLP1,Y\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(DefaultBuildConfig()).Build(context.Background(), frame(t, tt.csv))
			assert.ErrorIs(t, err, data.ErrMalformedDataset)
		})
	}
}

func TestBuild_BadCategoricalNamesRow(t *testing.T) {
	csv := "Gender,Loan_Status\nMale,Y\nOther,N\n"
	_, err := NewBuilder(DefaultBuildConfig()).Build(context.Background(), frame(t, csv))
	require.Error(t, err)
	assert.ErrorIs(t, err, dataprep.ErrInvalidInput)
	assert.Contains(t, err.Error(), "row 2")
}

func TestBuild_RejectsBadConfig(t *testing.T) {
	_, err := NewBuilder(BuildConfig{TestRatio: 1}).Build(context.Background(), frame(t, history))
	assert.Error(t, err)

	_, err = NewBuilder(DefaultBuildConfig()).Build(context.Background(), nil)
	assert.ErrorIs(t, err, data.ErrMalformedDataset)
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBuilder(DefaultBuildConfig()).Build(ctx, frame(t, history))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_RandomForest(t *testing.T) {
	cfg := DefaultBuildConfig()
	cfg.NewModel = func() model.Estimator {
		return model.NewRandomForest(model.WithNEstimators(5), model.WithSeed(cfg.Seed))
	}
	res, err := NewBuilder(cfg).Build(context.Background(), frame(t, history))
	require.NoError(t, err)

	p, err := NewPredictor(res.Schema, res.Model)
	require.NoError(t, err)
	out, err := p.Predict(context.Background(), application())
	require.NoError(t, err)
	assert.Contains(t, []int{0, 1}, out.Label)
	assert.Equal(t, out.Label == 1, out.Approved)
}
