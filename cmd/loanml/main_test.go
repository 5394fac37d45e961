package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanml/internal/journal"
	"loanml/pkg/dataprep"
	"loanml/pkg/pipeline"
)

const dataset = "Loan_ID,Gender,Married,Dependents,Education,Self_Employed,ApplicantIncome,CoapplicantIncome,LoanAmount,Loan_Amount_Term,Credit_History,Property_Area,Loan_Status\n" +
	"LP001,Male,No,0,Graduate,No,5849,0,,360,1,Urban,Y\n" +
	"LP002,Male,Yes,1,Graduate,No,4583,1508,128,360,1,Rural,N\n" +
	"LP003,Male,Yes,0,Graduate,Yes,3000,0,66,360,1,Urban,Y\n" +
	"LP004,Male,Yes,0,Not Graduate,No,2583,2358,120,360,1,Urban,Y\n" +
	"LP005,Male,No,0,Graduate,No,6000,0,141,360,1,Urban,Y\n" +
	"LP006,Male,Yes,2,Graduate,Yes,5417,4196,267,360,1,Urban,Y\n" +
	"LP007,Male,Yes,3+,Graduate,No,3036,2504,158,360,0,Semiurban,N\n" +
	"LP008,Female,No,0,Graduate,No,3200,700,70,360,0,Urban,N\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTrainPredictSchema(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "loans.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(dataset), 0o644))
	artifacts := filepath.Join(dir, "artifacts")
	t.Setenv("LOANML_ARTIFACT_DIR", artifacts)
	t.Setenv("LOANML_TRAIN_TREES", "5")
	t.Setenv("LOANML_LOG_LEVEL", "error")

	out, err := execute(t, "train", csvPath, "--json")
	require.NoError(t, err, out)
	var report struct {
		Rows    int      `json:"rows"`
		Columns []string `json:"columns"`
		Ignored []string `json:"ignored"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 8, report.Rows)
	assert.Equal(t, []string{"Loan_ID"}, report.Ignored)
	assert.FileExists(t, filepath.Join(artifacts, "loan_model.gob"))
	assert.FileExists(t, filepath.Join(artifacts, "feature_columns.json"))

	out, err = execute(t, "schema", "--json")
	require.NoError(t, err, out)
	var schema struct {
		Columns []string `json:"columns"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, report.Columns, schema.Columns)

	out, err = execute(t, "predict", "--json",
		"-f", "Gender=Male", "-f", "Credit_History=1.0", "-f", "ApplicantIncome=5000",
		"-f", "CoapplicantIncome=0", "-f", "LoanAmount=100", "-f", "Property_Area=Urban")
	require.NoError(t, err, out)
	var pred struct {
		Label    int                `json:"label"`
		Features map[string]float64 `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &pred))
	assert.Contains(t, []int{0, 1}, pred.Label)
	assert.Equal(t, 0.02, pred.Features["Loan_Income_Ratio"])

	_, err = execute(t, "predict", "--json", "-f", "Property_Area=Moon")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Property_Area"))
}

func TestServeWithoutArtifacts(t *testing.T) {
	t.Setenv("LOANML_ARTIFACT_DIR", filepath.Join(t.TempDir(), "empty"))
	t.Setenv("LOANML_LOG_LEVEL", "error")
	_, err := execute(t, "serve", "--addr", "127.0.0.1:0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "artifact missing")
}

func TestHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal", "predictions.db")
	t.Setenv("LOANML_JOURNAL_PATH", dbPath)
	t.Setenv("LOANML_LOG_LEVEL", "error")

	out, err := execute(t, "history")
	require.NoError(t, err, out)
	assert.Contains(t, out, "no predictions recorded")

	store, err := journal.Open(dbPath)
	require.NoError(t, err)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"first-id", "second-id"} {
		require.NoError(t, store.Record(context.Background(), pipeline.PredictionRecord{
			ID:          id,
			Label:       i,
			Approved:    i == 1,
			Probability: 0.5,
			Input:       dataprep.RawRecord{dataprep.PropertyArea: "Semiurban"},
			Features:    dataprep.Features{},
			CreatedAt:   at.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Close())

	out, err = execute(t, "history", "-n", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "second-id")
	assert.NotContains(t, out, "first-id")
	assert.Contains(t, out, "Property_Area=Semiurban")
}

func TestRenderPrediction_ShowsDerivedFields(t *testing.T) {
	out := renderPrediction(pipeline.PredictionRecord{
		ID:       "abc",
		Approved: true,
		Input:    dataprep.RawRecord{dataprep.ApplicantIncome: "5000", dataprep.LoanAmount: "100"},
		Features: dataprep.Features{dataprep.TotalIncome: 5000, dataprep.LoanIncomeRatio: 0.02},
	})
	assert.Contains(t, out, "Congratulations")
	assert.Contains(t, out, dataprep.TotalIncome)
	assert.Contains(t, out, dataprep.LoanIncomeRatio)
	assert.Contains(t, out, "0.02")
}
