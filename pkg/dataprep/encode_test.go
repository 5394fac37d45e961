package dataprep

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func application() RawRecord {
	return RawRecord{
		Gender:            "Male",
		Married:           "Yes",
		Education:         "Graduate",
		SelfEmployed:      "No",
		ApplicantIncome:   "5000",
		CoapplicantIncome: "0",
		LoanAmount:        "100",
		LoanAmountTerm:    "360",
		CreditHistory:     "1.0",
		PropertyArea:      "Urban",
		Dependents:        "0",
	}
}

func TestEncode_Application(t *testing.T) {
	got, err := Encode(application())
	require.NoError(t, err)

	want := Features{
		Gender:                                   1,
		Married:                                  1,
		Education:                                1,
		SelfEmployed:                             0,
		ApplicantIncome:                          5000,
		CoapplicantIncome:                        0,
		LoanAmount:                               100,
		LoanAmountTerm:                           360,
		CreditHistory:                            1,
		Dependents:                               0,
		IndicatorColumn(PropertyArea, "Urban"):     1,
		IndicatorColumn(PropertyArea, "Semiurban"): 0,
		TotalIncome:                              5000,
		LoanIncomeRatio:                          0.02,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_Dependents(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"0", 0},
		{"1", 1},
		{"2", 2},
		{"3+", 3},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			rec := application()
			rec[Dependents] = tt.raw
			got, err := Encode(rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got[Dependents])
		})
	}
}

func TestEncode_PropertyAreaExclusive(t *testing.T) {
	tests := []struct {
		area           string
		urban, semiurb float64
	}{
		{"Rural", 0, 0},
		{"Urban", 1, 0},
		{"Semiurban", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.area, func(t *testing.T) {
			rec := application()
			rec[PropertyArea] = tt.area
			got, err := Encode(rec)
			require.NoError(t, err)
			assert.Equal(t, tt.urban, got[IndicatorColumn(PropertyArea, "Urban")])
			assert.Equal(t, tt.semiurb, got[IndicatorColumn(PropertyArea, "Semiurban")])
			_, hasRural := got[IndicatorColumn(PropertyArea, "Rural")]
			assert.False(t, hasRural, "baseline level must not get a column")
		})
	}
}

func TestEncode_ZeroIncomeRatio(t *testing.T) {
	rec := application()
	rec[ApplicantIncome] = "0"
	rec[CoapplicantIncome] = "0"
	got, err := Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got[TotalIncome])
	assert.Equal(t, 0.0, got[LoanIncomeRatio])
}

func TestEncode_MissingFieldsProduceNoColumns(t *testing.T) {
	got, err := Encode(RawRecord{Gender: "Female", LoanAmount: "NA"})
	require.NoError(t, err)
	want := Features{Gender: 0, TotalIncome: 0, LoanIncomeRatio: 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
	}{
		{"unknown gender", Gender, "Other"},
		{"unknown area", PropertyArea, "Suburb"},
		{"dependents out of range", Dependents, "4"},
		{"credit history not 0 or 1", CreditHistory, "0.5"},
		{"negative income", ApplicantIncome, "-1"},
		{"non-numeric amount", LoanAmount, "lots"},
		{"infinite term", LoanAmountTerm, "Inf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := application()
			rec[tt.field] = tt.value
			_, err := Encode(rec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
			assert.Equal(t, tt.value, fe.Value)
		})
	}
}

func TestValidate_JoinsAllViolations(t *testing.T) {
	rec := application()
	rec[Gender] = "x"
	rec[Married] = "y"
	err := Validate(rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), Gender)
	assert.Contains(t, err.Error(), Married)
	assert.Equal(t, 2, strings.Count(err.Error(), "not one of"))
}

func TestEncode_IgnoresUnknownFields(t *testing.T) {
	rec := application()
	rec["Loan_ID"] = "LP001002"
	got, err := Encode(rec)
	require.NoError(t, err)
	_, ok := got["Loan_ID"]
	assert.False(t, ok)
}

func TestDiscoveredEncoder_AcceptsTrainingLevels(t *testing.T) {
	enc := NewDiscoveredEncoder(map[string][]string{PropertyArea: {"Rural", "Suburb", "Urban"}})
	got, err := enc.Encode(RawRecord{PropertyArea: "Suburb"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got[IndicatorColumn(PropertyArea, "Suburb")])
	assert.Equal(t, 0.0, got[IndicatorColumn(PropertyArea, "Urban")])

	_, err = enc.Encode(RawRecord{Gender: "Other"})
	assert.ErrorIs(t, err, ErrInvalidInput, "non one-hot fields stay closed")
}

func TestEncoder_Columns(t *testing.T) {
	enc := NewDiscoveredEncoder(map[string][]string{PropertyArea: {"Urban", "Rural", "Semiurban"}})
	header := []string{"Loan_ID", Gender, PropertyArea, ApplicantIncome, CoapplicantIncome, LoanAmount, LabelColumn}
	want := []string{
		Gender,
		IndicatorColumn(PropertyArea, "Semiurban"),
		IndicatorColumn(PropertyArea, "Urban"),
		ApplicantIncome,
		CoapplicantIncome,
		LoanAmount,
		TotalIncome,
		LoanIncomeRatio,
	}
	if diff := cmp.Diff(want, enc.Columns(header)); diff != "" {
		t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
	}
}

func TestEncoder_ColumnsWithoutIncome(t *testing.T) {
	got := NewEncoder().Columns([]string{Gender, LoanAmount})
	assert.Equal(t, []string{Gender, LoanAmount}, got)
}

func TestDefaultColumns(t *testing.T) {
	cols := DefaultColumns()
	assert.Len(t, cols, 14)
	assert.Equal(t, Gender, cols[0])
	assert.Equal(t, []string{TotalIncome, LoanIncomeRatio}, cols[len(cols)-2:])
	assert.NotContains(t, cols, PropertyArea)
	assert.NotContains(t, cols, IndicatorColumn(PropertyArea, "Rural"))
}

func TestOptions(t *testing.T) {
	assert.Equal(t, []string{"1.0", "0.0"}, Options(CreditHistory))
	assert.Equal(t, []string{"0", "1", "2", "3+"}, Options(Dependents))
	assert.Equal(t, []string{"Urban", "Semiurban", "Rural"}, Options(PropertyArea))
	assert.Nil(t, Options(ApplicantIncome))
	assert.Nil(t, Options("Loan_ID"))
}

func TestOptions_AllEncode(t *testing.T) {
	for _, f := range Vocabulary {
		for _, opt := range Options(f.Name) {
			_, err := Encode(RawRecord{f.Name: opt})
			assert.NoError(t, err, "%s=%s", f.Name, opt)
		}
	}
}

func TestEncodeLabel(t *testing.T) {
	y, err := EncodeLabel("Y")
	require.NoError(t, err)
	assert.Equal(t, 1, y)

	n, err := EncodeLabel(" N ")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = EncodeLabel("maybe")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIsMissing(t *testing.T) {
	for _, v := range []string{"", " ", "NA", "NaN", "nan", "null"} {
		assert.True(t, IsMissing(v), "%q", v)
	}
	for _, v := range []string{"0", "No", "N"} {
		assert.False(t, IsMissing(v), "%q", v)
	}
}
