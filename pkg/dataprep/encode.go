package dataprep

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidInput marks a raw value outside its field's domain.
var ErrInvalidInput = errors.New("invalid input")

// RawRecord maps a field name to the text a user typed or a CSV cell held.
// An absent key or a missing marker means the value is missing.
type RawRecord map[string]string

// Features is the unordered output of the encoder.
type Features map[string]float64

// Kind describes how a field is turned into numeric columns.
type Kind int

const (
	Numeric Kind = iota
	Binary
	Ordinal
	OneHot
)

func (k Kind) String() string {
	switch k {
	case Binary:
		return "binary"
	case Ordinal:
		return "ordinal"
	case OneHot:
		return "onehot"
	default:
		return "numeric"
	}
}

// Field names of a loan application.
const (
	Gender            = "Gender"
	Married           = "Married"
	Dependents        = "Dependents"
	Education         = "Education"
	SelfEmployed      = "Self_Employed"
	ApplicantIncome   = "ApplicantIncome"
	CoapplicantIncome = "CoapplicantIncome"
	LoanAmount        = "LoanAmount"
	LoanAmountTerm    = "Loan_Amount_Term"
	CreditHistory     = "Credit_History"
	PropertyArea      = "Property_Area"

	TotalIncome     = "Total_Income"
	LoanIncomeRatio = "Loan_Income_Ratio"

	LabelColumn = "Loan_Status"
)

// FieldSpec is the closed vocabulary of one raw field.
type FieldSpec struct {
	Name     string
	Kind     Kind
	Levels   []string  // Binary, Ordinal, OneHot: accepted values in display order
	Positive string    // Binary: the level encoded as 1
	Baseline string    // OneHot: the reference level that gets no column
	Allowed  []float64 // Numeric: closed value set, nil for any non-negative number
}

// Vocabulary is the single declaration both training and inference encode with.
var Vocabulary = []FieldSpec{
	{Name: Gender, Kind: Binary, Levels: []string{"Male", "Female"}, Positive: "Male"},
	{Name: Married, Kind: Binary, Levels: []string{"Yes", "No"}, Positive: "Yes"},
	{Name: Dependents, Kind: Ordinal, Levels: []string{"0", "1", "2", "3+"}},
	{Name: Education, Kind: Binary, Levels: []string{"Graduate", "Not Graduate"}, Positive: "Graduate"},
	{Name: SelfEmployed, Kind: Binary, Levels: []string{"Yes", "No"}, Positive: "Yes"},
	{Name: ApplicantIncome, Kind: Numeric},
	{Name: CoapplicantIncome, Kind: Numeric},
	{Name: LoanAmount, Kind: Numeric},
	{Name: LoanAmountTerm, Kind: Numeric},
	{Name: CreditHistory, Kind: Numeric, Allowed: []float64{1, 0}},
	{Name: PropertyArea, Kind: OneHot, Levels: []string{"Urban", "Semiurban", "Rural"}, Baseline: "Rural"},
}

// Lookup returns the vocabulary entry for a field name.
func Lookup(name string) (FieldSpec, bool) {
	for _, f := range Vocabulary {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Options returns the enumerated choices offered for a field, or nil for
// free numeric input.
func Options(name string) []string {
	f, ok := Lookup(name)
	if !ok {
		return nil
	}
	if f.Kind == Numeric {
		if f.Allowed == nil {
			return nil
		}
		out := make([]string, len(f.Allowed))
		for i, v := range f.Allowed {
			out[i] = strconv.FormatFloat(v, 'f', 1, 64)
		}
		return out
	}
	return slices.Clone(f.Levels)
}

// FieldError describes one rejected raw value.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidInput }

// IsMissing reports whether a raw value is one of the missing markers.
func IsMissing(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "NA", "NaN", "nan", "null":
		return true
	}
	return false
}

// IndicatorColumn names the indicator column of one level.
func IndicatorColumn(field, level string) string { return field + "_" + level }

// IndicatorColumns returns the indicator columns for levels of a one-hot
// field, sorted by level, with the baseline level dropped.
func IndicatorColumns(field string, levels []string, baseline string) []string {
	sorted := slices.Clone(levels)
	slices.Sort(sorted)
	out := make([]string, 0, len(sorted))
	for _, lv := range slices.Compact(sorted) {
		if lv == baseline {
			continue
		}
		out = append(out, IndicatorColumn(field, lv))
	}
	return out
}

// Scalar encodes a non one-hot field value.
func (f FieldSpec) Scalar(raw string) (float64, error) {
	v := strings.TrimSpace(raw)
	switch f.Kind {
	case Binary:
		if !slices.Contains(f.Levels, v) {
			return 0, f.reject(raw, fmt.Sprintf("not one of %v", f.Levels))
		}
		if v == f.Positive {
			return 1, nil
		}
		return 0, nil
	case Ordinal:
		if !slices.Contains(f.Levels, v) {
			return 0, f.reject(raw, fmt.Sprintf("not one of %v", f.Levels))
		}
		if v == "3+" {
			return 3, nil
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, f.reject(raw, "not a number")
		}
		return n, nil
	case Numeric:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, f.reject(raw, "not a number")
		}
		if n < 0 {
			return 0, f.reject(raw, "must not be negative")
		}
		if f.Allowed != nil && !slices.Contains(f.Allowed, n) {
			return 0, f.reject(raw, fmt.Sprintf("not one of %v", f.Allowed))
		}
		return n, nil
	}
	return 0, f.reject(raw, "one-hot field has no scalar encoding")
}

func (f FieldSpec) reject(raw, reason string) error {
	return &FieldError{Field: f.Name, Value: raw, Reason: reason}
}

// Encoder applies the vocabulary to raw records. One-hot fields expand to
// the levels the encoder was built with.
type Encoder struct {
	levels map[string][]string
	open   bool
}

// NewEncoder returns the encoder for the fixed vocabulary. Values outside a
// field's levels are rejected.
func NewEncoder() *Encoder {
	levels := make(map[string][]string)
	for _, f := range Vocabulary {
		if f.Kind == OneHot {
			levels[f.Name] = f.Levels
		}
	}
	return &Encoder{levels: levels}
}

// NewDiscoveredEncoder returns an encoder whose one-hot expansion follows
// levels found in data. Levels absent from the vocabulary are accepted for
// one-hot fields; every other field stays closed.
func NewDiscoveredEncoder(levels map[string][]string) *Encoder {
	e := NewEncoder()
	for name, lv := range levels {
		e.levels[name] = slices.Clone(lv)
	}
	e.open = true
	return e
}

var defaultEncoder = NewEncoder()

// Encode applies the fixed vocabulary to rec.
func Encode(rec RawRecord) (Features, error) { return defaultEncoder.Encode(rec) }

// Validate checks every present field of rec against the vocabulary and
// returns all violations joined.
func Validate(rec RawRecord) error {
	_, err := defaultEncoder.Encode(rec)
	return err
}

// Encode turns rec into features. Missing fields produce no columns; the
// derived income columns are always produced, counting missing inputs as 0.
func (e *Encoder) Encode(rec RawRecord) (Features, error) {
	out := make(Features, len(Vocabulary)+4)
	var errs []error
	for _, f := range Vocabulary {
		raw, ok := rec[f.Name]
		if !ok || IsMissing(raw) {
			continue
		}
		if f.Kind != OneHot {
			v, err := f.Scalar(raw)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out[f.Name] = v
			continue
		}
		v := strings.TrimSpace(raw)
		levels := e.levels[f.Name]
		if !e.open && !slices.Contains(levels, v) {
			errs = append(errs, f.reject(raw, fmt.Sprintf("not one of %v", levels)))
			continue
		}
		for _, lv := range levels {
			if lv == f.Baseline {
				continue
			}
			out[IndicatorColumn(f.Name, lv)] = indicator(v == lv)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	AddDerived(out)
	return out, nil
}

// Columns returns the columns the encoder produces for a dataset with the
// given header, in header order with one-hot fields expanded in place and
// derived columns last. Header names outside the vocabulary are skipped.
func (e *Encoder) Columns(header []string) []string {
	var cols []string
	present := make(map[string]bool, len(header))
	for _, name := range header {
		f, ok := Lookup(name)
		if !ok || present[name] {
			continue
		}
		present[name] = true
		if f.Kind == OneHot {
			cols = append(cols, IndicatorColumns(f.Name, e.levels[f.Name], f.Baseline)...)
			continue
		}
		cols = append(cols, f.Name)
	}
	if present[ApplicantIncome] && present[CoapplicantIncome] {
		cols = append(cols, TotalIncome)
		if present[LoanAmount] {
			cols = append(cols, LoanIncomeRatio)
		}
	}
	return cols
}

// DefaultColumns returns the columns of the fixed vocabulary.
func DefaultColumns() []string {
	names := make([]string, len(Vocabulary))
	for i, f := range Vocabulary {
		names[i] = f.Name
	}
	return defaultEncoder.Columns(names)
}

// DerivedColumns lists the columns computed from other fields, in schema
// order.
func DerivedColumns() []string { return []string{TotalIncome, LoanIncomeRatio} }

// FormatValue renders an encoded value the way applicants entered it.
func FormatValue(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// AddDerived sets Total_Income and Loan_Income_Ratio. The ratio is 0 when
// total income is 0.
func AddDerived(f Features) {
	total := f[ApplicantIncome] + f[CoapplicantIncome]
	f[TotalIncome] = total
	if total == 0 {
		f[LoanIncomeRatio] = 0
		return
	}
	f[LoanIncomeRatio] = f[LoanAmount] / total
}

// EncodeLabel maps the approval outcome Y/N to 1/0.
func EncodeLabel(raw string) (int, error) {
	switch strings.TrimSpace(raw) {
	case "Y":
		return 1, nil
	case "N":
		return 0, nil
	}
	return 0, &FieldError{Field: LabelColumn, Value: raw, Reason: "not one of [Y N]"}
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
