package pipeline

import (
	"slices"

	"loanml/pkg/dataprep"
)

// Projection is a FeatureVector together with how it was derived from the
// encoder output.
type Projection struct {
	Vector  FeatureVector
	Encoded dataprep.Features // every column the encoder produced, derived ones included
	Filled  []string          // schema columns the encoder did not produce, set to 0
	Dropped []string          // encoder columns the schema does not list
}

// Project aligns encoded features to schema. Columns the schema lists but
// the encoder did not produce are 0; encoder columns the schema does not
// list are discarded.
func Project(f dataprep.Features, schema FeatureSchema) (Projection, error) {
	if err := schema.Validate(); err != nil {
		return Projection{}, err
	}
	values := make([]float64, schema.Len())
	var filled []string
	for i, col := range schema.columns {
		v, ok := f[col]
		if !ok {
			filled = append(filled, col)
			continue
		}
		values[i] = v
	}
	var dropped []string
	for col := range f {
		if _, ok := schema.Index(col); !ok {
			dropped = append(dropped, col)
		}
	}
	slices.Sort(dropped)
	return Projection{
		Vector:  FeatureVector{schema: schema, values: values},
		Encoded: f,
		Filled:  filled,
		Dropped: dropped,
	}, nil
}

// Reconcile encodes rec with the shared vocabulary and projects it onto
// schema. Missing fields are zero-filled; values outside a field's
// enumerated set fail with dataprep.ErrInvalidInput.
func Reconcile(rec dataprep.RawRecord, schema FeatureSchema) (FeatureVector, error) {
	p, err := ReconcileDetailed(rec, schema)
	if err != nil {
		return FeatureVector{}, err
	}
	return p.Vector, nil
}

// ReconcileDetailed is Reconcile that also reports the encoder output and
// the filled and dropped columns.
func ReconcileDetailed(rec dataprep.RawRecord, schema FeatureSchema) (Projection, error) {
	if err := schema.Validate(); err != nil {
		return Projection{}, err
	}
	f, err := dataprep.Encode(rec)
	if err != nil {
		return Projection{}, err
	}
	return Project(f, schema)
}
