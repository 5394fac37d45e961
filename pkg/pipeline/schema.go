package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrSchemaMismatch marks a feature schema that is empty, malformed, or does
// not fit the model it is paired with.
var ErrSchemaMismatch = errors.New("schema mismatch")

// SchemaVersion is the version written into schema files.
const SchemaVersion = 1

// FeatureSchema is the ordered list of column names a model was fitted on.
// It is immutable; the zero value is invalid.
type FeatureSchema struct {
	columns []string
	index   map[string]int
}

// NewFeatureSchema validates and copies columns.
func NewFeatureSchema(columns []string) (FeatureSchema, error) {
	if len(columns) == 0 {
		return FeatureSchema{}, fmt.Errorf("%w: no columns", ErrSchemaMismatch)
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if strings.TrimSpace(c) == "" {
			return FeatureSchema{}, fmt.Errorf("%w: blank column name at position %d", ErrSchemaMismatch, i)
		}
		if _, dup := index[c]; dup {
			return FeatureSchema{}, fmt.Errorf("%w: duplicate column %q", ErrSchemaMismatch, c)
		}
		index[c] = i
	}
	return FeatureSchema{columns: slices.Clone(columns), index: index}, nil
}

// MustFeatureSchema is NewFeatureSchema for literals known to be valid.
func MustFeatureSchema(columns ...string) FeatureSchema {
	s, err := NewFeatureSchema(columns)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate reports whether s is a non-empty sequence of unique names.
func (s FeatureSchema) Validate() error {
	if len(s.columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrSchemaMismatch)
	}
	if len(s.index) != len(s.columns) {
		return fmt.Errorf("%w: column index out of sync", ErrSchemaMismatch)
	}
	return nil
}

// Columns returns a copy of the column names in order.
func (s FeatureSchema) Columns() []string { return slices.Clone(s.columns) }

// Len is the number of columns.
func (s FeatureSchema) Len() int { return len(s.columns) }

// Index returns the position of a column.
func (s FeatureSchema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Equal reports whether both schemas list the same columns in the same order.
func (s FeatureSchema) Equal(o FeatureSchema) bool { return slices.Equal(s.columns, o.columns) }

type schemaFile struct {
	Version int      `json:"version"`
	Columns []string `json:"columns"`
}

func (s FeatureSchema) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(schemaFile{Version: SchemaVersion, Columns: s.columns})
}

func (s *FeatureSchema) UnmarshalJSON(b []byte) error {
	var f schemaFile
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if f.Version != SchemaVersion {
		return fmt.Errorf("%w: unsupported schema version %d", ErrSchemaMismatch, f.Version)
	}
	parsed, err := NewFeatureSchema(f.Columns)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// FeatureVector is one row aligned to a FeatureSchema.
type FeatureVector struct {
	schema FeatureSchema
	values []float64
}

// Schema returns the schema the vector is aligned to.
func (v FeatureVector) Schema() FeatureSchema { return v.schema }

// Values returns a copy of the positional values.
func (v FeatureVector) Values() []float64 { return slices.Clone(v.values) }

// Len is the number of values.
func (v FeatureVector) Len() int { return len(v.values) }

// Get returns the value of a column.
func (v FeatureVector) Get(name string) (float64, bool) {
	i, ok := v.schema.Index(name)
	if !ok {
		return 0, false
	}
	return v.values[i], true
}

// Map returns the vector as column → value.
func (v FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.values))
	for i, c := range v.schema.columns {
		out[c] = v.values[i]
	}
	return out
}
