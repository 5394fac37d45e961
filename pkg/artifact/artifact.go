// Package artifact persists the trained model and its feature schema, and
// loads them back as a ready Predictor.
package artifact

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"loanml/pkg/model"
	"loanml/pkg/pipeline"
)

// File names inside an artifact directory.
const (
	ModelFile  = "loan_model.gob"
	SchemaFile = "feature_columns.json"
)

const modelHeader = "loanml-forest/v1\n"

// ErrArtifactMissing marks a model or schema file that is absent, corrupt,
// or does not match its partner.
var ErrArtifactMissing = errors.New("artifact missing or corrupt")

// Model is a classifier that can be written to disk.
type Model interface {
	model.Classifier
	encoding.BinaryMarshaler
}

// Save writes schema and model into dir, creating it if needed. Both are
// encoded before either file is replaced.
func Save(dir string, schema pipeline.FeatureSchema, m Model) error {
	if m.NumFeatures() != schema.Len() {
		return fmt.Errorf("%w: schema has %d columns, model expects %d", pipeline.ErrSchemaMismatch, schema.Len(), m.NumFeatures())
	}
	sb, err := encodeSchema(schema)
	if err != nil {
		return err
	}
	mb, err := encodeModel(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := writeFile(filepath.Join(dir, ModelFile), mb); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, SchemaFile), sb)
}

// SaveSchema writes the schema as JSON.
func SaveSchema(path string, schema pipeline.FeatureSchema) error {
	b, err := encodeSchema(schema)
	if err != nil {
		return err
	}
	return writeFile(path, b)
}

// SaveModel writes the model's binary form behind a format header.
func SaveModel(path string, m Model) error {
	b, err := encodeModel(m)
	if err != nil {
		return err
	}
	return writeFile(path, b)
}

func encodeSchema(schema pipeline.FeatureSchema) ([]byte, error) {
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return append(b, '\n'), nil
}

func encodeModel(m Model) ([]byte, error) {
	b, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return append([]byte(modelHeader), b...), nil
}

// LoadSchema reads and validates a schema file.
func LoadSchema(path string) (pipeline.FeatureSchema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return pipeline.FeatureSchema{}, fmt.Errorf("%w: %w", ErrArtifactMissing, err)
	}
	var s pipeline.FeatureSchema
	if err := json.Unmarshal(b, &s); err != nil {
		return pipeline.FeatureSchema{}, fmt.Errorf("%w: %s: %w", ErrArtifactMissing, path, err)
	}
	return s, nil
}

// LoadModel reads a random forest written by SaveModel.
func LoadModel(path string) (*model.RandomForest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactMissing, err)
	}
	body, ok := bytes.CutPrefix(b, []byte(modelHeader))
	if !ok {
		return nil, fmt.Errorf("%w: %s: unrecognized model format", ErrArtifactMissing, path)
	}
	rf := &model.RandomForest{}
	if err := rf.UnmarshalBinary(body); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifactMissing, path, err)
	}
	return rf, nil
}

// Load reads both artifacts from dir and pairs them. Any failure is
// ErrArtifactMissing; inference must not start without both.
func Load(dir string) (*pipeline.Predictor, error) {
	schema, err := LoadSchema(filepath.Join(dir, SchemaFile))
	if err != nil {
		return nil, err
	}
	rf, err := LoadModel(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, err
	}
	p, err := pipeline.NewPredictor(schema, rf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactMissing, err)
	}
	return p, nil
}

// writeFile replaces path atomically.
func writeFile(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
