package pipeline

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"loanml/pkg/dataprep"
	"loanml/pkg/model"
)

// Predict hands a reconciled vector to the classifier. Any classifier error
// is returned as is; it is never turned into a default decision.
func Predict(v FeatureVector, c model.Classifier) (int, error) {
	if err := v.schema.Validate(); err != nil {
		return 0, err
	}
	if c == nil {
		return 0, model.ErrNotFitted
	}
	label, err := c.Classify(v.values)
	if err != nil {
		return 0, fmt.Errorf("classify: %w", err)
	}
	if label != 0 && label != 1 {
		return 0, fmt.Errorf("classify: label %d outside {0,1}", label)
	}
	return label, nil
}

// PredictionRecord is the result of one inference call, handed to the
// presentation layer and then discarded.
type PredictionRecord struct {
	ID          string             `json:"id"`
	Label       int                `json:"label"`
	Approved    bool               `json:"approved"`
	Probability float64            `json:"probability"`
	Input       dataprep.RawRecord `json:"input"`
	Features    dataprep.Features  `json:"features"`
	Filled      []string           `json:"filled,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Message is the human-readable decision.
func (r PredictionRecord) Message() string {
	if r.Approved {
		return "Congratulations! You are likely to be approved for a loan."
	}
	return "Sorry! You are unlikely to be approved at this time."
}

// Predictor pairs a schema with the model fitted against it. It is built
// once at startup and shared read-only by every request.
type Predictor struct {
	schema FeatureSchema
	model  model.Classifier
	now    func() time.Time
}

// NewPredictor checks that schema and model agree on the row width.
func NewPredictor(schema FeatureSchema, m model.Classifier) (*Predictor, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, model.ErrNotFitted
	}
	if m.NumFeatures() != schema.Len() {
		return nil, fmt.Errorf("%w: schema has %d columns, model expects %d", ErrSchemaMismatch, schema.Len(), m.NumFeatures())
	}
	return &Predictor{schema: schema, model: m, now: time.Now}, nil
}

// Schema returns the schema in force.
func (p *Predictor) Schema() FeatureSchema { return p.schema }

// Predict reconciles rec against the schema and classifies it.
func (p *Predictor) Predict(ctx context.Context, rec dataprep.RawRecord) (PredictionRecord, error) {
	if err := ctx.Err(); err != nil {
		return PredictionRecord{}, err
	}
	proj, err := ReconcileDetailed(rec, p.schema)
	if err != nil {
		return PredictionRecord{}, err
	}
	label, err := Predict(proj.Vector, p.model)
	if err != nil {
		return PredictionRecord{}, err
	}
	proba, err := p.model.Proba(proj.Vector.values)
	if err != nil {
		return PredictionRecord{}, fmt.Errorf("probability: %w", err)
	}
	return PredictionRecord{
		ID:          uuid.NewString(),
		Label:       label,
		Approved:    label == 1,
		Probability: proba,
		Input:       maps.Clone(rec),
		Features:    proj.Encoded,
		Filled:      proj.Filled,
		CreatedAt:   p.now().UTC(),
	}, nil
}
