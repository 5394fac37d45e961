package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"loanml/pkg/data"
	"loanml/pkg/dataprep"
	"loanml/pkg/loader"
	"loanml/pkg/model"
	"loanml/pkg/stats"
)

// BuildConfig controls one training run.
type BuildConfig struct {
	Impute    dataprep.ImputeStrategy
	TestRatio float64
	Seed      int64
	// NewModel returns the estimator to fit. Defaults to a random forest
	// seeded with Seed.
	NewModel func() model.Estimator
}

// DefaultBuildConfig returns a 20% hold-out split seeded with 42.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{Impute: dataprep.ImputeForwardFill, TestRatio: 0.2, Seed: 42}
}

// TrainingReport describes a finished build. Evaluation numbers are
// informational only.
type TrainingReport struct {
	Rows       int                      `json:"rows"`
	TrainRows  int                      `json:"train_rows"`
	TestRows   int                      `json:"test_rows"`
	Columns    []string                 `json:"columns"`
	Ignored    []string                 `json:"ignored"`
	Levels     map[string][]string      `json:"levels"`
	Evaluation *model.Report            `json:"evaluation,omitempty"`
	Summaries  map[string]stats.Summary `json:"summaries"`
	Duration   time.Duration            `json:"duration"`
}

// BuildResult is the output of the Schema Builder.
type BuildResult struct {
	Schema FeatureSchema
	Model  model.Classifier
	Report TrainingReport
}

// Builder derives the canonical FeatureSchema from a historical dataset and
// fits a classifier against it.
type Builder struct {
	cfg    BuildConfig
	logger *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuilderLogger sets the logger; the default discards everything.
func WithBuilderLogger(l *zap.Logger) BuilderOption { return func(b *Builder) { b.logger = l } }

// NewBuilder returns a Builder for cfg.
func NewBuilder(cfg BuildConfig, opts ...BuilderOption) *Builder {
	if cfg.Impute == "" {
		cfg.Impute = dataprep.ImputeForwardFill
	}
	if cfg.NewModel == nil {
		seed := cfg.Seed
		cfg.NewModel = func() model.Estimator { return model.NewRandomForest(model.WithSeed(seed)) }
	}
	b := &Builder{cfg: cfg, logger: zap.NewNop()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build imputes, encodes and fits. The column order of the returned schema
// is fixed for the lifetime of the returned model.
func (b *Builder) Build(ctx context.Context, frame *data.Frame) (*BuildResult, error) {
	start := time.Now()
	if frame == nil {
		return nil, fmt.Errorf("%w: nil frame", data.ErrMalformedDataset)
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if _, ok := frame.Index(dataprep.LabelColumn); !ok {
		return nil, fmt.Errorf("%w: label column %q absent", data.ErrMalformedDataset, dataprep.LabelColumn)
	}
	if b.cfg.TestRatio < 0 || b.cfg.TestRatio >= 1 {
		return nil, fmt.Errorf("test ratio %v outside [0,1)", b.cfg.TestRatio)
	}

	work := frame.Clone()
	report := TrainingReport{Rows: len(work.Rows), Levels: map[string][]string{}}

	levels := map[string][]string{}
	for _, name := range work.Header {
		if name == dataprep.LabelColumn {
			continue
		}
		spec, ok := dataprep.Lookup(name)
		if !ok {
			report.Ignored = append(report.Ignored, name)
			continue
		}
		col, _ := work.Column(name)
		col = dataprep.Impute(name, col, b.cfg.Impute)
		if err := work.SetColumn(name, col); err != nil {
			return nil, err
		}
		if spec.Kind == dataprep.OneHot {
			found := dataprep.DiscoverLevels(col)
			levels[name] = found
			report.Levels[name] = found
			for _, lv := range found {
				if !slices.Contains(spec.Levels, lv) {
					b.logger.Warn("level outside vocabulary kept as column",
						zap.String("field", name), zap.String("level", lv))
				}
			}
		}
	}
	if len(report.Ignored) > 0 {
		b.logger.Info("ignoring columns outside vocabulary", zap.Strings("columns", report.Ignored))
	}

	enc := dataprep.NewDiscoveredEncoder(levels)
	schema, err := NewFeatureSchema(enc.Columns(work.Header))
	if err != nil {
		return nil, fmt.Errorf("%w: no feature columns: %w", data.ErrMalformedDataset, err)
	}
	report.Columns = schema.Columns()

	X, y, err := encodeFrame(ctx, work, enc, schema)
	if err != nil {
		return nil, err
	}
	report.Summaries = make(map[string]stats.Summary, schema.Len())
	for j, col := range schema.columns {
		report.Summaries[col] = stats.Summarize(stats.Column(X, j))
	}

	XTrain, XTest, yTrain, yTest := loader.TrainTestSplit(X, y, b.cfg.TestRatio, b.cfg.Seed)
	report.TrainRows, report.TestRows = len(XTrain), len(XTest)

	est := b.cfg.NewModel()
	b.logger.Info("fitting classifier",
		zap.Int("train_rows", len(XTrain)), zap.Int("features", schema.Len()))
	if err := est.Fit(XTrain, yTrain); err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(XTest) > 0 {
		pred, err := model.ClassifyAll(est, XTest)
		if err != nil {
			return nil, fmt.Errorf("evaluate classifier: %w", err)
		}
		ev := model.Evaluate(yTest, pred)
		report.Evaluation = &ev
		b.logger.Info("held-out evaluation",
			zap.Int("test_rows", ev.Samples),
			zap.Float64("accuracy", ev.Accuracy),
			zap.Float64("precision", ev.Precision),
			zap.Float64("recall", ev.Recall),
			zap.Float64("f1", ev.F1))
	}

	report.Duration = time.Since(start)
	return &BuildResult{Schema: schema, Model: est, Report: report}, nil
}

// encodeFrame streams the imputed rows through the discovered encoder and
// projects each onto schema, the same projection used at inference time.
func encodeFrame(ctx context.Context, frame *data.Frame, enc *dataprep.Encoder, schema FeatureSchema) ([][]float64, []int, error) {
	samples, errc := frame.Stream(func(row int, rec map[string]string) (data.Sample, error) {
		label, err := dataprep.EncodeLabel(rec[dataprep.LabelColumn])
		if err != nil {
			return data.Sample{}, fmt.Errorf("%w: row %d: %w", data.ErrMalformedDataset, row+1, err)
		}
		f, err := enc.Encode(rec)
		if err != nil {
			return data.Sample{}, fmt.Errorf("%w: row %d: %w", data.ErrMalformedDataset, row+1, err)
		}
		p, err := Project(f, schema)
		if err != nil {
			return data.Sample{}, err
		}
		return data.Sample{Row: row, X: p.Vector.values, Y: label}, nil
	}, ctx.Done())

	X := make([][]float64, 0, len(frame.Rows))
	y := make([]int, 0, len(frame.Rows))
	for s := range samples {
		X = append(X, s.X)
		y = append(y, s.Y)
	}
	if err := <-errc; err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(X) != len(frame.Rows) {
		return nil, nil, errors.New("encoding stopped early")
	}
	return X, y, nil
}
