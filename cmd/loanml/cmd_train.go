package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"loanml/internal/telemetry"
	"loanml/pkg/artifact"
	"loanml/pkg/data"
	"loanml/pkg/dataprep"
	"loanml/pkg/model"
	"loanml/pkg/pipeline"
)

var (
	trainOut  string
	trainJSON bool
)

// trainCmd runs the Schema Builder and writes both artifacts
var trainCmd = &cobra.Command{
	Use:   "train [dataset.csv]",
	Short: "Build the feature schema from a dataset and fit the model",
	Long: `Reads a historical loan dataset, imputes missing values, encodes every
row with the shared encoding rules and fits a random forest.

The ordered feature columns and the model are written together to the
artifact directory. A failed run leaves any previous artifacts in place.

Example:
  loanml train data/loan_data.csv --out artifacts`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVarP(&trainOut, "out", "o", "", "artifact directory (overrides artifacts.dir)")
	trainCmd.Flags().BoolVar(&trainJSON, "json", false, "print the training report as JSON")
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dataset := cfg.Training.Dataset
	if len(args) == 1 {
		dataset = args[0]
	}
	if dataset == "" {
		return errors.New("no dataset given: pass a path or set training.dataset")
	}
	outDir := cfg.Artifacts.Dir
	if trainOut != "" {
		outDir = trainOut
	}
	strategy, err := dataprep.ParseImputeStrategy(cfg.Training.Impute)
	if err != nil {
		return err
	}

	metrics, shutdown, err := telemetry.Setup(ctx, telemetryConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	frame, err := data.LoadCSV(dataset)
	if err != nil {
		return err
	}
	logger.Info("dataset loaded",
		zap.String("path", dataset),
		zap.Int("rows", len(frame.Rows)),
		zap.Strings("header", frame.Header))

	tc := cfg.Training
	builder := pipeline.NewBuilder(pipeline.BuildConfig{
		Impute:    strategy,
		TestRatio: tc.TestRatio,
		Seed:      tc.Seed,
		NewModel: func() model.Estimator {
			return model.NewRandomForest(
				model.WithNEstimators(tc.Trees),
				model.WithForestMaxDepth(tc.MaxDepth),
				model.WithForestMaxFeatures(tc.MaxFeatures),
				model.WithForestMinSamplesLeaf(tc.MinSamplesLeaf),
				model.WithForestMinImpurityDecrease(tc.MinImpurityDecrease),
				model.WithForestCriterion(tc.Criterion),
				model.WithBootstrap(tc.Bootstrap),
				model.WithSeed(tc.Seed),
			)
		},
	}, pipeline.WithBuilderLogger(logger.Named("builder")))

	res, err := builder.Build(ctx, frame)
	if err != nil {
		return err
	}
	m, ok := res.Model.(artifact.Model)
	if !ok {
		return fmt.Errorf("model %T cannot be serialized", res.Model)
	}
	if err := artifact.Save(outDir, res.Schema, m); err != nil {
		return err
	}
	metrics.RecordTraining(ctx, res.Report.Rows, res.Report.Duration)
	logger.Info("artifacts written",
		zap.String("dir", outDir),
		zap.Int("columns", res.Schema.Len()),
		zap.Duration("duration", res.Report.Duration))

	if trainJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Report)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderReport(outDir, res.Report))
	return nil
}

func renderReport(dir string, r pipeline.TrainingReport) string {
	lines := kv(
		[2]string{"artifacts", dir},
		[2]string{"rows", fmt.Sprintf("%d (train %d, test %d)", r.Rows, r.TrainRows, r.TestRows)},
		[2]string{"columns", fmt.Sprintf("%d", len(r.Columns))},
		[2]string{"ignored", strings.Join(r.Ignored, ", ")},
		[2]string{"duration", r.Duration.String()},
	)
	if ev := r.Evaluation; ev != nil {
		lines += "\n" + kv(
			[2]string{"accuracy", pct(ev.Accuracy)},
			[2]string{"precision", pct(ev.Precision)},
			[2]string{"recall", pct(ev.Recall)},
			[2]string{"f1", pct(ev.F1)},
		)
	}
	return titleStyle.Render("Training complete") + "\n" + boxStyle.Render(lines)
}

func telemetryConfig() telemetry.Config {
	t := cfg.Telemetry
	return telemetry.Config{Enabled: t.Enabled, Endpoint: t.Endpoint, Insecure: t.Insecure, Interval: t.Interval}
}
