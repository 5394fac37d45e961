package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"loanml/pkg/artifact"
	"loanml/pkg/dataprep"
	"loanml/pkg/pipeline"
)

var (
	predictInput  string
	predictFields map[string]string
	predictJSON   bool
)

// predictCmd classifies one application from the command line
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Classify one loan application against the trained artifacts",
	Long: `Loads the artifacts written by train, reconciles one application against
the trained feature columns and prints the decision.

Fields come from a JSON file, from --field flags, or both; flags win.

Examples:
  loanml predict --input application.json
  loanml predict -f Gender=Male -f Married=Yes -f ApplicantIncome=4000 \
    -f CoapplicantIncome=1000 -f LoanAmount=100 -f Credit_History=1.0 \
    -f Property_Area=Urban`,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVarP(&predictInput, "input", "i", "", "JSON file holding one application")
	predictCmd.Flags().StringToStringVarP(&predictFields, "field", "f", nil, "field=value, repeatable")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "print the prediction as JSON")
}

func runPredict(cmd *cobra.Command, args []string) error {
	rec := dataprep.RawRecord{}
	if predictInput != "" {
		f, err := os.Open(predictInput)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		rec, err = dataprep.DecodeRecord(f)
		f.Close()
		if err != nil {
			return err
		}
	}
	for k, v := range predictFields {
		rec[k] = v
	}
	if len(rec) == 0 {
		return errors.New("no application given: use --input or --field")
	}

	p, err := artifact.Load(cfg.Artifacts.Dir)
	if err != nil {
		return err
	}
	out, err := p.Predict(cmd.Context(), rec)
	if err != nil {
		return err
	}
	logger.Debug("prediction",
		zap.String("id", out.ID),
		zap.Int("label", out.Label),
		zap.Strings("filled", out.Filled))

	if predictJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderPrediction(out))
	return nil
}

func renderPrediction(out pipeline.PredictionRecord) string {
	keys := make([]string, 0, len(out.Input))
	for k := range out.Input {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	pairs := make([][2]string, 0, len(keys)+5)
	pairs = append(pairs, [2]string{"id", out.ID}, [2]string{"probability", pct(out.Probability)})
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, out.Input[k]})
	}
	for _, name := range dataprep.DerivedColumns() {
		if v, ok := out.Features[name]; ok {
			pairs = append(pairs, [2]string{name, dataprep.FormatValue(v)})
		}
	}
	if len(out.Filled) > 0 {
		pairs = append(pairs, [2]string{"zero-filled", strings.Join(out.Filled, ", ")})
	}
	return decisionLine(out.Approved, out.Message()) + "\n" + boxStyle.Render(kv(pairs...))
}
