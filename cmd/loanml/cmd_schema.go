package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"loanml/internal/journal"
	"loanml/pkg/artifact"
	"loanml/pkg/dataprep"
)

var (
	schemaJSON   bool
	historyLimit int
)

// schemaCmd prints the trained feature columns
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the feature columns the model was trained on",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := artifact.LoadSchema(filepath.Join(cfg.Artifacts.Dir, artifact.SchemaFile))
		if err != nil {
			return err
		}
		if schemaJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(schema)
		}
		var b strings.Builder
		for i, col := range schema.Columns() {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%3d  %s", i, col)
		}
		fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("Feature columns"))
		fmt.Fprintln(cmd.OutOrStdout(), boxStyle.Render(b.String()))
		return nil
	},
}

// historyCmd lists recent journaled predictions
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent predictions from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		recs, err := store.Recent(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no predictions recorded")
			return nil
		}
		for _, r := range recs {
			line := fmt.Sprintf("%s  %s  %s  %s  %s=%s",
				r.CreatedAt.Local().Format(time.DateTime),
				r.ID,
				decision(r.Approved),
				pct(r.Probability),
				dataprep.PropertyArea, r.Input[dataprep.PropertyArea])
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "print the schema file contents")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of predictions to show")
}

func decision(approved bool) string {
	if approved {
		return okStyle.Render("approved")
	}
	return errorStyle.Render("rejected")
}
