package dataprep

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"loanml/pkg/stats"
)

// ImputeStrategy selects how missing cells of the historical dataset are filled.
type ImputeStrategy string

const (
	// ImputeForwardFill carries the last seen value down each column. Cells
	// before the first value stay missing and encode as 0.
	ImputeForwardFill ImputeStrategy = "ffill"
	// ImputeColumnStats fills numeric columns with the column mean and
	// categorical columns with the most frequent level.
	ImputeColumnStats ImputeStrategy = "stats"
)

// ParseImputeStrategy validates a strategy name; empty selects forward fill.
func ParseImputeStrategy(s string) (ImputeStrategy, error) {
	switch ImputeStrategy(s) {
	case "", ImputeForwardFill:
		return ImputeForwardFill, nil
	case ImputeColumnStats:
		return ImputeColumnStats, nil
	}
	return "", fmt.Errorf("unknown impute strategy %q", s)
}

// ForwardFill replaces each missing cell with the most recently seen
// non-missing value in row order. Leading missing cells are left as "".
func ForwardFill(col []string) []string {
	out := make([]string, len(col))
	last := ""
	for i, v := range col {
		if IsMissing(v) {
			out[i] = last
			continue
		}
		out[i] = v
		last = v
	}
	return out
}

// ImputeMean replaces missing cells with the mean of the parseable ones.
func ImputeMean(col []string) []string {
	var nums []float64
	for _, v := range col {
		if IsMissing(v) {
			continue
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return ImputeConstant(col, "")
	}
	return ImputeConstant(col, strconv.FormatFloat(stats.Mean(nums), 'f', -1, 64))
}

// ImputeMode replaces missing cells with the most frequent value. Ties go
// to the value seen first.
func ImputeMode(col []string) []string {
	counts := map[string]int{}
	var order []string
	for _, v := range col {
		if IsMissing(v) {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	mode, best := "", 0
	for _, v := range order {
		if counts[v] > best {
			mode, best = v, counts[v]
		}
	}
	return ImputeConstant(col, mode)
}

// ImputeConstant replaces missing cells with a fixed value.
func ImputeConstant(col []string, constant string) []string {
	out := slices.Clone(col)
	for i, v := range out {
		if IsMissing(v) {
			out[i] = constant
		}
	}
	return out
}

// Impute fills one column of the named field with the chosen strategy.
func Impute(field string, col []string, strategy ImputeStrategy) []string {
	if strategy != ImputeColumnStats {
		return ForwardFill(col)
	}
	if f, ok := Lookup(field); ok && f.Kind == Numeric && f.Allowed == nil {
		return ImputeMean(col)
	}
	return ImputeMode(col)
}

// DiscoverLevels returns the distinct non-missing values of a column, sorted.
func DiscoverLevels(col []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, v := range col {
		if IsMissing(v) {
			continue
		}
		v = strings.TrimSpace(v)
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}
