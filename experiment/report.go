// Copyright 2025 The BrownBuild Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package experiment

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/czcorpus/cnc-gokit/collections"
	"github.com/fatih/color"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/classify"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/cnf"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/metrics"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/stats"
)

const (
	modelRowName = "GBT"
	rowFormat    = "%-12s | %-12s %-12s %-12s %-12s |\n"
	rowSepLength = 68
)

// Report is an outcome of an experiment run
type Report struct {
	Mode      string
	FlakyRate float64
	Baselines []metrics.Baseline

	// ModelKey is a key of the configured (beta, alpha)
	// parameterization in Results
	ModelKey string

	// Results contains all the evaluated parameterizations.
	// It is empty for baseline-only reports.
	Results classify.PredictionBundle

	Elapsed time.Duration
}

// Model returns metrics of the configured parameterization
func (rep Report) Model() (metrics.Result, bool) {
	out, ok := rep.Results[rep.ModelKey]
	return out.Result, ok
}

func percent(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/10, 'f', 1, 64)
}

func writeResultRow(w io.Writer, name string, res metrics.Result, c *color.Color) {
	args := []any{name, percent(res.F1), percent(res.Precision), percent(res.Recall), percent(res.Specificity)}
	if c != nil {
		c.Fprintf(w, rowFormat, args...)

	} else {
		fmt.Fprintf(w, rowFormat, args...)
	}
}

// WriteReport writes a table with baselines and (if available)
// the model's F1-score, precision, recall and specificity
// in percents.
func WriteReport(w io.Writer, rep Report) {
	color.New(color.Bold).Fprintf(w, rowFormat, "Run", "F1-Score", "Precision", "Recall", "Specificity")
	fmt.Fprintln(w, strings.Repeat("-", rowSepLength))
	for _, b := range rep.Baselines {
		writeResultRow(w, strings.ToUpper(b.Name), b.Result, nil)
	}
	if res, ok := rep.Model(); ok {
		writeResultRow(w, modelRowName, res, color.New(color.FgHiGreen))
	}
	fmt.Fprintf(w, "===== TOTAL TIME: %.2f sec =====\n", rep.Elapsed.Seconds())
}

// StoreReport saves all the evaluated parameterizations of a report
// to the stats database and returns the new run ID.
func StoreReport(db *stats.Database, exp cnf.Experiment, rep Report) (string, error) {
	runID, err := db.CreateRun(stats.RunRecord{
		Mode:        rep.Mode,
		SettingName: exp.SettingName(),
		DataPath:    exp.DataPath(),
		Seed:        exp.Seed(),
		Alpha:       exp.Alpha(),
		Beta:        exp.Beta(),
		TotalTime:   rep.Elapsed.Seconds(),
	})
	if err != nil {
		return "", err
	}
	entries := collections.MapToEntriesSorted(
		rep.Results,
		func(a, b collections.MapEntry[string, classify.Outcome]) int {
			return strings.Compare(a.K, b.K)
		},
	)
	recs := make([]stats.MetricsRecord, len(entries))
	for i, entry := range entries {
		recs[i] = stats.MetricsRecord{
			RunID:       runID,
			ParamKey:    entry.K,
			Beta:        entry.V.Beta,
			Alpha:       entry.V.Alpha,
			Accuracy:    entry.V.Result.Accuracy,
			Precision:   entry.V.Result.Precision,
			Recall:      entry.V.Result.Recall,
			F1:          entry.V.Result.F1,
			Specificity: entry.V.Result.Specificity,
		}
	}
	if err := db.StoreMetrics(runID, recs); err != nil {
		return runID, err
	}
	return runID, nil
}
