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
	"errors"
	"fmt"
	"io"

	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/metrics"
)

// DataSummary describes a loaded dataset
type DataSummary struct {
	NumRecords      int
	NumFailed       int
	NumFlaky        int
	NumCommits      int
	NumFlakyCommits int
	NumGroups       int
	NumFlakyGroups  int

	// FlakyRate is a ratio of flaky jobs among the failing ones.
	// It is zero if there are no failures.
	FlakyRate float64
}

// Summarize counts records, failures and flaky labels of a dataset.
// A dataset without failures is valid here (with zero FlakyRate).
func Summarize(records []jobs.JobRecord) (DataSummary, error) {
	ans := DataSummary{NumRecords: len(records)}
	groups := make(map[jobs.GroupKey]bool)
	for _, rec := range records {
		if rec.Failed() {
			ans.NumFailed++
		}
		if rec.IsFlaky() {
			ans.NumFlaky++
		}
		groups[rec.GroupKey()] = rec.IsFlaky()
	}
	ans.NumGroups = len(groups)
	for _, flaky := range groups {
		if flaky {
			ans.NumFlakyGroups++
		}
	}
	commits := jobs.GroupByCommit(records)
	ans.NumCommits = len(commits)
	for _, cg := range commits {
		if cg.HasFlaky() {
			ans.NumFlakyCommits++
		}
	}
	rate, err := metrics.FlakyRate(records)
	if err != nil && !errors.Is(err, metrics.ErrNoFailures) {
		return ans, fmt.Errorf("failed to summarize data: %w", err)
	}
	ans.FlakyRate = rate
	return ans, nil
}

func WriteSummary(w io.Writer, sum DataSummary) {
	fmt.Fprintf(w, "records:         %d\n", sum.NumRecords)
	fmt.Fprintf(w, "failed records:  %d\n", sum.NumFailed)
	fmt.Fprintf(w, "flaky records:   %d\n", sum.NumFlaky)
	fmt.Fprintf(w, "commits:         %d (with flaky jobs: %d)\n", sum.NumCommits, sum.NumFlakyCommits)
	fmt.Fprintf(w, "commit/job keys: %d (flaky: %d)\n", sum.NumGroups, sum.NumFlakyGroups)
	fmt.Fprintf(w, "flaky rate:      %s%%\n", percent(sum.FlakyRate))
}
