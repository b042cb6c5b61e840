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

package jobs

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var ErrGroupNotFound = errors.New("job group not found")

// FlakyState labels a group of job runs based on the mean
// of their statuses. Unsteady results mean a flaky job.
func FlakyState(meanStatus float64) FlakyLabel {
	if meanStatus > 0 && meanStatus < 1 {
		return LabelFlaky
	}
	return LabelSafe
}

type statusAcc struct {
	sum int
	num int
}

func (acc statusAcc) mean() float64 {
	return float64(acc.sum) / float64(acc.num)
}

// GroupStates calculates a flakiness label for each (commit, job name) group
func GroupStates(records []JobRecord) map[GroupKey]FlakyLabel {
	accs := make(map[GroupKey]statusAcc)
	for _, rec := range records {
		acc := accs[rec.GroupKey()]
		acc.sum += int(rec.Status)
		acc.num++
		accs[rec.GroupKey()] = acc
	}
	ans := make(map[GroupKey]FlakyLabel, len(accs))
	for k, acc := range accs {
		ans[k] = FlakyState(acc.mean())
	}
	return ans
}

// ApplyLabels returns copies of records with their group's label set.
// A record without a matching group means the groups were calculated
// from different data, and such a labeling cannot be trusted.
func ApplyLabels(records []JobRecord, states map[GroupKey]FlakyLabel) ([]JobRecord, error) {
	ans := make([]JobRecord, len(records))
	for i, rec := range records {
		label, ok := states[rec.GroupKey()]
		if !ok {
			return nil, fmt.Errorf("failed to label record %s: %w", rec.GroupKey(), ErrGroupNotFound)
		}
		rec.Flaky = label
		ans[i] = rec
	}
	return ans, nil
}

// LabelFlakiness groups records by (commit, job name) and labels
// each record by its group's state.
func LabelFlakiness(records []JobRecord) ([]JobRecord, error) {
	return ApplyLabels(records, GroupStates(records))
}

// ------------------------

// CommitGroup is a set of records sharing a commit ID. It is the atomic
// unit of data partitioning.
type CommitGroup struct {
	CommitID string
	Records  []JobRecord
}

func (cg CommitGroup) HasFlaky() bool {
	return slices.ContainsFunc(cg.Records, func(rec JobRecord) bool {
		return rec.IsFlaky()
	})
}

func (cg CommitGroup) EarliestDate() time.Time {
	var ans time.Time
	for i, rec := range cg.Records {
		if i == 0 || rec.Date.Before(ans) {
			ans = rec.Date
		}
	}
	return ans
}

// GroupByCommit splits records into commit groups. Groups are sorted
// by commit ID and records within a group keep their original order.
func GroupByCommit(records []JobRecord) []CommitGroup {
	idx := make(map[string]int)
	ans := make([]CommitGroup, 0, len(records)/4+1)
	for _, rec := range records {
		i, ok := idx[rec.CommitID]
		if !ok {
			i = len(ans)
			idx[rec.CommitID] = i
			ans = append(ans, CommitGroup{CommitID: rec.CommitID})
		}
		ans[i].Records = append(ans[i].Records, rec)
	}
	slices.SortFunc(ans, func(g1, g2 CommitGroup) int {
		return strings.Compare(g1.CommitID, g2.CommitID)
	})
	return ans
}

// SplitByFlakiness separates commit groups containing at least one flaky
// job from the groups with only safe jobs.
func SplitByFlakiness(groups []CommitGroup) (flaky, safe []CommitGroup) {
	for _, g := range groups {
		if g.HasFlaky() {
			flaky = append(flaky, g)

		} else {
			safe = append(safe, g)
		}
	}
	return
}

// Flatten collects records of all the groups in order.
func Flatten(groups []CommitGroup) []JobRecord {
	var size int
	for _, g := range groups {
		size += len(g.Records)
	}
	ans := make([]JobRecord, 0, size)
	for _, g := range groups {
		ans = append(ans, g.Records...)
	}
	return ans
}
