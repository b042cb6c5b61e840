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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(commit, job string, status Status) JobRecord {
	return JobRecord{CommitID: commit, JobName: job, Status: status}
}

func TestFlakyState(t *testing.T) {
	assert.Equal(t, LabelSafe, FlakyState(0))
	assert.Equal(t, LabelSafe, FlakyState(1))
	assert.Equal(t, LabelFlaky, FlakyState(0.5))
	assert.Equal(t, LabelFlaky, FlakyState(0.01))
}

func TestLabelFlakinessMixedGroup(t *testing.T) {
	records := []JobRecord{
		rec("c1", "build", StatusPass),
		rec("c1", "build", StatusFail),
		rec("c1", "test", StatusFail),
		rec("c1", "test", StatusFail),
		rec("c2", "build", StatusPass),
		rec("c2", "build", StatusPass),
	}
	labeled, err := LabelFlakiness(records)
	require.NoError(t, err)
	assert.Equal(t, LabelFlaky, labeled[0].Flaky)
	assert.Equal(t, LabelFlaky, labeled[1].Flaky)
	assert.Equal(t, LabelSafe, labeled[2].Flaky)
	assert.Equal(t, LabelSafe, labeled[3].Flaky)
	assert.Equal(t, LabelSafe, labeled[4].Flaky)
	assert.Equal(t, LabelSafe, labeled[5].Flaky)
	// source records stay untouched
	assert.Equal(t, FlakyLabel(""), records[0].Flaky)
}

func TestApplyLabelsMissingGroup(t *testing.T) {
	records := []JobRecord{rec("c1", "build", StatusPass)}
	_, err := ApplyLabels(records, map[GroupKey]FlakyLabel{{CommitID: "c2", JobName: "build"}: LabelSafe})
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestGroupByCommit(t *testing.T) {
	records := []JobRecord{
		rec("b", "build", StatusPass),
		rec("a", "build", StatusFail),
		rec("b", "test", StatusFail),
	}
	groups := GroupByCommit(records)
	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].CommitID)
	assert.Equal(t, "b", groups[1].CommitID)
	assert.Len(t, groups[1].Records, 2)
	assert.Equal(t, "test", groups[1].Records[1].JobName)
	assert.Len(t, Flatten(groups), 3)
}

func TestSplitByFlakiness(t *testing.T) {
	labeled, err := LabelFlakiness([]JobRecord{
		rec("c1", "build", StatusPass),
		rec("c1", "build", StatusFail),
		rec("c1", "test", StatusPass),
		rec("c2", "build", StatusFail),
	})
	require.NoError(t, err)
	flaky, safe := SplitByFlakiness(GroupByCommit(labeled))
	require.Len(t, flaky, 1)
	require.Len(t, safe, 1)
	assert.Equal(t, "c1", flaky[0].CommitID)
	assert.Equal(t, "c2", safe[0].CommitID)
}

func TestEarliestDate(t *testing.T) {
	t0 := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	g := CommitGroup{
		Records: []JobRecord{
			{Date: t0.Add(time.Hour)},
			{Date: t0},
			{Date: t0.Add(2 * time.Hour)},
		},
	}
	assert.Equal(t, t0, g.EarliestDate())
}
