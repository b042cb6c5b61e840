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
	"fmt"
	"time"
)

// MaxNGram is the highest n-gram resolution a processed log file
// may provide. Additional sections are ignored.
const MaxNGram = 2

// Status is an outcome of a single job run.
type Status int

const (
	StatusPass Status = 0
	StatusFail Status = 1
)

func (s Status) String() string {
	if s == StatusFail {
		return "fail"
	}
	return "pass"
}

// FlakyLabel is a label derived from all the runs of a job
// on a specific commit.
type FlakyLabel string

const (
	LabelFlaky FlakyLabel = "flaky"
	LabelSafe  FlakyLabel = "safe"
)

// WordCount maps a term to the number of its occurrences
// in a job log.
type WordCount map[string]int

// Clone creates an independent copy of the word count
func (wc WordCount) Clone() WordCount {
	ans := make(WordCount, len(wc))
	for k, v := range wc {
		ans[k] = v
	}
	return ans
}

// GroupKey identifies all the runs of a job on a commit.
type GroupKey struct {
	CommitID string
	JobName  string
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s/%s", k.CommitID, k.JobName)
}

// JobRecord represents a single job run as extracted from its
// processed log file.
type JobRecord struct {
	Date     time.Time `msgpack:"date"`
	JobID    string    `msgpack:"jobId"`
	CommitID string    `msgpack:"commitId"`
	Status   Status    `msgpack:"status"`
	JobName  string    `msgpack:"jobName"`
	Filename string    `msgpack:"filename"`

	// WordCounts contains term counts for each n-gram resolution.
	// Index 0 holds unigrams, index 1 bigrams.
	WordCounts []WordCount `msgpack:"wordCounts"`

	// Flaky is set by LabelFlakiness. Records are not modified
	// after that.
	Flaky FlakyLabel `msgpack:"flaky"`
}

func (rec JobRecord) GroupKey() GroupKey {
	return GroupKey{CommitID: rec.CommitID, JobName: rec.JobName}
}

func (rec JobRecord) IsFlaky() bool {
	return rec.Flaky == LabelFlaky
}

func (rec JobRecord) Failed() bool {
	return rec.Status == StatusFail
}

// WordCount returns term counts for an n-gram resolution (1-based).
// For a missing resolution, nil is returned.
func (rec JobRecord) WordCount(resolution int) WordCount {
	if resolution < 1 || resolution > len(rec.WordCounts) {
		return nil
	}
	return rec.WordCounts[resolution-1]
}
