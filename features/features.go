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

package features

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/ubisoft/ubisoft-laforge-brownbuild/cnf"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/partition"
)

// AuxInfo contains job history counters as known before
// the job was run.
type AuxInfo struct {
	Rerun            int `msgpack:"rerun"`
	Fail             int `msgpack:"fail"`
	Success          int `msgpack:"success"`
	CommitSinceFlaky int `msgpack:"commitSinceFlaky"`
}

// Row is a job record prepared for vectorization
type Row struct {
	Record    jobs.JobRecord `msgpack:"record"`
	WordCount jobs.WordCount `msgpack:"wordCount"`
	Info      AuxInfo        `msgpack:"info"`
}

func (row Row) Label() int {
	if row.Record.IsFlaky() {
		return 1
	}
	return 0
}

// PreparedSets are partitions ready for vectorization
type PreparedSets struct {
	Train []Row `msgpack:"train"`
	Valid []Row `msgpack:"valid"`
	Test  []Row `msgpack:"test"`
}

// MergeWordCounts combines term counts of the selected n-gram resolutions.
// Counts of a term found in more resolutions are summed.
func MergeWordCounts(rec jobs.JobRecord, ngrams []int) jobs.WordCount {
	if len(ngrams) == 1 {
		return rec.WordCount(ngrams[0]).Clone()
	}
	ans := make(jobs.WordCount)
	for _, n := range ngrams {
		for term, cnt := range rec.WordCount(n) {
			ans[term] += cnt
		}
	}
	return ans
}

// ------------------------

// commitsSinceFlaky calculates for each commit the number of preceding
// commits since the last one with a flaky job. Commits are ordered by
// their earliest job date.
func commitsSinceFlaky(records []jobs.JobRecord) map[string]int {
	groups := jobs.GroupByCommit(records)
	slices.SortStableFunc(groups, func(g1, g2 jobs.CommitGroup) int {
		if c := g1.EarliestDate().Compare(g2.EarliestDate()); c != 0 {
			return c
		}
		return strings.Compare(g1.CommitID, g2.CommitID)
	})
	ans := make(map[string]int, len(groups))
	var count int
	for _, g := range groups {
		ans[g.CommitID] = count
		count++
		if g.HasFlaky() {
			count = 0
		}
	}
	return ans
}

// counterAccumulator tracks runs of a single (commit, job) pair
// during a replay of job history.
type counterAccumulator struct {
	key     jobs.GroupKey
	started bool
	curr    AuxInfo
}

// observe returns counters valid before rec was run and then
// updates them by rec's outcome
func (acc *counterAccumulator) observe(rec jobs.JobRecord, sinceFlaky int) AuxInfo {
	if !acc.started || acc.key != rec.GroupKey() {
		acc.key = rec.GroupKey()
		acc.started = true
		acc.curr = AuxInfo{}
	}
	acc.curr.CommitSinceFlaky = sinceFlaky
	ans := acc.curr
	acc.curr.Rerun++
	if rec.Failed() {
		acc.curr.Fail++

	} else {
		acc.curr.Success++
	}
	return ans
}

// AuxiliaryInfo replays records ordered by commit, job name and date
// and returns history counters for each record (in the input
// order of records).
func AuxiliaryInfo(records []jobs.JobRecord) []AuxInfo {
	sinceFlaky := commitsSinceFlaky(records)
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(i, j int) int {
		r1, r2 := records[i], records[j]
		return cmp.Or(
			strings.Compare(r1.CommitID, r2.CommitID),
			strings.Compare(r1.JobName, r2.JobName),
			r1.Date.Compare(r2.Date),
		)
	})
	ans := make([]AuxInfo, len(records))
	var acc counterAccumulator
	for _, i := range order {
		ans[i] = acc.observe(records[i], sinceFlaky[records[i].CommitID])
	}
	return ans
}

// BuildRows merges word counts and attaches history counters
// to each record of a partition.
func BuildRows(records []jobs.JobRecord, ngrams []int) []Row {
	info := AuxiliaryInfo(records)
	ans := make([]Row, len(records))
	for i, rec := range records {
		ans[i] = Row{
			Record:    rec,
			WordCount: MergeWordCounts(rec, ngrams),
			Info:      info[i],
		}
	}
	return ans
}

// ------------------------

func failuresOnly(rows []Row) []Row {
	ans := make([]Row, 0, len(rows))
	for _, row := range rows {
		if row.Record.Failed() {
			ans = append(ans, row)
		}
	}
	return ans
}

// MaskFailures removes passing jobs from the partitions selected
// by the mask mode.
func MaskFailures(sets PreparedSets, mode cnf.FailMask) PreparedSets {
	switch mode {
	case cnf.FailMaskTrain:
		sets.Train = failuresOnly(sets.Train)
		sets.Test = failuresOnly(sets.Test)
	case cnf.FailMaskAll:
		sets.Train = failuresOnly(sets.Train)
		sets.Valid = failuresOnly(sets.Valid)
		sets.Test = failuresOnly(sets.Test)
	}
	return sets
}

type cellKey struct {
	status jobs.Status
	label  jobs.FlakyLabel
}

// Oversample balances rows by (status, flaky label) cells. Each cell
// is shuffled and then cyclically repeated up to the size of the
// largest cell. Empty cells stay empty. The result is shuffled.
func Oversample(rows []Row, rnd *rand.Rand) []Row {
	cells := make(map[cellKey][]Row)
	var keys []cellKey
	for _, row := range rows {
		k := cellKey{status: row.Record.Status, label: row.Record.Flaky}
		if _, ok := cells[k]; !ok {
			keys = append(keys, k)
		}
		cells[k] = append(cells[k], row)
	}
	// map iteration must not affect the random sequence
	slices.SortFunc(keys, func(k1, k2 cellKey) int {
		return cmp.Or(cmp.Compare(k1.status, k2.status), strings.Compare(string(k1.label), string(k2.label)))
	})
	var maxLen int
	for _, k := range keys {
		maxLen = max(maxLen, len(cells[k]))
	}
	ans := make([]Row, 0, maxLen*len(keys))
	for _, k := range keys {
		cell := cells[k]
		rnd.Shuffle(len(cell), func(i, j int) {
			cell[i], cell[j] = cell[j], cell[i]
		})
		for i := 0; i < maxLen; i++ {
			ans = append(ans, cell[i%len(cell)])
		}
	}
	rnd.Shuffle(len(ans), func(i, j int) {
		ans[i], ans[j] = ans[j], ans[i]
	})
	return ans
}

// Prepare turns partitioned records into rows with merged word counts
// and history counters, applies failure masking and (for the training
// partition) oversampling.
func Prepare(sets partition.Sets, exp cnf.Experiment, rnd *rand.Rand) PreparedSets {
	ngrams := exp.NGram()
	ans := PreparedSets{
		Train: BuildRows(sets.Train, ngrams),
		Valid: BuildRows(sets.Valid, ngrams),
		Test:  BuildRows(sets.Test, ngrams),
	}
	ans = MaskFailures(ans, exp.FailMask())
	if exp.Oversampling() {
		ans.Train = Oversample(ans.Train, rnd)
	}
	return ans
}
