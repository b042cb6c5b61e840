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

package partition

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
)

const (
	// NumFolds is the number of folds in the double 10-fold scheme.
	NumFolds = 10

	// NumTurns specifies how many times each fold is evaluated
	// (with valid and test halves swapped).
	NumTurns = 2

	sliceRatio = 0.05
)

var ErrInvalidFold = errors.New("invalid fold or turn")

// Sets is a commit-disjoint split of job records.
type Sets struct {
	Train []jobs.JobRecord `msgpack:"train"`
	Valid []jobs.JobRecord `msgpack:"valid"`
	Test  []jobs.JobRecord `msgpack:"test"`
}

// Size returns the total number of records in all the partitions
func (s Sets) Size() int {
	return len(s.Train) + len(s.Valid) + len(s.Test)
}

// sliceLimit is a number of commit groups forming a 5% slice of a bucket.
// Halves are rounded to even so e.g. 50 groups produce a limit of 2.
func sliceLimit(numGroups int) int {
	return int(math.RoundToEven(float64(numGroups) * sliceRatio))
}

func shuffleGroups(groups []jobs.CommitGroup, rnd *rand.Rand) []jobs.CommitGroup {
	ans := make([]jobs.CommitGroup, len(groups))
	copy(ans, groups)
	rnd.Shuffle(len(ans), func(i, j int) {
		ans[i], ans[j] = ans[j], ans[i]
	})
	return ans
}

func shuffleRecords(records []jobs.JobRecord, rnd *rand.Rand) {
	rnd.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})
}

func clampedSlice(groups []jobs.CommitGroup, from, to int) []jobs.CommitGroup {
	from = min(from, len(groups))
	to = min(to, len(groups))
	return groups[from:to]
}

func randomSetsByType(groups []jobs.CommitGroup, rnd *rand.Rand) Sets {
	shuffled := shuffleGroups(groups, rnd)
	lim := sliceLimit(len(shuffled))
	return Sets{
		Test:  jobs.Flatten(clampedSlice(shuffled, 0, lim)),
		Valid: jobs.Flatten(clampedSlice(shuffled, lim, 2*lim)),
		Train: jobs.Flatten(clampedSlice(shuffled, 2*lim, len(shuffled))),
	}
}

func concatShuffled(a, b []jobs.JobRecord, rnd *rand.Rand) []jobs.JobRecord {
	ans := make([]jobs.JobRecord, 0, len(a)+len(b))
	ans = append(ans, a...)
	ans = append(ans, b...)
	shuffleRecords(ans, rnd)
	return ans
}

// RandomSets splits records into train (~90%), validation (~5%)
// and test (~5%) partitions. All the records of a commit end up
// in the same partition. Commits with and without a flaky job are
// split separately so both partitions keep their global ratio.
func RandomSets(records []jobs.JobRecord, rnd *rand.Rand) Sets {
	flaky, safe := jobs.SplitByFlakiness(jobs.GroupByCommit(records))
	fs := randomSetsByType(flaky, rnd)
	ss := randomSetsByType(safe, rnd)
	return Sets{
		Train: concatShuffled(fs.Train, ss.Train, rnd),
		Valid: concatShuffled(fs.Valid, ss.Valid, rnd),
		Test:  concatShuffled(fs.Test, ss.Test, rnd),
	}
}

// ------------------------

// Folds contains 10 folds, each made of two halves. Each half
// is ~5% of commit groups.
type Folds [NumFolds][NumTurns][]jobs.JobRecord

func tenFoldHalvesByType(groups []jobs.CommitGroup, rnd *rand.Rand) Folds {
	shuffled := shuffleGroups(groups, rnd)
	lim := sliceLimit(len(shuffled))
	var ans Folds
	for i := 0; i < NumFolds; i++ {
		for h := 0; h < NumTurns; h++ {
			ans[i][h] = jobs.Flatten(
				clampedSlice(shuffled, lim*(2*i+h), lim*(2*i+h+1)))
		}
	}
	return ans
}

// TenFoldHalves prepares halves for the double 10-fold cross validation.
// Stratification by flaky commits is the same as in RandomSets.
// Commit groups beyond the 20 rounded slices are not used.
func TenFoldHalves(records []jobs.JobRecord, rnd *rand.Rand) Folds {
	flaky, safe := jobs.SplitByFlakiness(jobs.GroupByCommit(records))
	fh := tenFoldHalvesByType(flaky, rnd)
	sh := tenFoldHalvesByType(safe, rnd)
	var ans Folds
	for i := 0; i < NumFolds; i++ {
		for h := 0; h < NumTurns; h++ {
			ans[i][h] = concatShuffled(fh[i][h], sh[i][h], rnd)
		}
	}
	return ans
}

func copyRecords(records []jobs.JobRecord) []jobs.JobRecord {
	ans := make([]jobs.JobRecord, len(records))
	copy(ans, records)
	return ans
}

// Assemble creates sets for a specific fold and turn. Validation set
// is the half `turn` of the fold, test set is the other half and all
// the other folds form the training set.
func (f *Folds) Assemble(fold, turn int) (Sets, error) {
	if fold < 0 || fold >= NumFolds || turn < 0 || turn >= NumTurns {
		return Sets{}, fmt.Errorf("failed to assemble fold %d, turn %d: %w", fold, turn, ErrInvalidFold)
	}
	var train []jobs.JobRecord
	for i := 0; i < NumFolds; i++ {
		if i == fold {
			continue
		}
		for h := 0; h < NumTurns; h++ {
			train = append(train, f[i][h]...)
		}
	}
	return Sets{
		Train: train,
		Valid: copyRecords(f[fold][turn]),
		Test:  copyRecords(f[fold][1-turn]),
	}, nil
}
