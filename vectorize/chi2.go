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

package vectorize

import (
	"cmp"
	"math"
	"slices"

	"github.com/czcorpus/cnc-gokit/collections"
	"gonum.org/v1/gonum/stat"
)

// Chi2 calculates chi-squared statistics between each (non-negative)
// feature and a binary class. Observed values are per-class sums
// of feature values, expected values are feature totals distributed
// by class frequencies. Features with a zero expected value in any class
// (i.e. all-zero columns or a single-class y) get NaN.
func Chi2(x Matrix, y []int) []float64 {
	var observed [2][]float64
	observed[0] = make([]float64, x.NumCols)
	observed[1] = make([]float64, x.NumCols)
	var classCount [2]int
	for i := 0; i < x.NumRows(); i++ {
		c := 0
		if y[i] > 0 {
			c = 1
		}
		classCount[c]++
		cols, vals := x.Row(i)
		for k, col := range cols {
			observed[c][col] += vals[k]
		}
	}
	n := float64(x.NumRows())
	ans := make([]float64, x.NumCols)
	obs, exp := make([]float64, 2), make([]float64, 2)
	for j := range ans {
		total := observed[0][j] + observed[1][j]
		for c := 0; c < 2; c++ {
			obs[c] = observed[c][j]
			exp[c] = float64(classCount[c]) / n * total
		}
		if exp[0] == 0 || exp[1] == 0 {
			ans[j] = math.NaN()
			continue
		}
		ans[j] = stat.ChiSquare(obs, exp)
	}
	return ans
}

func rankScore(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(-1)
	}
	return v
}

// SelectKBest returns column indices of the k highest scores in
// ascending column order. NaN scores rank lowest. From equal scores,
// the ones with higher column index are preferred. For k >= len(scores),
// all the columns are returned.
func SelectKBest(scores []float64, k int) []int {
	if k >= len(scores) {
		ans := make([]int, len(scores))
		for i := range ans {
			ans[i] = i
		}
		return ans
	}
	tmp := make(map[int]float64, len(scores))
	for i, s := range scores {
		tmp[i] = rankScore(s)
	}
	ranked := collections.MapToEntriesSorted(
		tmp,
		func(a, b collections.MapEntry[int, float64]) int {
			if c := cmp.Compare(b.V, a.V); c != 0 {
				return c
			}
			return b.K - a.K
		},
	)
	ans := make([]int, 0, k)
	for _, entry := range ranked[:max(k, 0)] {
		ans = append(ans, entry.K)
	}
	slices.Sort(ans)
	return ans
}
