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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/features"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func TestMatrix(t *testing.T) {
	m := NewMatrix(4)
	m.AppendSortedRow([]int{0, 1, 3}, []float64{2, 0, 1.5})
	m.AppendSortedRow(nil, nil)
	m.AppendSortedRow([]int{2}, []float64{-1})
	assert.Equal(t, 3, m.NumRows())
	assert.Equal(t, []int{0, 3, 2}, m.ColIdx)
	assert.Equal(t, 2.0, m.At(0, 0))
	assert.Equal(t, 0.0, m.At(0, 1))
	assert.Equal(t, 1.5, m.At(0, 3))
	assert.Equal(t, 0.0, m.At(1, 3))
	assert.Equal(t, [][]float64{{2, 0, 0, 1.5}, {0, 0, 0, 0}, {0, 0, -1, 0}}, m.Dense())

	m2 := FromDense(m.Dense(), 4)
	assert.Equal(t, m, m2)
	sub := m.SelectRows(1, 3)
	assert.Equal(t, [][]float64{{0, 0, 0, 0}, {0, 0, -1, 0}}, sub.Dense())
}

func toyDocs() []jobs.WordCount {
	return []jobs.WordCount{
		{"aaa": 1, "ccc": 1},
		{"aaa": 1, "bbb": 1},
		{"bbb": 2},
	}
}

func TestTfidfKnownValues(t *testing.T) {
	var vect TfidfVectorizer
	x, err := vect.FitTransform(toyDocs())
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, vect.Vocabulary())
	assert.InDelta(t, 0.6053485081062916, x.At(0, 0), 1e-12)
	assert.InDelta(t, 0.7959605415681652, x.At(0, 2), 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), x.At(1, 0), 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), x.At(1, 1), 1e-12)
	assert.InDelta(t, 1.0, x.At(2, 1), 1e-12)
}

func TestTfidfRowsHaveUnitNorm(t *testing.T) {
	var vect TfidfVectorizer
	x, err := vect.FitTransform([]jobs.WordCount{
		{"aaa": 3, "bbb": 1, "ccc": 7},
		{"ddd": 1},
		{"aaa": 1, "eee": 4},
	})
	require.NoError(t, err)
	for i := 0; i < x.NumRows(); i++ {
		_, vals := x.Row(i)
		assert.InDelta(t, 1.0, floats.Norm(vals, 2), 1e-12)
	}
	empty := vect.Transform([]jobs.WordCount{{"unknown": 2}})
	assert.Equal(t, 1, empty.NumRows())
	assert.Empty(t, empty.ColIdx)
}

func rowWeights(vocab []string, x Matrix, i int) map[string]float64 {
	ans := make(map[string]float64)
	cols, vals := x.Row(i)
	for k, c := range cols {
		ans[vocab[c]] = vals[k]
	}
	return ans
}

func TestTfidfRowOrderIndependent(t *testing.T) {
	docs := toyDocs()
	shuffled := []jobs.WordCount{docs[2], docs[0], docs[1]}
	var v1, v2 TfidfVectorizer
	x1, err := v1.FitTransform(docs)
	require.NoError(t, err)
	x2, err := v2.FitTransform(shuffled)
	require.NoError(t, err)
	assert.Equal(t, rowWeights(v1.Vocabulary(), x1, 0), rowWeights(v2.Vocabulary(), x2, 1))
	assert.Equal(t, rowWeights(v1.Vocabulary(), x1, 1), rowWeights(v2.Vocabulary(), x2, 2))
	assert.Equal(t, rowWeights(v1.Vocabulary(), x1, 2), rowWeights(v2.Vocabulary(), x2, 0))
}

func TestTfidfTransformUnknownTerms(t *testing.T) {
	var vect TfidfVectorizer
	require.NoError(t, vect.Fit(toyDocs()))
	x := vect.Transform([]jobs.WordCount{{"zzz": 3}, {"zzz": 1, "ccc": 2}})
	assert.Equal(t, 2, x.NumRows())
	assert.Equal(t, 3, x.NumCols)
	cols, _ := x.Row(0)
	assert.Empty(t, cols)
	assert.InDelta(t, 1.0, x.At(1, 2), 1e-12)
}

func TestTfidfEmpty(t *testing.T) {
	var vect TfidfVectorizer
	assert.ErrorIs(t, vect.Fit([]jobs.WordCount{{}, {}}), ErrEmptyVocabulary)
}

func TestChi2(t *testing.T) {
	x := FromDense([][]float64{{1, 0, 0}, {0, 1, 0}, {1, 1, 0}}, 3)
	scores := Chi2(x, []int{1, 0, 0})
	assert.InDelta(t, 0.25, scores[0], 1e-12)
	assert.InDelta(t, 1.0, scores[1], 1e-12)
	assert.True(t, math.IsNaN(scores[2]))

	// feature 1 per-class sums are [2 0], class frequencies [2/3 1/3]
	assert.InDelta(t, stat.ChiSquare([]float64{2, 0}, []float64{4.0 / 3, 2.0 / 3}), scores[1], 1e-12)

	single := Chi2(x, []int{0, 0, 0})
	for _, s := range single {
		assert.True(t, math.IsNaN(s))
	}
}

func TestSelectKBest(t *testing.T) {
	assert.Equal(t, []int{1}, SelectKBest([]float64{0.25, 1.0, math.NaN()}, 1))
	assert.Equal(t, []int{0, 1}, SelectKBest([]float64{0.25, 1.0, math.NaN()}, 2))
	assert.Equal(t, []int{1, 2}, SelectKBest([]float64{1, 1, 1}, 2))
	assert.Equal(t, []int{0, 1, 2}, SelectKBest([]float64{1, 2, 3}, 5))
	assert.Equal(t, []int{0, 2}, SelectKBest([]float64{3, math.NaN(), 2}, 2))
}

func labeledRow(flaky bool, wc jobs.WordCount) features.Row {
	label := jobs.LabelSafe
	if flaky {
		label = jobs.LabelFlaky
	}
	return features.Row{
		Record:    jobs.JobRecord{Flaky: label, Status: jobs.StatusFail},
		WordCount: wc,
		Info:      features.AuxInfo{Rerun: 1},
	}
}

func discriminativeRows(n int) []features.Row {
	ans := make([]features.Row, n)
	for i := range ans {
		if i%2 == 0 {
			ans[i] = labeledRow(true, jobs.WordCount{"flakyterm": 1, "common": 1})

		} else {
			ans[i] = labeledRow(false, jobs.WordCount{"safeterm": 1, "common": 1})
		}
	}
	return ans
}

func TestIterativeSelect(t *testing.T) {
	terms, err := IterativeSelect(discriminativeRows(2500), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"flakyterm", "safeterm"}, terms)

	terms, err = IterativeSelect(discriminativeRows(10), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"common", "flakyterm", "safeterm"}, terms)
}

func TestIterativeSelectErrors(t *testing.T) {
	_, err := IterativeSelect(nil, 10)
	assert.ErrorIs(t, err, ErrEmptyTrainingSet)
	_, err = IterativeSelect([]features.Row{labeledRow(true, jobs.WordCount{})}, 10)
	assert.ErrorIs(t, err, ErrEmptyVocabulary)
}

func TestVectorize(t *testing.T) {
	prepared := features.PreparedSets{
		Train: discriminativeRows(20),
		Valid: []features.Row{labeledRow(true, jobs.WordCount{"flakyterm": 2, "unknown": 1})},
		Test:  []features.Row{labeledRow(false, jobs.WordCount{"unknown": 1})},
	}
	vectors, err := Vectorize(prepared, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"flakyterm", "safeterm"}, vectors.Features)
	assert.Equal(t, 20, vectors.Train.X.NumRows())
	assert.Equal(t, []int{1}, vectors.Valid.Y)
	assert.Equal(t, []int{0}, vectors.Test.Y)
	assert.InDelta(t, 1.0, vectors.Valid.X.At(0, 0), 1e-12)
	cols, _ := vectors.Test.X.Row(0)
	assert.Empty(t, cols)
	assert.Equal(t, 1, vectors.Train.Info[0].Rerun)
}
