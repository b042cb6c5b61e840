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

package classify

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/classify/gbt"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/features"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/vectorize"
)

// stubClassifier predicts a constant probability and uses
// input values as contributions
type stubClassifier struct {
	prob  float64
	train vectorize.Set
}

func (s *stubClassifier) Fit(train, valid vectorize.Set) error {
	s.train = train
	return nil
}

func (s *stubClassifier) PredictProba(x vectorize.Matrix) ([]float64, error) {
	ans := make([]float64, x.NumRows())
	for i := range ans {
		ans[i] = s.prob
	}
	return ans, nil
}

func (s *stubClassifier) Contributions(x vectorize.Matrix) ([][]float64, error) {
	return x.Dense(), nil
}

func (s *stubClassifier) Info() string {
	return "stub"
}

func stubFactory(created *[]*stubClassifier, probs ...float64) Factory {
	return func() Classifier {
		ans := &stubClassifier{prob: probs[len(*created)]}
		*created = append(*created, ans)
		return ans
	}
}

func toySet(rows [][]float64, y []int) vectorize.Set {
	info := make([]features.AuxInfo, len(rows))
	for i := range info {
		info[i] = features.AuxInfo{Rerun: i, CommitSinceFlaky: 10 + i}
	}
	return vectorize.Set{X: vectorize.FromDense(rows, len(rows[0])), Y: y, Info: info}
}

func toyVectors() vectorize.Vectors {
	return vectorize.Vectors{
		Train: toySet([][]float64{{0.1, 1, 0}, {0.5, 1, 0.3}, {0.9, 1, 0}}, []int{0, 1, 1}),
		Valid: toySet([][]float64{{0.2, 1, 0.1}}, []int{1}),
		Test:  toySet([][]float64{{0.7, 1, 0}, {0.3, 1, 0.4}}, []int{1, 0}),
		Features: []string{"aaa", "bbb", "ccc"},
	}
}

func TestParamKey(t *testing.T) {
	assert.Equal(t, "10.0var_70tresh", ParamKey(10, 70))
	assert.Equal(t, "90.0var_0tresh", ParamKey(90, 0))
}

func TestSweepCompleteness(t *testing.T) {
	prob1 := []float64{0.9, 0.2, 0.6, 0.4}
	prob2 := []float64{0.8, 0.1, 0.3, 0.7}
	y := []int{1, 0, 1, 0}
	bundle, err := Sweep(prob1, prob2, y)
	require.NoError(t, err)
	assert.Len(t, bundle, 99)
	for _, alpha := range Alphas() {
		for _, beta := range Betas() {
			out, ok := bundle[ParamKey(beta, alpha)]
			require.True(t, ok)
			assert.Equal(t, alpha, out.Alpha)
			assert.Equal(t, beta, out.Beta)
			assert.Len(t, out.Prob, 4)
			assert.Len(t, out.Pred, 4)
		}
	}
	all := bundle[ParamKey(50, 0)]
	assert.Equal(t, []int{1, 1, 1, 1}, all.Pred)
	assert.Equal(t, 1.0, all.Result.Recall)
	assert.Equal(t, 0.0, all.Result.Specificity)

	mid := bundle[ParamKey(50, 50)]
	assert.InDeltaSlice(t, []float64{0.85, 0.15, 0.45, 0.55}, mid.Prob, 1e-12)
	assert.Equal(t, []int{1, 0, 0, 1}, mid.Pred)
}

func TestSweepInconsistent(t *testing.T) {
	_, err := Sweep([]float64{0.1}, []float64{0.1, 0.2}, []int{1})
	assert.Error(t, err)
}

func TestVaryingColumns(t *testing.T) {
	rows := [][]float64{{1, 0, 3}, {1, 2, 3}, {1, 0, 4}}
	assert.Equal(t, []int{1, 2}, VaryingColumns(rows))
	assert.Equal(t, []int{}, VaryingColumns([][]float64{{1, 2}}))
}

func TestTwoStageWiring(t *testing.T) {
	var created []*stubClassifier
	bundle, err := TwoStage(toyVectors(), stubFactory(&created, 0.8, 0.2))
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Len(t, bundle, 99)

	// constant column "bbb" dropped, two history counters appended
	train2 := created[1].train
	require.Equal(t, 4, train2.X.NumCols)
	assert.Equal(t, [][]float64{
		{0.1, 0, 0, 10},
		{0.5, 0.3, 1, 11},
		{0.9, 0, 2, 12},
	}, train2.X.Dense())

	// 0.8 * 0.9 + 0.2 * 0.1 = 0.74
	assert.Equal(t, []int{1, 1}, bundle[ParamKey(10, 70)].Pred)
	assert.Equal(t, []int{0, 0}, bundle[ParamKey(10, 80)].Pred)
	assert.Equal(t, 0.5, bundle[ParamKey(10, 70)].Result.Precision)
}

func TestTwoStageSingleClass(t *testing.T) {
	vectors := toyVectors()
	vectors.Train.Y = []int{1, 1, 1}
	var created []*stubClassifier
	_, err := TwoStage(vectors, stubFactory(&created, 0.5, 0.5))
	assert.ErrorIs(t, err, ErrSingleClass)
	assert.Contains(t, err.Error(), "train")
	assert.Contains(t, err.Error(), stage1)
}

func TestTwoStageEmptyValidation(t *testing.T) {
	vectors := toyVectors()
	vectors.Valid = vectorize.Set{X: vectorize.NewMatrix(3)}
	var created []*stubClassifier
	_, err := TwoStage(vectors, stubFactory(&created, 0.5, 0.5))
	assert.ErrorIs(t, err, ErrEmptyValidation)
}

func randomVectors(rnd *rand.Rand, n int) vectorize.Set {
	rows := make([][]float64, n)
	y := make([]int, n)
	info := make([]features.AuxInfo, n)
	for i := range rows {
		rows[i] = []float64{rnd.Float64(), rnd.Float64(), 0}
		if rows[i][0] > 0.6 {
			y[i] = 1
			rows[i][2] = rnd.Float64()
		}
		info[i] = features.AuxInfo{Rerun: rnd.IntN(3), CommitSinceFlaky: rnd.IntN(5)}
	}
	return vectorize.Set{X: vectorize.FromDense(rows, 3), Y: y, Info: info}
}

func TestTwoStageGBT(t *testing.T) {
	rnd := rand.New(rand.NewPCG(5, 6))
	vectors := vectorize.Vectors{
		Train:    randomVectors(rnd, 200),
		Valid:    randomVectors(rnd, 40),
		Test:     randomVectors(rnd, 40),
		Features: []string{"x1", "x2", "x3"},
	}
	params := gbt.DefaultParams()
	params.MaxDepth = 3
	bundle, err := TwoStage(vectors, GBTFactory(params))
	require.NoError(t, err)
	assert.Len(t, bundle, 99)
	out := bundle[ParamKey(50, 50)]
	assert.Greater(t, out.Result.Accuracy, 0.8)
}
