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
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/features"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/metrics"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/vectorize"
)

const (
	stage1 = "stage-1"
	stage2 = "stage-2"
)

// Stage2ExtraFeatures are job history counters appended to the
// attribution columns in the second stage
var Stage2ExtraFeatures = []string{"rerun", "commit_since_flaky"}

// Outcome is a result of a single sweep parameterization
type Outcome struct {
	Beta   int            `msgpack:"beta"`
	Alpha  int            `msgpack:"alpha"`
	Prob   []float64      `msgpack:"prob"`
	Pred   []int          `msgpack:"pred"`
	Result metrics.Result `msgpack:"result"`
}

// PredictionBundle maps ParamKey(beta, alpha) to outcomes
// of the respective parameterization.
type PredictionBundle map[string]Outcome

// ParamKey creates a bundle key for a mixing weight beta and
// a decision threshold alpha (both in percents)
func ParamKey(beta, alpha int) string {
	return fmt.Sprintf("%.1fvar_%dtresh", float64(beta), alpha)
}

// Alphas returns decision thresholds (in percents) of the sweep
func Alphas() []int {
	ans := make([]int, 0, 11)
	for a := 0; a <= 100; a += 10 {
		ans = append(ans, a)
	}
	return ans
}

// Betas returns stage-2 mixing weights (in percents) of the sweep
func Betas() []int {
	ans := make([]int, 0, 9)
	for b := 10; b <= 90; b += 10 {
		ans = append(ans, b)
	}
	return ans
}

// Blend mixes probabilities of both stages with beta being
// the stage-2 share in percents
func Blend(prob1, prob2 []float64, beta int) []float64 {
	ans := make([]float64, len(prob1))
	for i := range ans {
		ans[i] = (prob1[i]*float64(100-beta) + prob2[i]*float64(beta)) / 100
	}
	return ans
}

// Sweep evaluates blended predictions for all the (beta, alpha)
// combinations against the true labels y.
func Sweep(prob1, prob2 []float64, y []int) (PredictionBundle, error) {
	if len(prob1) != len(prob2) || len(prob1) != len(y) {
		return nil, fmt.Errorf(
			"failed to sweep parameters: inconsistent sizes %d, %d, %d", len(prob1), len(prob2), len(y))
	}
	ans := make(PredictionBundle)
	for _, alpha := range Alphas() {
		for _, beta := range Betas() {
			blended := Blend(prob1, prob2, beta)
			pred := metrics.Binarize(blended, float64(alpha)/100)
			res, err := metrics.Compute(y, pred)
			if err != nil {
				return nil, fmt.Errorf("failed to sweep parameters: %w", err)
			}
			ans[ParamKey(beta, alpha)] = Outcome{
				Beta:   beta,
				Alpha:  alpha,
				Prob:   blended,
				Pred:   pred,
				Result: res,
			}
		}
	}
	return ans, nil
}

// ------------------------

// VaryingColumns returns indices of columns which are not constant
// across rows
func VaryingColumns(rows [][]float64) []int {
	if len(rows) == 0 {
		return []int{}
	}
	ans := make([]int, 0, len(rows[0]))
	for j := range rows[0] {
		for i := 1; i < len(rows); i++ {
			if rows[i][j] != rows[0][j] {
				ans = append(ans, j)
				break
			}
		}
	}
	return ans
}

// stage2Matrix combines selected attribution columns with
// job history counters
func stage2Matrix(contrib [][]float64, columns []int, info []features.AuxInfo) vectorize.Matrix {
	numCols := len(columns) + len(Stage2ExtraFeatures)
	rows := make([][]float64, len(contrib))
	for i, c := range contrib {
		row := make([]float64, 0, numCols)
		for _, j := range columns {
			row = append(row, c[j])
		}
		row = append(row, float64(info[i].Rerun), float64(info[i].CommitSinceFlaky))
		rows[i] = row
	}
	return vectorize.FromDense(rows, numCols)
}

type stageResult struct {
	trainContrib [][]float64
	validContrib [][]float64
	testContrib  [][]float64
	testProb     []float64
}

func runStage(clf Classifier, train, valid, test vectorize.Set, stage string, withContrib bool) (stageResult, error) {
	var ans stageResult
	if err := checkTrainable(train, valid, test, stage); err != nil {
		return ans, err
	}
	if err := clf.Fit(train, valid); err != nil {
		return ans, fmt.Errorf("failed to train %s classifier: %w", stage, err)
	}
	var err error
	ans.testProb, err = clf.PredictProba(test.X)
	if err != nil {
		return ans, fmt.Errorf("failed to predict by %s classifier: %w", stage, err)
	}
	if withContrib {
		for _, item := range []struct {
			x   vectorize.Matrix
			out *[][]float64
		}{
			{train.X, &ans.trainContrib},
			{valid.X, &ans.validContrib},
			{test.X, &ans.testContrib},
		} {
			*item.out, err = clf.Contributions(item.x)
			if err != nil {
				return ans, fmt.Errorf("failed to get %s contributions: %w", stage, err)
			}
		}
	}
	log.Info().Str("stage", stage).Str("model", clf.Info()).Msg("classifier trained")
	return ans, nil
}

// TwoStage trains a classifier on vectorized logs and then a second
// classifier on the first one's feature contributions extended by job
// history counters. Test predictions of both stages are blended and
// evaluated for all the sweep parameters.
func TwoStage(vectors vectorize.Vectors, factory Factory) (PredictionBundle, error) {
	res1, err := runStage(factory(), vectors.Train, vectors.Valid, vectors.Test, stage1, true)
	if err != nil {
		return nil, err
	}
	columns := VaryingColumns(res1.trainContrib)
	log.Debug().
		Int("numColumns", len(columns)).
		Int("numDropped", vectors.Train.X.NumCols-len(columns)).
		Msg("selected attribution columns for the second stage")
	train2 := vectorize.Set{
		X:    stage2Matrix(res1.trainContrib, columns, vectors.Train.Info),
		Y:    vectors.Train.Y,
		Info: vectors.Train.Info,
	}
	valid2 := vectorize.Set{
		X:    stage2Matrix(res1.validContrib, columns, vectors.Valid.Info),
		Y:    vectors.Valid.Y,
		Info: vectors.Valid.Info,
	}
	test2 := vectorize.Set{
		X:    stage2Matrix(res1.testContrib, columns, vectors.Test.Info),
		Y:    vectors.Test.Y,
		Info: vectors.Test.Info,
	}
	res2, err := runStage(factory(), train2, valid2, test2, stage2, false)
	if err != nil {
		return nil, err
	}
	return Sweep(res1.testProb, res2.testProb, vectors.Test.Y)
}
