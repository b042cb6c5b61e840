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

package metrics

import (
	"errors"
	"fmt"

	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
)

var ErrNoFailures = errors.New("no failing jobs found")

// Result contains classification quality measures where
// the positive class is "flaky".
type Result struct {
	Accuracy    float64 `msgpack:"accuracy"`
	Precision   float64 `msgpack:"precision"`
	Recall      float64 `msgpack:"recall"`
	F1          float64 `msgpack:"f1"`
	Specificity float64 `msgpack:"specificity"`
}

type confusion struct {
	tp, fp, tn, fn int
}

func (c confusion) total() int {
	return c.tp + c.fp + c.tn + c.fn
}

// safeDiv returns 0 for zero denominator
func safeDiv(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func newConfusion(y, pred []int) (confusion, error) {
	var ans confusion
	if len(y) != len(pred) {
		return ans, fmt.Errorf("labels and predictions differ in length: %d vs. %d", len(y), len(pred))
	}
	for i := range y {
		switch {
		case y[i] == 1 && pred[i] == 1:
			ans.tp++
		case y[i] == 1:
			ans.fn++
		case pred[i] == 1:
			ans.fp++
		default:
			ans.tn++
		}
	}
	return ans, nil
}

// Compute calculates metrics of binary predictions. Undefined
// ratios (zero division) are reported as 0.
func Compute(y, pred []int) (Result, error) {
	c, err := newConfusion(y, pred)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Accuracy:    safeDiv(c.tp+c.tn, c.total()),
		Precision:   safeDiv(c.tp, c.tp+c.fp),
		Recall:      safeDiv(c.tp, c.tp+c.fn),
		F1:          safeDiv(2*c.tp, 2*c.tp+c.fp+c.fn),
		Specificity: safeDiv(c.tn, c.tn+c.fp),
	}, nil
}

// Binarize converts probabilities into predictions using
// prob >= threshold as the positive class
func Binarize(prob []float64, threshold float64) []int {
	ans := make([]int, len(prob))
	for i, p := range prob {
		if p >= threshold {
			ans[i] = 1
		}
	}
	return ans
}

// FlakyRate calculates a ratio of flaky jobs among the failing ones
func FlakyRate(records []jobs.JobRecord) (float64, error) {
	var numFail, numFlaky int
	for _, rec := range records {
		if !rec.Failed() {
			continue
		}
		numFail++
		if rec.IsFlaky() {
			numFlaky++
		}
	}
	if numFail == 0 {
		return 0, ErrNoFailures
	}
	return float64(numFlaky) / float64(numFail), nil
}
