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

const (
	BaselineRandom50           = "random50"
	BaselineRandomProportional = "randomProportional"
	BaselineAlwaysFlaky        = "alwaysFlaky"
)

// Baseline is a closed-form result of a trivial classifier.
// Accuracy is not defined for baselines.
type Baseline struct {
	Name   string
	Result Result
}

// Random50 flips a fair coin for each failure
func Random50(rate float64) Result {
	return Result{
		Precision:   rate,
		Recall:      0.5,
		Specificity: 0.5,
		F1:          rate / (1 + 2*rate),
	}
}

// RandomProportional marks a failure as flaky with
// the probability equal to the flaky rate
func RandomProportional(rate float64) Result {
	return Result{
		Precision:   rate,
		Recall:      rate,
		Specificity: 1 - rate,
		F1:          rate / 2,
	}
}

// AlwaysFlaky marks every failure as flaky
func AlwaysFlaky(rate float64) Result {
	return Result{
		Precision:   rate,
		Recall:      1,
		Specificity: 0,
		F1:          rate / (1 + rate),
	}
}

// Baselines returns all the baselines in their reporting order
func Baselines(rate float64) []Baseline {
	return []Baseline{
		{Name: BaselineRandom50, Result: Random50(rate)},
		{Name: BaselineRandomProportional, Result: RandomProportional(rate)},
		{Name: BaselineAlwaysFlaky, Result: AlwaysFlaky(rate)},
	}
}
