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

package gbt

import (
	"cmp"
	"slices"
)

// ROCAUC calculates the area under the ROC curve using
// the rank statistic (tied scores get their average rank).
// For a single-class y, 0.5 is returned.
func ROCAUC(y []int, score []float64) float64 {
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int {
		return cmp.Compare(score[a], score[b])
	})
	var numPos, numNeg int
	var rankSumPos float64
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && score[idx[j]] == score[idx[i]] {
			j++
		}
		avgRank := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			if y[idx[k]] == 1 {
				numPos++
				rankSumPos += avgRank

			} else {
				numNeg++
			}
		}
		i = j
	}
	if numPos == 0 || numNeg == 0 {
		return 0.5
	}
	return (rankSumPos - float64(numPos*(numPos+1))/2) / float64(numPos*numNeg)
}
