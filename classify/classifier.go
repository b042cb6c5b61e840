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
	"errors"
	"fmt"

	"github.com/ubisoft/ubisoft-laforge-brownbuild/classify/gbt"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/vectorize"
)

var (
	ErrSingleClass     = errors.New("fewer than two classes in data")
	ErrEmptyValidation = errors.New("empty validation set")
	ErrEmptyTest       = errors.New("empty test set")
)

// Classifier is a trainable binary classifier able to explain
// its predictions by per-feature contributions. Contributions
// are required by the second stage of TwoStage.
type Classifier interface {

	// Fit trains the classifier. The valid set is used for early
	// stopping.
	Fit(train, valid vectorize.Set) error

	// PredictProba returns probabilities of the positive (flaky) class
	PredictProba(x vectorize.Matrix) ([]float64, error)

	// Contributions returns a signed contribution of each feature
	// to each prediction (rows x columns of x).
	Contributions(x vectorize.Matrix) ([][]float64, error)

	Info() string
}

// Factory creates a fresh untrained classifier
type Factory func() Classifier

// GBTFactory creates gradient boosted trees classifiers
func GBTFactory(params gbt.Params) Factory {
	return func() Classifier {
		return gbt.NewModel(params)
	}
}

func checkClasses(set vectorize.Set, partition, stage string) error {
	var seen [2]bool
	for _, y := range set.Y {
		seen[min(max(y, 0), 1)] = true
	}
	if !seen[0] || !seen[1] {
		return fmt.Errorf("cannot train %s classifier on %s partition (%d rows): %w", stage, partition, set.Size(), ErrSingleClass)
	}
	return nil
}

// checkTrainable verifies that a classifier can be trained
// and evaluated on the sets.
func checkTrainable(train, valid, test vectorize.Set, stage string) error {
	if err := checkClasses(train, "train", stage); err != nil {
		return err
	}
	if valid.Size() == 0 {
		return fmt.Errorf("cannot train %s classifier: %w", stage, ErrEmptyValidation)
	}
	if test.Size() == 0 {
		return fmt.Errorf("cannot evaluate %s classifier: %w", stage, ErrEmptyTest)
	}
	return nil
}
