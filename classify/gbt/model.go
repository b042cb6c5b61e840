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
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/vectorize"
)

const minHessian = 1e-16

var (
	ErrNotTrained     = errors.New("model not trained")
	ErrInvalidDataset = errors.New("invalid dataset")
)

// Params configures training of a binary logistic gradient
// boosted trees model.
type Params struct {
	MaxDepth            int
	Eta                 float64
	Lambda              float64
	MinChildWeight      float64
	NumRounds           int
	EarlyStoppingRounds int
}

func DefaultParams() Params {
	return Params{
		MaxDepth:            100,
		Eta:                 1,
		Lambda:              1,
		MinChildWeight:      1,
		NumRounds:           50,
		EarlyStoppingRounds: 3,
	}
}

// Model is a gradient boosted trees ensemble with logistic loss.
// Apart from probabilities, it can explain its predictions by
// per-feature contributions (path attribution).
type Model struct {
	params        Params
	numFeatures   int
	trees         []Tree
	bestIteration int
	bestScore     float64
}

func NewModel(params Params) *Model {
	return &Model{params: params}
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func validateDataset(set vectorize.Set, name string) error {
	if set.X.NumRows() != len(set.Y) {
		return fmt.Errorf("%w: %s has %d rows and %d labels", ErrInvalidDataset, name, set.X.NumRows(), len(set.Y))
	}
	for _, y := range set.Y {
		if y != 0 && y != 1 {
			return fmt.Errorf("%w: %s contains non-binary label %d", ErrInvalidDataset, name, y)
		}
	}
	return nil
}

// Fit trains the model. After each boosting round, the ROC AUC
// on the valid set is evaluated and once it does not improve for
// EarlyStoppingRounds rounds, the training stops. Only the trees up
// to the best round are kept.
func (m *Model) Fit(train, valid vectorize.Set) error {
	if err := validateDataset(train, "train"); err != nil {
		return err
	}
	if err := validateDataset(valid, "valid"); err != nil {
		return err
	}
	if valid.X.NumCols != train.X.NumCols {
		return fmt.Errorf("%w: train and valid differ in number of columns", ErrInvalidDataset)
	}
	m.numFeatures = train.X.NumCols
	m.trees = make([]Tree, 0, m.params.NumRounds)
	m.bestIteration = -1
	m.bestScore = math.Inf(-1)

	numTrain := train.X.NumRows()
	trainMargin := make([]float64, numTrain)
	validRows := valid.X.Dense()
	validMargin := make([]float64, len(validRows))
	validProb := make([]float64, len(validRows))
	builder := treeBuilder{
		params: m.params,
		x:      train.X,
		cols:   columns(train.X),
		g:      make([]float64, numTrain),
		h:      make([]float64, numTrain),
	}

	for round := 0; round < m.params.NumRounds; round++ {
		for i := 0; i < numTrain; i++ {
			p := sigmoid(trainMargin[i])
			builder.g[i] = p - float64(train.Y[i])
			builder.h[i] = max(p*(1-p), minHessian)
		}
		tree := builder.build()
		m.trees = append(m.trees, tree)
		for i := 0; i < numTrain; i++ {
			trainMargin[i] += tree.predict(train.X.DenseRow(i))
		}
		for i, row := range validRows {
			validMargin[i] += tree.predict(row)
			validProb[i] = sigmoid(validMargin[i])
		}
		score := ROCAUC(valid.Y, validProb)
		log.Debug().
			Int("round", round).
			Int("numNodes", len(tree.Nodes)).
			Float64("validAUC", score).
			Msg("boosting round finished")
		if score > m.bestScore {
			m.bestScore = score
			m.bestIteration = round

		} else if round-m.bestIteration >= m.params.EarlyStoppingRounds {
			break
		}
	}
	m.trees = m.trees[:m.bestIteration+1]
	log.Debug().
		Int("bestIteration", m.bestIteration).
		Float64("bestValidAUC", m.bestScore).
		Msg("model trained")
	return nil
}

func (m *Model) margin(row []float64) float64 {
	var ans float64
	for _, t := range m.trees {
		ans += t.predict(row)
	}
	return ans
}

func (m *Model) checkInput(x vectorize.Matrix) error {
	if m.trees == nil {
		return ErrNotTrained
	}
	if x.NumCols != m.numFeatures {
		return fmt.Errorf("%w: expected %d columns, got %d", ErrInvalidDataset, m.numFeatures, x.NumCols)
	}
	return nil
}

// PredictProba returns probabilities of the positive class
func (m *Model) PredictProba(x vectorize.Matrix) ([]float64, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	ans := make([]float64, x.NumRows())
	for i := range ans {
		ans[i] = sigmoid(m.margin(x.DenseRow(i)))
	}
	return ans, nil
}

// Contributions returns per-feature signed contributions to the margin
// of each prediction. For each split along a decision path, the change
// of the expected value is attributed to the split's feature. The bias
// (expected value of the model) is not included, so for each row
// bias + sum(contributions) equals the predicted margin.
func (m *Model) Contributions(x vectorize.Matrix) ([][]float64, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	ans := make([][]float64, x.NumRows())
	for i := range ans {
		row := x.DenseRow(i)
		contrib := make([]float64, m.numFeatures)
		for _, t := range m.trees {
			t.attribute(row, contrib)
		}
		ans[i] = contrib
	}
	return ans, nil
}

// Bias returns the expected margin of the model
func (m *Model) Bias() float64 {
	var ans float64
	for _, t := range m.trees {
		ans += t.Nodes[0].Value
	}
	return ans
}

func (m *Model) NumTrees() int {
	return len(m.trees)
}

func (m *Model) Info() string {
	return fmt.Sprintf(
		"GBT{maxDepth: %d, eta: %01.2f, trees: %d/%d, validAUC: %01.4f}",
		m.params.MaxDepth, m.params.Eta, len(m.trees), m.params.NumRounds, m.bestScore,
	)
}
