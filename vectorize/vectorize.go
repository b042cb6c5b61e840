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
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/features"
)

// ChunkSize is a number of training rows used for a single
// local feature selection.
const ChunkSize = 1000

var ErrEmptyTrainingSet = errors.New("empty training set")

// Set is a vectorized partition
type Set struct {
	X    Matrix             `msgpack:"x"`
	Y    []int              `msgpack:"y"`
	Info []features.AuxInfo `msgpack:"info"`
}

func (s Set) Size() int {
	return len(s.Y)
}

// Vectors contains all the vectorized partitions sharing
// the same columns (Features).
type Vectors struct {
	Train    Set      `msgpack:"train"`
	Valid    Set      `msgpack:"valid"`
	Test     Set      `msgpack:"test"`
	Features []string `msgpack:"features"`
}

// Labels returns 1 for flaky rows, 0 otherwise
func Labels(rows []features.Row) []int {
	ans := make([]int, len(rows))
	for i, row := range rows {
		ans[i] = row.Label()
	}
	return ans
}

func infoOf(rows []features.Row) []features.AuxInfo {
	ans := make([]features.AuxInfo, len(rows))
	for i, row := range rows {
		ans[i] = row.Info
	}
	return ans
}

// selectTerms fits tf-idf on rows (optionally restricted to target)
// and returns the k terms with the best chi2 score.
func selectTerms(rows []features.Row, target map[string]bool, k int) ([]string, error) {
	var vect TfidfVectorizer
	x, err := vect.FitTransform(Corpus(rows, target))
	if err != nil {
		return nil, err
	}
	vocab := vect.Vocabulary()
	selected := SelectKBest(Chi2(x, Labels(rows)), k)
	ans := make([]string, len(selected))
	for i, col := range selected {
		ans[i] = vocab[col]
	}
	return ans, nil
}

// IterativeSelect selects k terms in two rounds. First, the training rows
// are split into chunks of ChunkSize and the best k terms of each chunk
// are collected. Then the best k terms of the collected ones are selected
// using the whole training partition.
func IterativeSelect(train []features.Row, k int) ([]string, error) {
	if len(train) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	union := make(map[string]bool)
	for from := 0; from < len(train); from += ChunkSize {
		to := min(from+ChunkSize, len(train))
		terms, err := selectTerms(train[from:to], nil, k)
		if errors.Is(err, ErrEmptyVocabulary) {
			log.Warn().Int("from", from).Int("to", to).Msg("no terms in training chunk, skipping")
			continue

		} else if err != nil {
			return nil, fmt.Errorf("failed to select terms in chunk %d: %w", from/ChunkSize, err)
		}
		for _, t := range terms {
			union[t] = true
		}
	}
	if len(union) == 0 {
		return nil, fmt.Errorf("failed to select terms: %w", ErrEmptyVocabulary)
	}
	ans, err := selectTerms(train, union, k)
	if err != nil {
		return nil, fmt.Errorf("failed to select final terms: %w", err)
	}
	log.Debug().
		Int("numChunks", (len(train)+ChunkSize-1)/ChunkSize).
		Int("unionSize", len(union)).
		Int("numSelected", len(ans)).
		Msg("iterative term selection done")
	return ans, nil
}

func termSet(terms []string) map[string]bool {
	ans := make(map[string]bool, len(terms))
	for _, t := range terms {
		ans[t] = true
	}
	return ans
}

// Vectorize selects the kbest terms and creates tf-idf matrices
// of all the partitions. Weights are fitted on the training
// partition only.
func Vectorize(prepared features.PreparedSets, kbest int) (Vectors, error) {
	terms, err := IterativeSelect(prepared.Train, kbest)
	if err != nil {
		return Vectors{}, fmt.Errorf("failed to vectorize: %w", err)
	}
	target := termSet(terms)
	var vect TfidfVectorizer
	trainX, err := vect.FitTransform(Corpus(prepared.Train, target))
	if err != nil {
		return Vectors{}, fmt.Errorf("failed to vectorize: %w", err)
	}
	ans := Vectors{
		Train: Set{
			X:    trainX,
			Y:    Labels(prepared.Train),
			Info: infoOf(prepared.Train),
		},
		Valid: Set{
			X:    vect.Transform(Corpus(prepared.Valid, target)),
			Y:    Labels(prepared.Valid),
			Info: infoOf(prepared.Valid),
		},
		Test: Set{
			X:    vect.Transform(Corpus(prepared.Test, target)),
			Y:    Labels(prepared.Test),
			Info: infoOf(prepared.Test),
		},
		Features: vect.Vocabulary(),
	}
	log.Info().
		Int("numFeatures", len(ans.Features)).
		Int("train", ans.Train.Size()).
		Int("valid", ans.Valid.Size()).
		Int("test", ans.Test.Size()).
		Msg("partitions vectorized")
	return ans, nil
}
