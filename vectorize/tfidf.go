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
	"math"
	"slices"

	"github.com/ubisoft/ubisoft-laforge-brownbuild/features"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
	"gonum.org/v1/gonum/floats"
)

var ErrEmptyVocabulary = errors.New("empty vocabulary")

// Corpus creates documents out of rows. A document is a multiset
// of terms represented by a term count map. With a non-nil target,
// terms outside the target are omitted.
func Corpus(rows []features.Row, target map[string]bool) []jobs.WordCount {
	ans := make([]jobs.WordCount, len(rows))
	for i, row := range rows {
		doc := make(jobs.WordCount, len(row.WordCount))
		for term, cnt := range row.WordCount {
			if cnt <= 0 {
				continue
			}
			if target != nil && !target[term] {
				continue
			}
			doc[term] = cnt
		}
		ans[i] = doc
	}
	return ans
}

// TfidfVectorizer weights term counts by their inverse document
// frequency. Weights are calculated as
// tf * (ln((1 + n) / (1 + df)) + 1) with L2-normalized rows.
type TfidfVectorizer struct {
	vocabulary []string
	index      map[string]int
	idf        []float64
}

// Fit learns vocabulary (sorted) and idf values from documents
func (v *TfidfVectorizer) Fit(docs []jobs.WordCount) error {
	df := make(map[string]int)
	for _, doc := range docs {
		for term := range doc {
			df[term]++
		}
	}
	if len(df) == 0 {
		return ErrEmptyVocabulary
	}
	v.vocabulary = make([]string, 0, len(df))
	for term := range df {
		v.vocabulary = append(v.vocabulary, term)
	}
	slices.Sort(v.vocabulary)
	v.index = make(map[string]int, len(v.vocabulary))
	v.idf = make([]float64, len(v.vocabulary))
	n := float64(len(docs))
	for i, term := range v.vocabulary {
		v.index[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return nil
}

// Transform creates a weighted term matrix. Terms not seen during
// fitting are ignored.
func (v *TfidfVectorizer) Transform(docs []jobs.WordCount) Matrix {
	ans := NewMatrix(len(v.vocabulary))
	for _, doc := range docs {
		cols := make([]int, 0, len(doc))
		for term := range doc {
			if idx, ok := v.index[term]; ok {
				cols = append(cols, idx)
			}
		}
		// fixed summation order keeps results reproducible
		slices.Sort(cols)
		weights := make([]float64, len(cols))
		for k, idx := range cols {
			weights[k] = float64(doc[v.vocabulary[idx]]) * v.idf[idx]
		}
		if norm := floats.Norm(weights, 2); norm > 0 {
			floats.Scale(1/norm, weights)
		}
		ans.AppendSortedRow(cols, weights)
	}
	return ans
}

func (v *TfidfVectorizer) FitTransform(docs []jobs.WordCount) (Matrix, error) {
	if err := v.Fit(docs); err != nil {
		return Matrix{}, err
	}
	return v.Transform(docs), nil
}

// Vocabulary returns the fitted terms in the column order
func (v *TfidfVectorizer) Vocabulary() []string {
	return slices.Clone(v.vocabulary)
}
