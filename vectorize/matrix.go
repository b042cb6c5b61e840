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
	"sort"
)

// Matrix is a sparse matrix in the compressed sparse row format.
// Column indices within a row are strictly increasing.
type Matrix struct {
	NumCols int       `msgpack:"numCols"`
	RowPtr  []int     `msgpack:"rowPtr"`
	ColIdx  []int     `msgpack:"colIdx"`
	Values  []float64 `msgpack:"values"`
}

// NewMatrix creates an empty matrix with no rows
func NewMatrix(numCols int) Matrix {
	return Matrix{NumCols: numCols, RowPtr: []int{0}}
}

func (m Matrix) NumRows() int {
	if len(m.RowPtr) == 0 {
		return 0
	}
	return len(m.RowPtr) - 1
}

// AppendSortedRow adds a row specified by strictly increasing
// column indices and their values. Zero values are not stored.
func (m *Matrix) AppendSortedRow(cols []int, values []float64) {
	if len(m.RowPtr) == 0 {
		m.RowPtr = []int{0}
	}
	for k, c := range cols {
		if values[k] != 0 {
			m.ColIdx = append(m.ColIdx, c)
			m.Values = append(m.Values, values[k])
		}
	}
	m.RowPtr = append(m.RowPtr, len(m.ColIdx))
}

// Row returns column indices and values of nonzero items in row i.
// The returned slices must not be modified.
func (m Matrix) Row(i int) ([]int, []float64) {
	from, to := m.RowPtr[i], m.RowPtr[i+1]
	return m.ColIdx[from:to], m.Values[from:to]
}

// At returns the value at (i, j)
func (m Matrix) At(i, j int) float64 {
	cols, vals := m.Row(i)
	k := sort.SearchInts(cols, j)
	if k < len(cols) && cols[k] == j {
		return vals[k]
	}
	return 0
}

// DenseRow returns row i as a dense vector
func (m Matrix) DenseRow(i int) []float64 {
	ans := make([]float64, m.NumCols)
	cols, vals := m.Row(i)
	for k, c := range cols {
		ans[c] = vals[k]
	}
	return ans
}

// Dense converts the matrix into a row-major dense form
func (m Matrix) Dense() [][]float64 {
	ans := make([][]float64, m.NumRows())
	for i := range ans {
		ans[i] = m.DenseRow(i)
	}
	return ans
}

// FromDense creates a sparse matrix out of dense rows.
// All the rows are expected to have numCols items.
func FromDense(rows [][]float64, numCols int) Matrix {
	ans := NewMatrix(numCols)
	for _, row := range rows {
		for c, v := range row {
			if v != 0 {
				ans.ColIdx = append(ans.ColIdx, c)
				ans.Values = append(ans.Values, v)
			}
		}
		ans.RowPtr = append(ans.RowPtr, len(ans.ColIdx))
	}
	return ans
}

// SelectRows creates a new matrix from rows [from, to)
func (m Matrix) SelectRows(from, to int) Matrix {
	ans := NewMatrix(m.NumCols)
	for i := from; i < to; i++ {
		cols, vals := m.Row(i)
		ans.ColIdx = append(ans.ColIdx, cols...)
		ans.Values = append(ans.Values, vals...)
		ans.RowPtr = append(ans.RowPtr, len(ans.ColIdx))
	}
	return ans
}
