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
	"slices"

	"github.com/ubisoft/ubisoft-laforge-brownbuild/vectorize"
)

// minSplitGain is the smallest loss reduction accepted for a split
const minSplitGain = 1e-6

type node struct {
	Feature   int     `msgpack:"f"`
	Threshold float64 `msgpack:"t"`
	Left      int     `msgpack:"l"`
	Right     int     `msgpack:"r"`
	Leaf      bool    `msgpack:"leaf"`

	// Value is a leaf weight (already scaled by the learning rate)
	// for leaves and a cover-weighted mean of the leaf weights below
	// for inner nodes.
	Value float64 `msgpack:"v"`

	// sums of gradients and hessians of the training rows
	// in the node (H is also used as the node cover)
	G     float64 `msgpack:"g"`
	H     float64 `msgpack:"h"`
	Count int     `msgpack:"n"`
}

// Tree is a binary regression tree. Rows with x[Feature] < Threshold
// go to the left child.
type Tree struct {
	Nodes []node `msgpack:"nodes"`
}

func (t Tree) leafOf(row []float64) int {
	nid := 0
	for !t.Nodes[nid].Leaf {
		nd := t.Nodes[nid]
		if row[nd.Feature] < nd.Threshold {
			nid = nd.Left

		} else {
			nid = nd.Right
		}
	}
	return nid
}

// predict returns the tree's contribution to the margin
func (t Tree) predict(row []float64) float64 {
	return t.Nodes[t.leafOf(row)].Value
}

// attribute adds per-feature contributions along the decision
// path of row to contrib and returns the tree's bias (root value)
func (t Tree) attribute(row []float64, contrib []float64) float64 {
	nid := 0
	for !t.Nodes[nid].Leaf {
		nd := t.Nodes[nid]
		next := nd.Right
		if row[nd.Feature] < nd.Threshold {
			next = nd.Left
		}
		contrib[nd.Feature] += t.Nodes[next].Value - nd.Value
		nid = next
	}
	return t.Nodes[0].Value
}

// finalize sets leaf weights and expected values of inner nodes
func (t *Tree) finalize(nid int, params Params) float64 {
	nd := &t.Nodes[nid]
	if nd.Leaf {
		nd.Value = -nd.G / (nd.H + params.Lambda) * params.Eta
		return nd.Value
	}
	left, right := nd.Left, nd.Right
	vl := t.finalize(left, params)
	vr := t.finalize(right, params)
	hl, hr := t.Nodes[left].H, t.Nodes[right].H
	nd = &t.Nodes[nid]
	if hl+hr > 0 {
		nd.Value = (hl*vl + hr*vr) / (hl + hr)

	} else {
		nd.Value = (vl + vr) / 2
	}
	return nd.Value
}

// ------------------------

type colEntry struct {
	row int
	val float64
}

// columns creates per-feature lists of nonzero values sorted
// in ascending order
func columns(x vectorize.Matrix) [][]colEntry {
	ans := make([][]colEntry, x.NumCols)
	for i := 0; i < x.NumRows(); i++ {
		cols, vals := x.Row(i)
		for k, c := range cols {
			ans[c] = append(ans[c], colEntry{row: i, val: vals[k]})
		}
	}
	for _, col := range ans {
		slices.SortStableFunc(col, func(a, b colEntry) int {
			switch {
			case a.val < b.val:
				return -1
			case a.val > b.val:
				return 1
			}
			return 0
		})
	}
	return ans
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	found     bool
}

// scanState accumulates the left side of a candidate split
// while scanning a sorted column
type scanState struct {
	stamp    int
	nzG      float64
	nzH      float64
	nzCnt    int
	gl       float64
	hl       float64
	cnt      int
	last     float64
	zeroDone bool
}

// treeBuilder grows a single tree level by level using the exact
// greedy split search on second order gradient statistics
type treeBuilder struct {
	params Params
	x      vectorize.Matrix
	cols   [][]colEntry
	g      []float64
	h      []float64
}

func (b *treeBuilder) evalCandidate(st *scanState, nd *node, best *split, feature int, v float64) {
	if st.cnt == 0 || v <= st.last {
		return
	}
	gl, hl := st.gl, st.hl
	gr, hr := nd.G-gl, nd.H-hl
	if hl < b.params.MinChildWeight || hr < b.params.MinChildWeight {
		return
	}
	lambda := b.params.Lambda
	gain := 0.5 * (gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - nd.G*nd.G/(nd.H+lambda))
	if gain > minSplitGain && gain > best.gain {
		*best = split{
			feature:   feature,
			threshold: (st.last + v) / 2,
			gain:      gain,
			found:     true,
		}
	}
}

// addZeros processes rows of the node having zero value
// of the scanned feature
func (b *treeBuilder) addZeros(st *scanState, nd *node, best *split, feature int) {
	st.zeroDone = true
	zeroCnt := nd.Count - st.nzCnt
	if zeroCnt == 0 {
		return
	}
	b.evalCandidate(st, nd, best, feature, 0)
	st.gl += nd.G - st.nzG
	st.hl += nd.H - st.nzH
	st.cnt += zeroCnt
	st.last = 0
}

// findSplits searches the best split for each of the active nodes.
// The pos slice maps rows to tree nodes (-1 = row in a finished leaf).
func (b *treeBuilder) findSplits(tree *Tree, active []int, pos []int) []split {
	local := make(map[int]int, len(active))
	for k, nid := range active {
		local[nid] = k
	}
	best := make([]split, len(active))
	states := make([]scanState, len(active))
	for k := range states {
		states[k].stamp = -1
	}
	var touched []int
	for f, col := range b.cols {
		touched = touched[:0]
		for _, e := range col {
			if pos[e.row] < 0 {
				continue
			}
			k, ok := local[pos[e.row]]
			if !ok {
				continue
			}
			st := &states[k]
			if st.stamp != f {
				*st = scanState{stamp: f}
				touched = append(touched, k)
			}
			st.nzG += b.g[e.row]
			st.nzH += b.h[e.row]
			st.nzCnt++
		}
		for _, e := range col {
			if pos[e.row] < 0 {
				continue
			}
			k, ok := local[pos[e.row]]
			if !ok {
				continue
			}
			st := &states[k]
			nd := &tree.Nodes[active[k]]
			if e.val > 0 && !st.zeroDone {
				b.addZeros(st, nd, &best[k], f)
			}
			b.evalCandidate(st, nd, &best[k], f, e.val)
			st.gl += b.g[e.row]
			st.hl += b.h[e.row]
			st.cnt++
			st.last = e.val
		}
		for _, k := range touched {
			st := &states[k]
			if !st.zeroDone {
				b.addZeros(st, &tree.Nodes[active[k]], &best[k], f)
			}
		}
	}
	return best
}

func (b *treeBuilder) build() Tree {
	numRows := b.x.NumRows()
	root := node{Leaf: true}
	for i := 0; i < numRows; i++ {
		root.G += b.g[i]
		root.H += b.h[i]
		root.Count++
	}
	tree := Tree{Nodes: []node{root}}
	pos := make([]int, numRows)
	active := []int{0}
	for depth := 0; depth < b.params.MaxDepth && len(active) > 0; depth++ {
		splits := b.findSplits(&tree, active, pos)
		var next []int
		for k, nid := range active {
			if !splits[k].found {
				continue
			}
			left := len(tree.Nodes)
			tree.Nodes = append(tree.Nodes, node{Leaf: true}, node{Leaf: true})
			nd := &tree.Nodes[nid]
			nd.Leaf = false
			nd.Feature = splits[k].feature
			nd.Threshold = splits[k].threshold
			nd.Left = left
			nd.Right = left + 1
			next = append(next, left, left+1)
		}
		for i := 0; i < numRows; i++ {
			if pos[i] < 0 {
				continue
			}
			nd := tree.Nodes[pos[i]]
			if nd.Leaf {
				pos[i] = -1
				continue
			}
			child := nd.Right
			if b.x.At(i, nd.Feature) < nd.Threshold {
				child = nd.Left
			}
			pos[i] = child
			tree.Nodes[child].G += b.g[i]
			tree.Nodes[child].H += b.h[i]
			tree.Nodes[child].Count++
		}
		active = next
	}
	tree.finalize(0, b.params)
	return tree
}
