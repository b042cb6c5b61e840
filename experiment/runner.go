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

package experiment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/cache"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/classify"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/cnf"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/dataimport"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/features"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/metrics"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/partition"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/stats"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/vectorize"
)

const (
	StageData        = "data"
	StageSets        = "sets"
	StageVectors     = "vectors"
	StageSetsTenFold = "sets_10fold"

	badgerCacheDir = "cache.badger"
)

// TenFoldVectorsStage returns a stage name of vectors for a fold
// and turn (both zero-based).
func TenFoldVectorsStage(fold, turn int) string {
	return fmt.Sprintf("vectors_10fold_run%d_turn%d", fold+1, turn+1)
}

// OpenStore creates a stage cache based on the configured backend
func OpenStore(conf *cnf.Conf) (cache.Store, error) {
	if conf.CacheBackend == cnf.CacheBackendBadger {
		bs, err := cache.OpenBadgerStore(filepath.Join(conf.ExperimentsDir, badgerCacheDir))
		if err != nil {
			return nil, err
		}
		return bs, nil
	}
	return cache.NewFileStore(conf.ExperimentsDir), nil
}

// Runner executes experiments. Expensive stages (data loading,
// partitioning, vectorization) are cached in a store.
type Runner struct {
	store     cache.Store
	factory   classify.Factory
	recompute bool
}

// NewRunner creates a new Runner. With recompute set, cached stage
// results are not read (but they are still rewritten).
func NewRunner(store cache.Store, factory classify.Factory, recompute bool) *Runner {
	return &Runner{
		store:     store,
		factory:   factory,
		recompute: recompute,
	}
}

// LoadData loads labeled job records of the experiment
func (r *Runner) LoadData(ctx context.Context, exp cnf.Experiment) ([]jobs.JobRecord, error) {
	return cache.RunAndCache(
		r.store,
		exp.StageKey(StageData),
		r.recompute,
		func() ([]jobs.JobRecord, error) {
			return dataimport.LoadData(ctx, exp.DataPath())
		},
	)
}

func (r *Runner) vectorize(
	exp cnf.Experiment,
	sets partition.Sets,
	stage string,
	rnd *rand.Rand,
) (vectorize.Vectors, error) {
	return cache.RunAndCache(
		r.store,
		exp.StageKey(stage),
		r.recompute,
		func() (vectorize.Vectors, error) {
			prepared := features.Prepare(sets, exp, rnd)
			return vectorize.Vectorize(prepared, exp.KBestThresh())
		},
	)
}

func newReport(mode string, exp cnf.Experiment, data []jobs.JobRecord) (Report, error) {
	rate, err := metrics.FlakyRate(data)
	if err != nil {
		return Report{}, fmt.Errorf("failed to calculate baselines: %w", err)
	}
	return Report{
		Mode:      mode,
		FlakyRate: rate,
		Baselines: metrics.Baselines(rate),
		ModelKey:  classify.ParamKey(exp.Beta(), exp.Alpha()),
	}, nil
}

// Baselines evaluates just the closed-form baselines on
// the experiment data.
func (r *Runner) Baselines(ctx context.Context, exp cnf.Experiment) (Report, error) {
	t0 := time.Now()
	data, err := r.LoadData(ctx, exp)
	if err != nil {
		return Report{}, err
	}
	rep, err := newReport("", exp, data)
	if err != nil {
		return rep, err
	}
	rep.Elapsed = time.Since(t0)
	return rep, nil
}

// RunCrossVal trains and evaluates a single model on randomly
// selected train (90%), validation (5%) and test (5%) sets.
func (r *Runner) RunCrossVal(ctx context.Context, exp cnf.Experiment) (Report, error) {
	t0 := time.Now()
	data, err := r.LoadData(ctx, exp)
	if err != nil {
		return Report{}, err
	}
	rep, err := newReport(stats.ModeSingle, exp, data)
	if err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	sets, err := cache.RunAndCache(
		r.store,
		exp.StageKey(StageSets),
		r.recompute,
		func() (partition.Sets, error) {
			return partition.RandomSets(data, exp.NewRand()), nil
		},
	)
	if err != nil {
		return rep, err
	}
	log.Info().
		Int("train", len(sets.Train)).
		Int("valid", len(sets.Valid)).
		Int("test", len(sets.Test)).
		Msg("sets prepared")
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	vectors, err := r.vectorize(exp, sets, StageVectors, exp.RunRand(0))
	if err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	rep.Results, err = classify.TwoStage(vectors, r.factory)
	if err != nil {
		return rep, err
	}
	rep.Elapsed = time.Since(t0)
	return rep, nil
}

// RunTenFoldCrossVal performs the double 10-fold cross validation.
// For each fold, two models are trained with validation and test
// halves swapped. Test labels and predictions of all the 20 runs
// are pooled and each parameterization is evaluated once on the
// pooled data.
func (r *Runner) RunTenFoldCrossVal(ctx context.Context, exp cnf.Experiment) (Report, error) {
	t0 := time.Now()
	data, err := r.LoadData(ctx, exp)
	if err != nil {
		return Report{}, err
	}
	rep, err := newReport(stats.ModeTenFold, exp, data)
	if err != nil {
		return rep, err
	}
	folds, err := cache.RunAndCache(
		r.store,
		exp.StageKey(StageSetsTenFold),
		r.recompute,
		func() (partition.Folds, error) {
			return partition.TenFoldHalves(data, exp.NewRand()), nil
		},
	)
	if err != nil {
		return rep, err
	}

	pool := newPredictionPool()
	bar := progressbar.Default(partition.NumFolds*partition.NumTurns, "double 10-fold cross validation")
	for fold := 0; fold < partition.NumFolds; fold++ {
		for turn := 0; turn < partition.NumTurns; turn++ {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			sets, err := folds.Assemble(fold, turn)
			if err != nil {
				return rep, err
			}
			vectors, err := r.vectorize(
				exp,
				sets,
				TenFoldVectorsStage(fold, turn),
				exp.RunRand(fold*partition.NumTurns+turn+1),
			)
			if err != nil {
				return rep, fmt.Errorf("fold %d, turn %d: %w", fold+1, turn+1, err)
			}
			bundle, err := classify.TwoStage(vectors, r.factory)
			if err != nil {
				return rep, fmt.Errorf("fold %d, turn %d: %w", fold+1, turn+1, err)
			}
			pool.add(bundle, vectors.Test.Y)
			bar.Add(1)
		}
	}
	rep.Results, err = pool.result()
	if err != nil {
		return rep, err
	}
	rep.Elapsed = time.Since(t0)
	return rep, nil
}

// ------------------------

type predictionPool struct {
	y      []int
	bundle classify.PredictionBundle
}

func newPredictionPool() *predictionPool {
	return &predictionPool{bundle: make(classify.PredictionBundle)}
}

func (p *predictionPool) add(bundle classify.PredictionBundle, y []int) {
	p.y = append(p.y, y...)
	for k, out := range bundle {
		curr := p.bundle[k]
		curr.Beta = out.Beta
		curr.Alpha = out.Alpha
		curr.Prob = append(curr.Prob, out.Prob...)
		curr.Pred = append(curr.Pred, out.Pred...)
		p.bundle[k] = curr
	}
}

func (p *predictionPool) result() (classify.PredictionBundle, error) {
	ans := make(classify.PredictionBundle, len(p.bundle))
	for k, out := range p.bundle {
		res, err := metrics.Compute(p.y, out.Pred)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate pooled predictions of %s: %w", k, err)
		}
		out.Result = res
		ans[k] = out
	}
	return ans, nil
}
