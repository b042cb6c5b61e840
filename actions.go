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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/cache"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/classify"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/classify/gbt"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/cnf"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/dataimport"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/experiment"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/stats"
)

const (
	errColor = color.FgHiRed
)

type experimentSetup struct {
	exp       cnf.Experiment
	recompute bool
}

func openStore(conf *cnf.Conf) cache.Store {
	store, err := experiment.OpenStore(conf)
	if err != nil {
		exitWithError(err, exitErrorFailedToOpenCache)
	}
	return store
}

func storeResults(conf *cnf.Conf, exp cnf.Experiment, rep experiment.Report) {
	if conf.StatsDBPath == "" {
		return
	}
	db, err := stats.NewDatabase(conf.StatsDBPath)
	if err != nil {
		exitWithError(err, exitErrorFailedToOpenStatsDB)
	}
	defer db.Close()
	if err := db.Init(); err != nil {
		exitWithError(err, exitErrorFailedToOpenStatsDB)
	}
	runID, err := experiment.StoreReport(db, exp, rep)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		return
	}
	log.Info().
		Str("runId", runID).
		Str("database", conf.StatsDBPath).
		Msg("stored run results")
}

func runActionExperiment(conf *cnf.Conf, es experimentSetup, tenFold bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore(conf)
	defer store.Close()
	runner := experiment.NewRunner(store, classify.GBTFactory(gbt.DefaultParams()), es.recompute)
	var rep experiment.Report
	var err error
	if tenFold {
		rep, err = runner.RunTenFoldCrossVal(ctx, es.exp)

	} else {
		rep, err = runner.RunCrossVal(ctx, es.exp)
	}
	if err != nil {
		store.Close()
		exitWithError(err, exitErrorExperimentFailed)
	}
	experiment.WriteReport(os.Stdout, rep)
	storeResults(conf, es.exp, rep)
}

func runActionBaselines(conf *cnf.Conf, es experimentSetup) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore(conf)
	defer store.Close()
	runner := experiment.NewRunner(store, nil, es.recompute)
	rep, err := runner.Baselines(ctx, es.exp)
	if err != nil {
		store.Close()
		exitWithError(err, exitErrorExperimentFailed)
	}
	experiment.WriteReport(os.Stdout, rep)
}

func runActionInspect(conf *cnf.Conf, es experimentSetup) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore(conf)
	defer store.Close()
	runner := experiment.NewRunner(store, nil, es.recompute)
	data, err := runner.LoadData(ctx, es.exp)
	if err != nil {
		store.Close()
		exitWithError(err, exitErrorExperimentFailed)
	}
	summary, err := experiment.Summarize(data)
	if err != nil {
		store.Close()
		exitWithError(err, exitErrorExperimentFailed)
	}
	experiment.WriteSummary(os.Stdout, summary)
}

func runActionExtract(srcDir, outDir string, numWorkers int) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	est, err := dataimport.ExtractDir(ctx, srcDir, outDir, numWorkers)
	if err != nil {
		exitWithError(err, exitErrorExtractionFailed)
	}
	fmt.Fprintf(
		os.Stderr, "extracted %d of %d files into %s (skipped: %d)\n",
		est.NumExtracted, est.NumFiles, outDir, est.NumSkipped)
}

func runActionVersion(ver VersionInfo) {
	fmt.Fprintln(os.Stderr, "BrownBuild version: ", ver)
}
