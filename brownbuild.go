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
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/fatih/color"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/cnf"
)

const (
	actionRun       = "run"
	actionTenFold   = "tenfold"
	actionBaselines = "baselines"
	actionInspect   = "inspect"
	actionExtract   = "extract"
	actionVersion   = "version"
	actionHelp      = "help"
)

const (
	exitErrorGeneralFailure = iota + 1
	exitErrorInvalidExperiment
	exitErrorFailedToOpenCache
	exitErrorFailedToOpenStatsDB
	exitErrorExperimentFailed
	exitErrorExtractionFailed
)

var (
	version   string
	buildDate string
	gitCommit string
)

// VersionInfo provides a detailed information about the actual build
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
}

func topLevelUsage() {
	fmt.Fprintf(os.Stderr, "BROWNBUILD - flaky CI job prediction experiments\n")
	fmt.Fprintf(os.Stderr, "-----------------------------\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "\t%s\t\t\tshow version info\n", actionVersion)
	fmt.Fprintf(os.Stderr, "\t%s\t\t\trun an experiment with a single random 90/5/5 split\n", actionRun)
	fmt.Fprintf(os.Stderr, "\t%s\t\trun an experiment with the double 10-fold cross validation\n", actionTenFold)
	fmt.Fprintf(os.Stderr, "\t%s\t\tshow closed-form baselines of a dataset\n", actionBaselines)
	fmt.Fprintf(os.Stderr, "\t%s\t\tshow dataset summary\n", actionInspect)
	fmt.Fprintf(os.Stderr, "\t%s\t\tconvert raw job logs into processed word counts\n", actionExtract)
	fmt.Fprintf(os.Stderr, "\nUse `brownbuild help ACTION` for information about a specific action\n\n")
}

func exitWithError(err error, code int) {
	color.New(errColor).Fprintln(os.Stderr, err)
	os.Exit(code)
}

// loadConf reads the process configuration. Without a path,
// default values are used.
func loadConf(confPath string) *cnf.Conf {
	if confPath == "" {
		return &cnf.Conf{}
	}
	return cnf.LoadConfig(confPath)
}

func setup(confPath string) *cnf.Conf {
	conf := loadConf(confPath)
	if conf.Logging.Level == "" {
		conf.Logging.Level = "info"
	}
	logging.SetupLogging(conf.Logging)
	cnf.ValidateAndDefaults(conf)
	return conf
}

func cleanVersionInfo(v string) string {
	return strings.TrimLeft(strings.Trim(v, "'"), "v")
}

// ------------------------

// experimentFlags are shared by all the actions working with
// an experiment. Values set explicitly on the command line override
// the ones from an experiment descriptor file.
type experimentFlags struct {
	fset         *flag.FlagSet
	expFile      *string
	dataPath     *string
	settingName  *string
	ngram        *string
	oversampling *bool
	failMask     *string
	kbestThresh  *int
	alpha        *int
	beta         *int
	seed         *uint64
	recompute    *bool
}

func addExperimentFlags(fset *flag.FlagSet) *experimentFlags {
	return &experimentFlags{
		fset:         fset,
		expFile:      fset.String("exp", "", "experiment descriptor file (.json, .yaml)"),
		dataPath:     fset.String("data", "", "directory with processed job logs"),
		settingName:  fset.String("setting", cnf.DfltSettingName, "experiment setting name (cache subdirectory)"),
		ngram:        fset.String("ngram", "2", "comma-separated n-gram resolutions (1, 2 or 1,2)"),
		oversampling: fset.Bool("oversampling", true, "oversample the training set"),
		failMask:     fset.String("fail-mask", string(cnf.FailMaskTrain), "partitions containing only failures (Train, None, All)"),
		kbestThresh:  fset.Int("kbest", cnf.DfltKBestThresh, "number of selected terms"),
		alpha:        fset.Int("alpha", cnf.DfltAlpha, "decision threshold in percents (multiple of 10)"),
		beta:         fset.Int("beta", cnf.DfltBeta, "stage-2 share of the blended probability in percents (multiple of 10)"),
		seed:         fset.Uint64("seed", 0, "random seed (0 = time-based)"),
		recompute:    fset.Bool("recompute", false, "ignore cached stage results"),
	}
}

func parseNGram(v string) ([]int, error) {
	items := strings.Split(v, ",")
	ans := make([]int, 0, len(items))
	for _, item := range items {
		n, err := strconv.Atoi(strings.TrimSpace(item))
		if err != nil {
			return nil, fmt.Errorf("invalid ngram value %s: %w", v, err)
		}
		ans = append(ans, n)
	}
	return ans, nil
}

func (ef *experimentFlags) experiment() (cnf.Experiment, error) {
	var opts cnf.ExperimentOpts
	if *ef.expFile != "" {
		var err error
		opts, err = cnf.LoadExperimentFile(*ef.expFile)
		if err != nil {
			return cnf.Experiment{}, err
		}
	}
	var err error
	ef.fset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			opts.DataPath = *ef.dataPath
		case "setting":
			opts.SettingName = *ef.settingName
		case "ngram":
			opts.NGram, err = parseNGram(*ef.ngram)
		case "oversampling":
			opts.Oversampling = ef.oversampling
		case "fail-mask":
			opts.FailMask = *ef.failMask
		case "kbest":
			opts.KBestThresh = ef.kbestThresh
		case "alpha":
			opts.Alpha = ef.alpha
		case "beta":
			opts.Beta = ef.beta
		case "seed":
			opts.Seed = *ef.seed
		}
	})
	if err != nil {
		return cnf.Experiment{}, err
	}
	return cnf.NewExperiment(opts)
}

func newExperimentCmd(name, desc string) (*flag.FlagSet, *experimentFlags) {
	cmd := flag.NewFlagSet(name, flag.ExitOnError)
	ef := addExperimentFlags(cmd)
	cmd.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s [options] [config.json]\n\t",
			filepath.Base(os.Args[0]), name)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		cmd.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n%s\n", desc)
	}
	return cmd, ef
}

func main() {
	version := VersionInfo{
		Version:   cleanVersionInfo(version),
		BuildDate: cleanVersionInfo(buildDate),
		GitCommit: cleanVersionInfo(gitCommit),
	}

	cmdRun, runFlags := newExperimentCmd(
		actionRun, "Train and evaluate the two-stage classifier on a random 90/5/5 split")
	cmdTenFold, tenFoldFlags := newExperimentCmd(
		actionTenFold, "Train and evaluate the two-stage classifier using the double 10-fold cross validation")
	cmdBaselines, baselinesFlags := newExperimentCmd(
		actionBaselines, "Show closed-form baselines based on the flaky rate of the dataset")
	cmdInspect, inspectFlags := newExperimentCmd(
		actionInspect, "Show a summary of the dataset")

	cmdExtract := flag.NewFlagSet(actionExtract, flag.ExitOnError)
	extractWorkers := cmdExtract.Int("workers", runtime.NumCPU(), "number of parallel workers")
	cmdExtract.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s [options] rawLogsDir outDir [config.json]\n\t",
			filepath.Base(os.Args[0]), actionExtract)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		cmdExtract.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nNormalize and stem raw job logs and write their unigram and bigram counts\n")
	}

	cmdVersion := flag.NewFlagSet(actionVersion, flag.ExitOnError)
	cmdVersion.Usage = func() {
		cmdVersion.PrintDefaults()
	}

	cmdHelp := flag.NewFlagSet(actionHelp, flag.ExitOnError)
	cmdHelp.Usage = func() {
		cmdHelp.PrintDefaults()
	}

	action := actionHelp
	if len(os.Args) > 1 {
		action = os.Args[1]
	}

	prepare := func(cmd *flag.FlagSet, ef *experimentFlags) (*cnf.Conf, experimentSetup) {
		cmd.Parse(os.Args[2:])
		conf := setup(cmd.Arg(0))
		exp, err := ef.experiment()
		if err != nil {
			exitWithError(err, exitErrorInvalidExperiment)
		}
		return conf, experimentSetup{exp: exp, recompute: *ef.recompute}
	}

	switch action {
	case actionHelp:
		var subj string
		if len(os.Args) > 2 {
			cmdHelp.Parse(os.Args[2:])
			subj = cmdHelp.Arg(0)
		}
		switch subj {
		case actionRun:
			cmdRun.Usage()
		case actionTenFold:
			cmdTenFold.Usage()
		case actionBaselines:
			cmdBaselines.Usage()
		case actionInspect:
			cmdInspect.Usage()
		case actionExtract:
			cmdExtract.Usage()
		default:
			topLevelUsage()
		}
	case actionVersion:
		cmdVersion.Parse(os.Args[2:])
		runActionVersion(version)
	case actionRun:
		conf, es := prepare(cmdRun, runFlags)
		runActionExperiment(conf, es, false)
	case actionTenFold:
		conf, es := prepare(cmdTenFold, tenFoldFlags)
		runActionExperiment(conf, es, true)
	case actionBaselines:
		conf, es := prepare(cmdBaselines, baselinesFlags)
		runActionBaselines(conf, es)
	case actionInspect:
		conf, es := prepare(cmdInspect, inspectFlags)
		runActionInspect(conf, es)
	case actionExtract:
		cmdExtract.Parse(os.Args[2:])
		if cmdExtract.NArg() < 2 {
			cmdExtract.Usage()
			os.Exit(exitErrorGeneralFailure)
		}
		setup(cmdExtract.Arg(2))
		runActionExtract(cmdExtract.Arg(0), cmdExtract.Arg(1), *extractWorkers)
	default:
		fmt.Fprintf(os.Stderr, "Unknown action, please use 'help' to get more information\n")
		os.Exit(exitErrorGeneralFailure)
	}
}
