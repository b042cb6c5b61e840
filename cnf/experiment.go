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

package cnf

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	DfltSettingName = "default"
	DfltKBestThresh = 300
	DfltAlpha       = 70
	DfltBeta        = 10
)

// FailMask specifies which partitions keep only failing jobs
type FailMask string

const (
	FailMaskTrain FailMask = "Train"
	FailMaskNone  FailMask = "None"
	FailMaskAll   FailMask = "All"
)

var (
	ErrInvalidExperiment = errors.New("invalid experiment")

	experimentValidate *validator.Validate
)

func init() {
	experimentValidate = validator.New()
	_ = experimentValidate.RegisterValidation("mult10", validateMultipleOf10)
	_ = experimentValidate.RegisterValidation("ngramset", validateNGramSet)
	_ = experimentValidate.RegisterValidation("settingname", validateSettingName)
}

func validateMultipleOf10(fl validator.FieldLevel) bool {
	return fl.Field().Int()%10 == 0
}

// validateNGramSet accepts [1], [2] and [1, 2] (in any order)
func validateNGramSet(fl validator.FieldLevel) bool {
	v, ok := fl.Field().Interface().([]int)
	if !ok || len(v) == 0 || len(v) > 2 {
		return false
	}
	tmp := slices.Clone(v)
	slices.Sort(tmp)
	return slices.Equal(tmp, []int{1}) ||
		slices.Equal(tmp, []int{2}) ||
		slices.Equal(tmp, []int{1, 2})
}

// setting name is used as a directory name
func validateSettingName(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	return v != "." && v != ".." && !strings.ContainsAny(v, `/\`)
}

// ExperimentOpts is a raw experiment descriptor as provided by
// a user (descriptor file or CLI flags). Zero values mean "use default".
type ExperimentOpts struct {
	DataPath     string `json:"data_path" yaml:"data_path"`
	SettingName  string `json:"setting_name" yaml:"setting_name"`
	NGram        []int  `json:"ngram" yaml:"ngram"`
	Oversampling *bool  `json:"oversampling" yaml:"oversampling"`
	FailMask     string `json:"fail_mask" yaml:"fail_mask"`
	KBestThresh  *int   `json:"kbest_thresh" yaml:"kbest_thresh"`
	Alpha        *int   `json:"alpha" yaml:"alpha"`
	Beta         *int   `json:"beta" yaml:"beta"`

	// Seed initializes all the random number generators.
	// Zero means a time-based seed.
	Seed uint64 `json:"seed" yaml:"seed"`
}

type experimentFields struct {
	DataPath    string   `validate:"required"`
	SettingName string   `validate:"required,settingname"`
	NGram       []int    `validate:"ngramset"`
	FailMask    FailMask `validate:"oneof=Train None All"`
	KBestThresh int      `validate:"gt=0"`
	Alpha       int      `validate:"gte=0,lte=100,mult10"`
	Beta        int      `validate:"gte=10,lte=90,mult10"`
}

// Experiment is a validated experiment setup. Once created,
// it cannot be changed.
type Experiment struct {
	fields       experimentFields
	oversampling bool
	seed         uint64
}

// NewExperiment applies defaults to opts and validates the result.
// Any invalid value produces an error wrapping ErrInvalidExperiment.
func NewExperiment(opts ExperimentOpts) (Experiment, error) {
	fields := experimentFields{
		DataPath:    opts.DataPath,
		SettingName: opts.SettingName,
		NGram:       slices.Clone(opts.NGram),
		FailMask:    FailMask(opts.FailMask),
		KBestThresh: DfltKBestThresh,
		Alpha:       DfltAlpha,
		Beta:        DfltBeta,
	}
	if fields.SettingName == "" {
		fields.SettingName = DfltSettingName
	}
	if len(fields.NGram) == 0 {
		fields.NGram = []int{2}
	}
	slices.Sort(fields.NGram)
	if fields.FailMask == "" {
		fields.FailMask = FailMaskTrain
	}
	if opts.KBestThresh != nil {
		fields.KBestThresh = *opts.KBestThresh
	}
	if opts.Alpha != nil {
		fields.Alpha = *opts.Alpha
	}
	if opts.Beta != nil {
		fields.Beta = *opts.Beta
	}
	if err := experimentValidate.Struct(fields); err != nil {
		return Experiment{}, fmt.Errorf("%w: %s", ErrInvalidExperiment, err)
	}
	ans := Experiment{
		fields:       fields,
		oversampling: true,
		seed:         opts.Seed,
	}
	if opts.Oversampling != nil {
		ans.oversampling = *opts.Oversampling
	}
	if ans.seed == 0 {
		ans.seed = uint64(time.Now().UnixNano())
		log.Info().Uint64("seed", ans.seed).Msg("random seed not specified, using time-based one")
	}
	return ans, nil
}

func (e Experiment) DataPath() string { return e.fields.DataPath }

func (e Experiment) SettingName() string { return e.fields.SettingName }

// NGram returns sorted n-gram resolutions used for features
func (e Experiment) NGram() []int { return slices.Clone(e.fields.NGram) }

func (e Experiment) Oversampling() bool { return e.oversampling }

func (e Experiment) FailMask() FailMask { return e.fields.FailMask }

func (e Experiment) KBestThresh() int { return e.fields.KBestThresh }

func (e Experiment) Alpha() int { return e.fields.Alpha }

func (e Experiment) Beta() int { return e.fields.Beta }

func (e Experiment) Seed() uint64 { return e.seed }

// NewRand creates a new random generator initialized by the
// experiment's seed. Each call returns an identical generator.
// Its stream is reserved, i.e. no RunRand generator replicates it.
func (e Experiment) NewRand() *rand.Rand {
	return rand.New(rand.NewPCG(e.seed, 0))
}

// RunRand creates a random generator for a numbered run (e.g. a fold
// and turn of cross validation). Generators of different runs produce
// different sequences, each independent of how many values other
// stages have consumed.
func (e Experiment) RunRand(run int) *rand.Rand {
	return rand.New(rand.NewPCG(e.seed, uint64(run)+1))
}

// StageKey returns an address of a cached pipeline stage result.
// The key is relative to the experiments directory.
func (e Experiment) StageKey(stage string) string {
	return path.Join(e.fields.SettingName, stage)
}

// LoadExperimentFile reads an experiment descriptor from a JSON
// or YAML file (based on the file extension).
func LoadExperimentFile(filePath string) (ExperimentOpts, error) {
	var ans ExperimentOpts
	rawData, err := os.ReadFile(filePath)
	if err != nil {
		return ans, fmt.Errorf("failed to load experiment file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(rawData, &ans)
	case ".json":
		err = json.Unmarshal(rawData, &ans)
	default:
		return ans, fmt.Errorf("failed to load experiment file %s: unsupported format", filePath)
	}
	if err != nil {
		return ans, fmt.Errorf("failed to parse experiment file %s: %w", filePath, err)
	}
	return ans, nil
}
