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
	"os"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/rs/zerolog/log"
)

const (
	dfltExperimentsDir = "experiments"
	dfltLogLevel       = "info"

	CacheBackendFile   = "file"
	CacheBackendBadger = "badger"
)

// Conf is a process-wide configuration. Experiment settings
// are handled separately (see Experiment).
type Conf struct {
	srcPath string
	Logging logging.LoggingConf `json:"logging"`

	// ExperimentsDir is a root directory for cached stage results.
	// Each experiment setting has its own subdirectory.
	ExperimentsDir string `json:"experimentsDir"`

	// CacheBackend is either "file" (one file per stage)
	// or "badger" (a single key-value database in ExperimentsDir)
	CacheBackend string `json:"cacheBackend"`

	// StatsDBPath is an optional SQLite database for storing
	// evaluation results of experiment runs.
	StatsDBPath string `json:"statsDbPath"`
}

func (conf *Conf) SrcPath() string {
	return conf.srcPath
}

func LoadConfig(path string) *Conf {
	if path == "" {
		log.Fatal().Msg("Cannot load config - path not specified")
	}
	rawData, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	var conf Conf
	conf.srcPath = path
	err = json.Unmarshal(rawData, &conf)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	return &conf
}

func ValidateAndDefaults(conf *Conf) {
	if conf.Logging.Level == "" {
		conf.Logging.Level = dfltLogLevel
	}
	if conf.ExperimentsDir == "" {
		conf.ExperimentsDir = dfltExperimentsDir
		log.Warn().
			Str("experimentsDir", dfltExperimentsDir).
			Msg("experimentsDir not specified, using default")
	}
	switch conf.CacheBackend {
	case "":
		conf.CacheBackend = CacheBackendFile
	case CacheBackendFile, CacheBackendBadger:
	default:
		log.Fatal().Str("cacheBackend", conf.CacheBackend).Msg("invalid cache backend")
	}
	if conf.StatsDBPath == "" {
		log.Warn().Msg("statsDbPath not specified, run results will not be stored")
	}
}
