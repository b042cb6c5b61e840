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

package dataimport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
)

var ErrNotADirectory = errors.New("data path is not a directory")

// LoadStats describes the outcome of a data directory import
type LoadStats struct {
	NumFiles    int
	NumImported int
	NumSkipped  int
}

// LoadRecords reads all processed log files found in dataPath
// (non-recursively, in lexicographic order). Files with non-matching
// names are ignored, files which cannot be parsed are skipped with
// a warning.
func LoadRecords(ctx context.Context, dataPath string) ([]jobs.JobRecord, LoadStats, error) {
	var stats LoadStats
	isDir, err := fs.IsDir(dataPath)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to load records: %w", err)
	}
	if !isDir {
		return nil, stats, fmt.Errorf("failed to load records from %s: %w", dataPath, ErrNotADirectory)
	}
	entries, err := os.ReadDir(dataPath)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to load records: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stats.NumFiles++
		if !IsProcessedLog(entry.Name()) {
			log.Warn().Str("file", entry.Name()).Msg("unexpected filename, skipping")
			stats.NumSkipped++
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)

	ans := make([]jobs.JobRecord, 0, len(names))
	bar := progressbar.Default(int64(len(names)), "loading job logs")
	for _, name := range names {
		select {
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		default:
		}
		rec, err := ReadJobFile(filepath.Join(dataPath, name))
		bar.Add(1)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("failed to read job file, skipping")
			stats.NumSkipped++
			continue
		}
		ans = append(ans, rec)
		stats.NumImported++
	}
	return ans, stats, nil
}

// LoadData loads all the job records and labels them
// by their flakiness.
func LoadData(ctx context.Context, dataPath string) ([]jobs.JobRecord, error) {
	t0 := time.Now()
	records, stats, err := LoadRecords(ctx, dataPath)
	if err != nil {
		return nil, err
	}
	labeled, err := jobs.LabelFlakiness(records)
	if err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	log.Info().
		Str("path", dataPath).
		Int("numFiles", stats.NumFiles).
		Int("numImported", stats.NumImported).
		Int("numSkipped", stats.NumSkipped).
		Float64("elapsedSec", time.Since(t0).Seconds()).
		Msg("job data loaded")
	return labeled, nil
}
