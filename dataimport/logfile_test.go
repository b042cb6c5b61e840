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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
)

func TestParseFilename(t *testing.T) {
	info, err := ParseFilename("2019_03_04_10_20_30_job123_abcdef_1_unit-tests-processed.csv")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 3, 4, 10, 20, 30, 0, time.UTC), info.Date)
	assert.Equal(t, "job123", info.JobID)
	assert.Equal(t, "abcdef", info.CommitID)
	assert.Equal(t, jobs.StatusFail, info.Status)
	assert.Equal(t, "unit-tests", info.JobName)
}

func TestParseFilenameNoJobName(t *testing.T) {
	info, err := ParseFilename("/data/2019_03_04_10_20_30_job123_abcdef_0-processed.csv")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", info.CommitID)
	assert.Equal(t, jobs.StatusPass, info.Status)
	assert.Equal(t, "", info.JobName)
}

func TestParseFilenameMismatch(t *testing.T) {
	_, err := ParseFilename("readme.txt")
	assert.ErrorIs(t, err, ErrFilenameMismatch)
	_, err = ParseFilename("2019_03_04_10_20_30_job_commit_3-processed.csv")
	assert.ErrorIs(t, err, ErrFilenameMismatch)
}

func TestParseWordCounts(t *testing.T) {
	src := "#error,3\nok,10\nwarning,x\ntimeout,2,1\n#error timeout,1\n#ignored,5\n"
	counts, err := ParseWordCounts(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, counts, jobs.MaxNGram)
	assert.Equal(t, jobs.WordCount{"error": 3}, counts[0])
	assert.Equal(t, jobs.WordCount{"error timeout": 1}, counts[1])
}

func TestParseWordCountsSingleSection(t *testing.T) {
	counts, err := ParseWordCounts(strings.NewReader("failure,4\n"))
	require.NoError(t, err)
	assert.Equal(t, jobs.WordCount{"failure": 4}, counts[0])
	assert.Empty(t, counts[1])
}

func TestLoadData(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"2019_03_04_10_20_30_j1_c1_1_build-processed.csv": "#error,3\n#error exit,1\n",
		"2019_03_04_10_25_30_j2_c1_0_build-processed.csv": "#success,1\n",
		"2019_03_04_11_00_00_j3_c2_1_build-processed.csv": "#error,1\n",
		"notes.txt": "whatever",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	records, err := LoadData(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "j1", records[0].JobID)
	assert.Equal(t, jobs.LabelFlaky, records[0].Flaky)
	assert.Equal(t, jobs.LabelFlaky, records[1].Flaky)
	assert.Equal(t, jobs.LabelSafe, records[2].Flaky)
	assert.Equal(t, 1, records[0].WordCount(2)["error exit"])
}

func TestLoadDataNotDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	_, err := LoadData(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotADirectory)
}
