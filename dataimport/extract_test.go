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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kljensen/snowball/english"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
)

const (
	rawLog1 = "The connection FAILED: see https://ci.example.com/job/12 ok\n" +
		"loading /usr/lib/libfoo.so build42 connectionError\n" +
		"connection failed again\n"
	rawLog2 = "Tests passed\nall tests passed in 3.5s\n"
)

func TestProcessedFilename(t *testing.T) {
	name, err := ProcessedFilename("/logs/2019_03_04_10_20_30_job1_abc_1_unit-tests.log")
	require.NoError(t, err)
	assert.Equal(t, "2019_03_04_10_20_30_job1_abc_1_unit-tests-processed.csv", name)
	assert.True(t, IsProcessedLog(name))

	name, err = ProcessedFilename("2019_03_04_10_20_30_job1_abc_0-processed.log")
	require.NoError(t, err)
	assert.Equal(t, "2019_03_04_10_20_30_job1_abc_0-processed.csv", name)

	_, err = ProcessedFilename("README.txt")
	assert.ErrorIs(t, err, ErrRawFilenameMismatch)
}

func TestExtractTerms(t *testing.T) {
	terms := ExtractTerms(rawLog1)
	assert.Contains(t, terms, "connect")
	assert.Contains(t, terms, "fail")
	assert.Contains(t, terms, "error")
	assert.Contains(t, terms, english.Stem(PlaceholderURL, true))
	assert.Contains(t, terms, english.Stem(PlaceholderPath, true))
	assert.Contains(t, terms, english.Stem(PlaceholderNumLet, true))
	for _, stopWord := range []string{"the", "see", "again"} {
		assert.NotContains(t, terms, stopWord)
	}
	for _, term := range terms {
		assert.GreaterOrEqual(t, len(term), minTermLength)
	}
	assert.NotContains(t, terms, "ok")
	assert.Empty(t, ExtractTerms("is it ok? no\n"))
}

func TestCountNGrams(t *testing.T) {
	counts := CountNGrams([]string{"connect", "fail", "connect"}, 2)
	assert.Equal(t, []jobs.WordCount{
		{"connect": 2, "fail": 1},
		{"connect_fail": 1, "fail_connect": 1},
	}, counts)

	counts = CountNGrams([]string{"fail"}, 2)
	assert.Equal(t, []jobs.WordCount{{"fail": 1}, {}}, counts)
}

func TestWriteWordCounts(t *testing.T) {
	var buff bytes.Buffer
	require.NoError(t, WriteWordCounts(&buff, []jobs.WordCount{
		{"fail": 1, "connect": 2},
		{"connect_fail": 1},
	}))
	assert.Equal(t, "connect,2\nfail,1\n#####connect_fail,1\n", buff.String())

	parsed, err := ParseWordCounts(&buff)
	require.NoError(t, err)
	assert.Equal(t, jobs.WordCount{"connect": 2, "fail": 1}, parsed[0])
	assert.Equal(t, jobs.WordCount{"connect_fail": 1}, parsed[1])
}

func TestExtractDirRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "processed")
	raw := map[string]string{
		"2019_03_04_10_20_30_job1_abc_1_unit.log": rawLog1,
		"2019_03_04_11_20_30_job2_abc_0.log":      rawLog2,
	}
	for name, content := range raw {
		require.NoError(t, os.WriteFile(filepath.Join(srcDir, name), []byte(content), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "README.txt"), []byte("x"), 0644))

	stats, err := ExtractDir(context.Background(), srcDir, outDir, 2)
	require.NoError(t, err)
	assert.Equal(t, ExtractStats{NumFiles: 3, NumExtracted: 2, NumSkipped: 1}, stats)

	for name, content := range raw {
		outName, err := ProcessedFilename(name)
		require.NoError(t, err)
		f, err := os.Open(filepath.Join(outDir, outName))
		require.NoError(t, err)
		parsed, err := ParseWordCounts(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, CountNGrams(ExtractTerms(content), jobs.MaxNGram), parsed, name)
	}

	records, loadStats, err := LoadRecords(context.Background(), outDir)
	require.NoError(t, err)
	assert.Equal(t, 2, loadStats.NumImported)
	require.Len(t, records, 2)
	assert.Equal(t, "job1", records[0].JobID)
	assert.Equal(t, jobs.StatusFail, records[0].Status)
	assert.Equal(t, "unit", records[0].JobName)
	assert.Equal(t, 3, records[0].WordCounts[0]["connect"])
	assert.Equal(t, 2, records[0].WordCounts[1]["connect_fail"])
	assert.Equal(t, jobs.StatusPass, records[1].Status)
}

func TestExtractDirCanceled(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(srcDir, "2019_03_04_10_20_30_job1_abc_1.log"), []byte(rawLog1), 0644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ExtractDir(ctx, srcDir, t.TempDir(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractDirNotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.log")
	require.NoError(t, os.WriteFile(path, []byte(rawLog1), 0644))
	_, err := ExtractDir(context.Background(), path, t.TempDir(), 1)
	assert.ErrorIs(t, err, ErrNotADirectory)
}
