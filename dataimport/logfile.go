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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
)

const (
	dateLayout = "2006_01_02_15_04_05"

	// terms of this length or shorter are considered noise
	minTermLength = 3
)

var (
	// <date: 6 parts>_<jobID>_<commitID>_<status>[_<jobName>]-processed.csv
	srcFileRegexp = regexp.MustCompile(`^((.*_.*_.*_.*_.*_.*)_(.*)_(.*)_([01])(_(.*))?)-processed\.csv$`)

	ErrFilenameMismatch = errors.New("filename does not match processed log pattern")
)

// FileInfo contains job properties encoded in a processed log filename.
type FileInfo struct {
	Date     time.Time
	JobID    string
	CommitID string
	Status   jobs.Status
	JobName  string
}

// ParseFilename extracts job properties from a processed log filename.
// Both a bare filename and a path are accepted.
func ParseFilename(name string) (FileInfo, error) {
	idx := strings.LastIndexByte(name, os.PathSeparator)
	if idx >= 0 {
		name = name[idx+1:]
	}
	m := srcFileRegexp.FindStringSubmatch(name)
	if m == nil {
		return FileInfo{}, fmt.Errorf("failed to parse %s: %w", name, ErrFilenameMismatch)
	}
	date, err := time.Parse(dateLayout, m[2])
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to parse date in %s: %w", name, err)
	}
	status := jobs.StatusPass
	if m[5] == "1" {
		status = jobs.StatusFail
	}
	return FileInfo{
		Date:     date,
		JobID:    m[3],
		CommitID: m[4],
		Status:   status,
		JobName:  m[7],
	}, nil
}

// IsProcessedLog tells whether a filename looks like a processed log
func IsProcessedLog(name string) bool {
	return srcFileRegexp.MatchString(name)
}

// ParseWordCounts reads `#`-separated sections of `term,count` rows.
// N-th non-empty section contains N-gram counts. Only the first
// jobs.MaxNGram sections are used, missing ones are returned as empty
// maps. Rows with an unexpected number of columns, a short term or
// a non-numeric count are skipped.
func ParseWordCounts(r io.Reader) ([]jobs.WordCount, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("failed to read word counts: %w", err)
	}
	ans := make([]jobs.WordCount, jobs.MaxNGram)
	for i := range ans {
		ans[i] = make(jobs.WordCount)
	}
	var resolution int
	for _, section := range strings.Split(string(data), "#") {
		if section == "" {
			continue
		}
		if resolution >= jobs.MaxNGram {
			break
		}
		for _, line := range strings.Split(section, "\n") {
			row := strings.Split(line, ",")
			if len(row) != 2 || len(row[0]) < minTermLength {
				continue
			}
			cnt, err := strconv.Atoi(strings.TrimSpace(row[1]))
			if err != nil {
				continue
			}
			ans[resolution][row[0]] = cnt
		}
		resolution++
	}
	return ans, nil
}

// ReadJobFile loads a single processed log file into a job record.
// The record is not labeled yet.
func ReadJobFile(path string) (jobs.JobRecord, error) {
	info, err := ParseFilename(path)
	if err != nil {
		return jobs.JobRecord{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return jobs.JobRecord{}, fmt.Errorf("failed to open job file: %w", err)
	}
	defer f.Close()
	counts, err := ParseWordCounts(f)
	if err != nil {
		return jobs.JobRecord{}, fmt.Errorf("failed to load job file %s: %w", path, err)
	}
	return jobs.JobRecord{
		Date:       info.Date,
		JobID:      info.JobID,
		CommitID:   info.CommitID,
		Status:     info.Status,
		JobName:    info.JobName,
		Filename:   path,
		WordCounts: counts,
	}, nil
}
