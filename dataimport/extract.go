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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/czcorpus/cnc-gokit/collections"
	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/kljensen/snowball/english"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/jobs"
	"golang.org/x/sync/errgroup"
)

const (
	sectionSeparator = "#####"
	processedSuffix  = "-processed.csv"

	PlaceholderURL    = "hypothesisurlforge"
	PlaceholderPath   = "hypothesispathforge"
	PlaceholderNumLet = "hypothesisnumletforge"
)

var (
	// <date: 6 parts>_<jobID>_<commitID>_<status>[_<jobName>][-processed].log
	rawFileRegexp = regexp.MustCompile(`^((.*_.*_.*_.*_.*_.*)_(.*)_(.*)_([01])(_(.*))?)(-processed)?\.log$`)

	ErrRawFilenameMismatch = errors.New("filename does not match raw log pattern")
)

type replaceRule struct {
	expr *regexp.Regexp
	repl string
}

// normRules are applied in the listed order. Later rules rely
// on URLs and paths being already replaced.
var normRules = []replaceRule{
	{regexp.MustCompile(`https?://[^\s]+`), PlaceholderURL},
	{regexp.MustCompile(`[^\s]+[/\\][^\s]+`), PlaceholderPath},
	{regexp.MustCompile(`[^\s]+\.[^\s]+`), PlaceholderPath},
	{regexp.MustCompile(`[\d\w]*\w\d[\d\w]*`), PlaceholderNumLet},
	{regexp.MustCompile(`[\d\w]+\d\w[\d\w]*`), PlaceholderNumLet},
	{regexp.MustCompile(`[_\W]+`), " "},
	{regexp.MustCompile(`([A-Z]+)`), " $1"}, // camelCase splitting
}

// http://xpo6.com/list-of-english-stop-words/
var stopWords = func() map[string]bool {
	words := strings.Fields(`a about above across after afterwards again against
	all almost alone along already also although always am among amongst amoungst
	amount an and another any anyhow anyone anything anyway anywhere are around as
	at back be became because become becomes becoming been before beforehand behind
	being below beside besides between beyond bill both bottom but by call can
	cannot cant co con could couldnt cry de describe detail do done down due during
	each eg eight either eleven else elsewhere empty enough etc even ever every
	everyone everything everywhere except few fifteen fify fill find fire first five
	for former formerly forty found four from front full further get give go had
	has hasnt have he hence her here hereafter hereby herein hereupon hers herself
	him himself his how however hundred ie if in inc indeed interest into is it its
	itself keep last latter latterly least less ltd made many may me meanwhile might
	mill mine more moreover most mostly move much must my myself name namely neither
	never nevertheless next nine no nobody none noone nor not nothing now nowhere of
	off often on once one only onto or other others otherwise our ours ourselves
	out over own part per perhaps please put rather re same see seem seemed seeming
	seems serious several she should show side since sincere six sixty so some
	somehow someone something sometime sometimes somewhere still such system take
	ten than that the their them themselves then thence there thereafter thereby
	therefore therein thereupon these they thick thin third this those though three
	through throughout thru thus to together too top toward towards twelve twenty
	two un under until up upon us very via was we well were what whatever when
	whence whenever where whereafter whereas whereby wherein whereupon wherever
	whether which while whither who whoever whole whom whose why will with within
	without would yet you your yours yourself yourselves`)
	ans := make(map[string]bool, len(words))
	for _, w := range words {
		ans[w] = true
	}
	return ans
}()

// ExtractStats describes the outcome of a raw log directory extraction
type ExtractStats struct {
	NumFiles     int
	NumExtracted int
	NumSkipped   int
}

// ProcessedFilename returns a name of the word count file produced
// from a raw log file.
func ProcessedFilename(rawPath string) (string, error) {
	name := filepath.Base(rawPath)
	m := rawFileRegexp.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("failed to parse %s: %w", name, ErrRawFilenameMismatch)
	}
	return m[1] + processedSuffix, nil
}

// ExtractTerms normalizes a raw log (URLs, paths and tokens mixing
// digits with letters are replaced by placeholders) and splits it into
// lowercase stemmed terms. Stop words and terms shorter than
// minTermLength are removed.
func ExtractTerms(content string) []string {
	for _, rule := range normRules {
		content = rule.expr.ReplaceAllString(content, rule.repl)
	}
	fields := strings.Fields(strings.ToLower(content))
	ans := make([]string, 0, len(fields))
	for _, field := range fields {
		term := english.Stem(field, true)
		if len(term) < minTermLength || stopWords[term] {
			continue
		}
		ans = append(ans, term)
	}
	return ans
}

// CountNGrams counts n-grams of terms for n = 1...maxNGram.
// Terms of an n-gram are joined by an underscore.
func CountNGrams(terms []string, maxNGram int) []jobs.WordCount {
	ans := make([]jobs.WordCount, maxNGram)
	for n := 1; n <= maxNGram; n++ {
		ans[n-1] = make(jobs.WordCount)
		for i := 0; i+n <= len(terms); i++ {
			ans[n-1][strings.Join(terms[i:i+n], "_")]++
		}
	}
	return ans
}

// WriteWordCounts writes n-gram counts as `term,count` rows (sorted
// by term) with sections of different resolutions separated by `#`.
func WriteWordCounts(w io.Writer, counts []jobs.WordCount) error {
	for i, wc := range counts {
		if i > 0 {
			if _, err := io.WriteString(w, sectionSeparator); err != nil {
				return err
			}
		}
		entries := collections.MapToEntriesSorted(
			wc,
			func(a, b collections.MapEntry[string, int]) int {
				return strings.Compare(a.K, b.K)
			},
		)
		for _, entry := range entries {
			if _, err := fmt.Fprintf(w, "%s,%d\n", entry.K, entry.V); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExtractFile converts a raw log file into a processed word count
// file in outDir. The path of the created file is returned.
func ExtractFile(rawPath, outDir string) (string, error) {
	outName, err := ProcessedFilename(rawPath)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(rawPath)
	if err != nil {
		return "", fmt.Errorf("failed to read raw log: %w", err)
	}
	var buff bytes.Buffer
	counts := CountNGrams(ExtractTerms(string(content)), jobs.MaxNGram)
	if err := WriteWordCounts(&buff, counts); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", rawPath, err)
	}
	outPath := filepath.Join(outDir, outName)
	if err := os.WriteFile(outPath, buff.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write processed log: %w", err)
	}
	return outPath, nil
}

// ExtractDir converts all the raw log files found in srcDir
// (non-recursively) into processed files in outDir using numWorkers
// parallel workers. Files with non-matching names are ignored.
// The first failed file stops the extraction.
func ExtractDir(ctx context.Context, srcDir, outDir string, numWorkers int) (ExtractStats, error) {
	var stats ExtractStats
	t0 := time.Now()
	isDir, err := fs.IsDir(srcDir)
	if err != nil {
		return stats, fmt.Errorf("failed to extract logs: %w", err)
	}
	if !isDir {
		return stats, fmt.Errorf("failed to extract logs from %s: %w", srcDir, ErrNotADirectory)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return stats, fmt.Errorf("failed to create output directory: %w", err)
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return stats, fmt.Errorf("failed to extract logs: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stats.NumFiles++
		if !rawFileRegexp.MatchString(entry.Name()) {
			log.Warn().Str("file", entry.Name()).Msg("unexpected filename, skipping")
			stats.NumSkipped++
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)

	var numExtracted atomic.Int64
	bar := progressbar.Default(int64(len(names)), "extracting job logs")
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(numWorkers, 1))
	for _, name := range names {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			_, err := ExtractFile(filepath.Join(srcDir, name), outDir)
			bar.Add(1)
			if err != nil {
				return err
			}
			numExtracted.Add(1)
			return nil
		})
	}
	err = g.Wait()
	stats.NumExtracted = int(numExtracted.Load())
	if err != nil {
		return stats, err
	}
	log.Info().
		Str("srcDir", srcDir).
		Str("outDir", outDir).
		Int("numFiles", stats.NumFiles).
		Int("numExtracted", stats.NumExtracted).
		Int("numSkipped", stats.NumSkipped).
		Float64("elapsedSec", time.Since(t0).Seconds()).
		Msg("job logs extracted")
	return stats, nil
}
