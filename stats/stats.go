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

package stats

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

var ErrNoRuns = errors.New("no experiment runs stored")

const (
	ModeSingle  = "single"
	ModeTenFold = "tenfold"
)

// RunRecord describes a single experiment execution
type RunRecord struct {
	ID          string
	Datetime    int64
	Mode        string
	SettingName string
	DataPath    string
	Seed        uint64
	Alpha       int
	Beta        int
	TotalTime   float64
}

// MetricsRecord contains evaluation of a single (beta, alpha)
// parameterization of a run
type MetricsRecord struct {
	RunID       string
	ParamKey    string
	Beta        int
	Alpha       int
	Accuracy    float64
	Precision   float64
	Recall      float64
	F1          float64
	Specificity float64
}

type Database struct {
	db *sql.DB
}

func (database *Database) createExperimentRunTable() error {
	_, err := database.db.Exec(
		"CREATE TABLE experiment_run (" +
			"id TEXT PRIMARY KEY NOT NULL, " +
			"datetime INTEGER NOT NULL, " +
			"mode TEXT NOT NULL, " +
			"setting_name TEXT NOT NULL, " +
			"data_path TEXT NOT NULL, " +
			"seed INTEGER NOT NULL, " +
			"alpha INTEGER NOT NULL, " +
			"beta INTEGER NOT NULL, " +
			"total_time FLOAT" +
			")",
	)
	if err != nil {
		return fmt.Errorf("failed to create table experiment_run: %w", err)
	}
	log.Info().Msg("created table `experiment_run`")
	return nil
}

func (database *Database) createRunMetricsTable() error {
	_, err := database.db.Exec(
		"CREATE TABLE run_metrics (" +
			"run_id TEXT NOT NULL, " +
			"param_key TEXT NOT NULL, " +
			"beta INTEGER NOT NULL, " +
			"alpha INTEGER NOT NULL, " +
			"accuracy FLOAT NOT NULL, " +
			"precision FLOAT NOT NULL, " +
			"recall FLOAT NOT NULL, " +
			"f1 FLOAT NOT NULL, " +
			"specificity FLOAT NOT NULL, " +
			"PRIMARY KEY(run_id, param_key), " +
			"FOREIGN KEY(run_id) REFERENCES experiment_run(id)" +
			")",
	)
	if err != nil {
		return fmt.Errorf("failed to create table run_metrics: %w", err)
	}
	log.Info().Msg("created table `run_metrics`")
	return nil
}

func (database *Database) tableExists(tn string) (bool, error) {
	ans := database.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", tn)
	var nm sql.NullString
	err := ans.Scan(&nm)
	if err == sql.ErrNoRows {
		return false, nil

	} else if err != nil {
		return false, fmt.Errorf("failed to determine existence of table %s: %w", tn, err)
	}
	return true, nil
}

// Init creates missing tables
func (database *Database) Init() error {
	tables := []struct {
		name   string
		create func() error
	}{
		{"experiment_run", database.createExperimentRunTable},
		{"run_metrics", database.createRunMetricsTable},
	}
	for _, tbl := range tables {
		ex, err := database.tableExists(tbl.name)
		if err != nil {
			return fmt.Errorf("failed to init table %s: %w", tbl.name, err)
		}
		if ex {
			log.Debug().Str("table", tbl.name).Msg("table already exists")
			continue
		}
		if err := tbl.create(); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun stores a new run and returns its generated ID.
// A zero Datetime is replaced by the current time.
func (database *Database) CreateRun(rec RunRecord) (string, error) {
	rec.ID = uuid.New().String()
	if rec.Datetime == 0 {
		rec.Datetime = time.Now().Unix()
	}
	_, err := database.db.Exec(
		"INSERT INTO experiment_run "+
			"(id, datetime, mode, setting_name, data_path, seed, alpha, beta, total_time) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID,
		rec.Datetime,
		rec.Mode,
		rec.SettingName,
		rec.DataPath,
		int64(rec.Seed),
		rec.Alpha,
		rec.Beta,
		rec.TotalTime,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create experiment run: %w", err)
	}
	return rec.ID, nil
}

// StoreMetrics writes all the records in a single transaction
func (database *Database) StoreMetrics(runID string, recs []MetricsRecord) error {
	tx, err := database.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to store run metrics: %w", err)
	}
	for _, rec := range recs {
		_, err := tx.Exec(
			"INSERT OR REPLACE INTO run_metrics "+
				"(run_id, param_key, beta, alpha, accuracy, precision, recall, f1, specificity) "+
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			runID,
			rec.ParamKey,
			rec.Beta,
			rec.Alpha,
			rec.Accuracy,
			rec.Precision,
			rec.Recall,
			rec.F1,
			rec.Specificity,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to store run metrics: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to store run metrics: %w", err)
	}
	return nil
}

// GetRunMetrics loads metrics of a run ordered by beta and alpha
func (database *Database) GetRunMetrics(runID string) ([]MetricsRecord, error) {
	rows, err := database.db.Query(
		"SELECT run_id, param_key, beta, alpha, accuracy, precision, recall, f1, specificity "+
			"FROM run_metrics WHERE run_id = ? ORDER BY beta, alpha",
		runID,
	)
	if err != nil {
		return []MetricsRecord{}, fmt.Errorf("failed to fetch run metrics: %w", err)
	}
	defer rows.Close()
	ans := make([]MetricsRecord, 0, 99)
	for rows.Next() {
		var rec MetricsRecord
		err := rows.Scan(
			&rec.RunID,
			&rec.ParamKey,
			&rec.Beta,
			&rec.Alpha,
			&rec.Accuracy,
			&rec.Precision,
			&rec.Recall,
			&rec.F1,
			&rec.Specificity,
		)
		if err != nil {
			return []MetricsRecord{}, fmt.Errorf("failed to fetch run metrics: %w", err)
		}
		ans = append(ans, rec)
	}
	return ans, rows.Err()
}

// GetLatestRun returns the most recent run, ErrNoRuns if there is none
func (database *Database) GetLatestRun() (RunRecord, error) {
	row := database.db.QueryRow(
		"SELECT id, datetime, mode, setting_name, data_path, seed, alpha, beta, total_time " +
			"FROM experiment_run ORDER BY datetime DESC, rowid DESC LIMIT 1",
	)
	var rec RunRecord
	var seed int64
	var totalTime sql.NullFloat64
	err := row.Scan(
		&rec.ID,
		&rec.Datetime,
		&rec.Mode,
		&rec.SettingName,
		&rec.DataPath,
		&seed,
		&rec.Alpha,
		&rec.Beta,
		&totalTime,
	)
	if err == sql.ErrNoRows {
		return rec, ErrNoRuns

	} else if err != nil {
		return rec, fmt.Errorf("failed to fetch latest run: %w", err)
	}
	rec.Seed = uint64(seed)
	if totalTime.Valid {
		rec.TotalTime = totalTime.Float64
	}
	return rec, nil
}

func (database *Database) Close() error {
	return database.db.Close()
}

func NewDatabase(path string) (*Database, error) {
	dbConn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}
	return &Database{db: dbConn}, nil
}
