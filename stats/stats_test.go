package stats

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T) *Database {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "testing.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Init())
	return db
}

func TestInitIdempotent(t *testing.T) {
	db := testDatabase(t)
	assert.NoError(t, db.Init())
	ex, err := db.tableExists("run_metrics")
	assert.NoError(t, err)
	assert.True(t, ex)
	ex, err = db.tableExists("query_stats")
	assert.NoError(t, err)
	assert.False(t, ex)
}

func TestLatestRunEmpty(t *testing.T) {
	db := testDatabase(t)
	_, err := db.GetLatestRun()
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestCreateRunAndMetrics(t *testing.T) {
	db := testDatabase(t)
	id1, err := db.CreateRun(RunRecord{
		Datetime: 100, Mode: ModeSingle, SettingName: "default",
		DataPath: "/data", Seed: 1 << 63, Alpha: 70, Beta: 10,
	})
	require.NoError(t, err)
	id2, err := db.CreateRun(RunRecord{
		Datetime: 200, Mode: ModeTenFold, SettingName: "default", DataPath: "/data",
	})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	latest, err := db.GetLatestRun()
	require.NoError(t, err)
	assert.Equal(t, id2, latest.ID)
	assert.Equal(t, ModeTenFold, latest.Mode)

	err = db.StoreMetrics(id1, []MetricsRecord{
		{ParamKey: "20.0var_70tresh", Beta: 20, Alpha: 70, F1: 0.5},
		{ParamKey: "10.0var_70tresh", Beta: 10, Alpha: 70, F1: 0.4, Recall: 1},
	})
	require.NoError(t, err)
	recs, err := db.GetRunMetrics(id1)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "10.0var_70tresh", recs[0].ParamKey)
	assert.Equal(t, id1, recs[0].RunID)
	assert.Equal(t, 1.0, recs[0].Recall)
	assert.Equal(t, 0.5, recs[1].F1)

	recs, err = db.GetRunMetrics(id2)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
