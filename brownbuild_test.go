package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubisoft/ubisoft-laforge-brownbuild/cnf"
)

func TestParseNGram(t *testing.T) {
	v, err := parseNGram("1, 2")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, v)
	_, err = parseNGram("1,x")
	assert.Error(t, err)
}

func TestExperimentFlagsOverrideFile(t *testing.T) {
	expPath := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, os.WriteFile(
		expPath, []byte("data_path: /logs\nalpha: 30\nbeta: 50\noversampling: false\n"), 0644))
	fset := flag.NewFlagSet("test", flag.ContinueOnError)
	ef := addExperimentFlags(fset)
	require.NoError(t, fset.Parse([]string{"-exp", expPath, "-alpha", "60", "-ngram", "1,2", "conf.json"}))

	exp, err := ef.experiment()
	require.NoError(t, err)
	assert.Equal(t, "/logs", exp.DataPath())
	assert.Equal(t, 60, exp.Alpha())
	assert.Equal(t, 50, exp.Beta())
	assert.False(t, exp.Oversampling())
	assert.Equal(t, []int{1, 2}, exp.NGram())
	assert.Equal(t, "conf.json", fset.Arg(0))
}

func TestExperimentFlagsInvalid(t *testing.T) {
	fset := flag.NewFlagSet("test", flag.ContinueOnError)
	ef := addExperimentFlags(fset)
	require.NoError(t, fset.Parse([]string{"-data", "/logs", "-beta", "95"}))
	_, err := ef.experiment()
	assert.ErrorIs(t, err, cnf.ErrInvalidExperiment)
}

func TestSetupWithoutConfigFile(t *testing.T) {
	conf := setup("")
	assert.Equal(t, "", conf.SrcPath())
	assert.Equal(t, "experiments", conf.ExperimentsDir)
	assert.Equal(t, cnf.CacheBackendFile, conf.CacheBackend)
	assert.Equal(t, "", conf.StatsDBPath)
}

func TestSetupWithConfigFile(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), "conf.json")
	require.NoError(t, os.WriteFile(
		confPath, []byte(`{"experimentsDir": "/tmp/exps", "cacheBackend": "badger"}`), 0644))
	conf := setup(confPath)
	assert.Equal(t, confPath, conf.SrcPath())
	assert.Equal(t, "/tmp/exps", conf.ExperimentsDir)
	assert.Equal(t, cnf.CacheBackendBadger, conf.CacheBackend)
}
