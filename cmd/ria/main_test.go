package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ria/config"
	"github.com/dshills/ria/jobs"
	"github.com/dshills/ria/pipeline/store"
)

func TestOpenRunStore(t *testing.T) {
	s, closeFn, err := openRunStore(&config.Config{RunStore: "memory"}, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &store.MemStore[jobs.AnalysisState]{}, s)

	s, closeFn, err = openRunStore(&config.Config{RunStore: "SQLite", SQLitePath: filepath.Join(t.TempDir(), "runs.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &store.SQLiteStore[jobs.AnalysisState]{}, s)
	closeFn()

	_, _, err = openRunStore(&config.Config{RunStore: "redis"}, nil)
	assert.ErrorContains(t, err, `unknown RUN_STORE "redis"`)
}

func TestCommands(t *testing.T) {
	for _, args := range [][]string{
		{"provision", "--wait", "5s"},
		{"migrate"},
		{"serve"},
		{"worker", "--metrics-addr", "", "--stream-ttl", "1h"},
	} {
		cmd, err := app.Parse(args)
		require.NoError(t, err, args)
		assert.Equal(t, args[0], cmd)
	}

	_, err := app.Parse([]string{"deploy"})
	assert.Error(t, err)
}
