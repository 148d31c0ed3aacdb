package main

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novastore"
	"github.com/tuannm99/novastore/internal/heap"
)

func TestRun_OneShot(t *testing.T) {
	dir := t.TempDir()
	base := []string{
		"--workdir", dir,
		"--history", filepath.Join(dir, "history"),
		"--log-level", "error",
	}
	exec := func(line string) error {
		t.Helper()
		return run(append(slices.Clone(base), "-e", line))
	}

	require.NoError(t, exec("create t id:int:pk v:int"))
	require.NoError(t, exec("insert t 1 10"))

	// a failing command is reported and the database still closes
	require.ErrorIs(t, exec("insert t 1 11"), heap.ErrConstraintViolation)
	require.NoError(t, exec("insert t 2 20"))
	require.NoError(t, exec("exit"))

	cfg, err := novastore.LoadConfig("")
	require.NoError(t, err)
	cfg.Storage.Workdir = dir
	db, err := novastore.Open(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	recs, err := db.Records("t")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, int32(20), recs[1].Value(1))
}
