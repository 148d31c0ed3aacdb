package util

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/data/meta/catalog.json"

	require.NoError(t, WriteFileAtomic(fs, path, []byte("v1"), FileMode0644))
	got, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))

	require.NoError(t, WriteFileAtomic(fs, path, []byte("v2"), FileMode0644))
	got, err = afero.ReadFile(fs, path)
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))

	// no temp files left behind
	entries, err := afero.ReadDir(fs, "/data/meta")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
