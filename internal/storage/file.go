package storage

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/tuannm99/novastore/internal/alias/util"
)

const DataFileSuffix = ".tbl"

// TableFile is the data file of one table: <Dir>/<Base>.tbl.
type TableFile struct {
	Fs   afero.Fs
	Dir  string
	Base string
}

func (tf TableFile) Path() string {
	return filepath.Join(tf.Dir, tf.Base+DataFileSuffix)
}

// Open opens the file read-write, creating it and its directory if needed.
func (tf TableFile) Open() (afero.File, error) {
	if err := tf.Fs.MkdirAll(tf.Dir, util.FileMode0755); err != nil {
		return nil, err
	}
	// RDWR | CREATE (no truncate)
	return tf.Fs.OpenFile(tf.Path(), os.O_RDWR|os.O_CREATE, util.FileMode0644)
}

func (tf TableFile) Exists() (bool, error) {
	return afero.Exists(tf.Fs, tf.Path())
}

func (tf TableFile) Remove() error {
	if err := tf.Fs.Remove(tf.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
