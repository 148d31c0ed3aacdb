// Package novastore is a disk-backed page store for small relational
// tables: fixed-size pages on disk, an LRU page cache with write-back and a
// B+Tree primary-key index per table.
package novastore

import (
	"github.com/spf13/afero"

	"github.com/tuannm99/novastore/internal"
	"github.com/tuannm99/novastore/internal/engine"
	"github.com/tuannm99/novastore/internal/record"
)

type (
	Database  = engine.Database
	Options   = engine.Options
	Config    = internal.Config
	Attribute = record.Attribute
	Record    = record.Record
)

const (
	Integer = record.TypeInteger
	Double  = record.TypeDouble
	Boolean = record.TypeBoolean
	Char    = record.TypeChar
	Varchar = record.TypeVarchar
)

// Open opens the database described by cfg on the OS filesystem.
func Open(cfg *Config) (*Database, error) {
	return OpenFs(afero.NewOsFs(), cfg)
}

// OpenFs is Open on an arbitrary filesystem.
func OpenFs(fs afero.Fs, cfg *Config) (*Database, error) {
	return engine.Open(engine.Options{
		Fs:         fs,
		Dir:        cfg.Storage.Workdir,
		PageSize:   cfg.Storage.PageSize,
		CachePages: cfg.Storage.CachePages,
		IndexOrder: cfg.Index.Order,
	})
}

// LoadConfig reads a YAML config file; an empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	return internal.LoadConfig(path)
}
