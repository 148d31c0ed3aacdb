package engine

import "errors"

var (
	ErrDatabaseClosed = errors.New("engine: database is closed")
	ErrIndexNotFound  = errors.New("engine: index not found")
	ErrBadOptions     = errors.New("engine: invalid options")
)

const IndexFileSuffix = ".idx"
