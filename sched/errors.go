package sched

import "github.com/cockroachdb/errors"

var (
	// ErrTableFull is returned by RegisterProcess when every slot of the process table is in use
	ErrTableFull error = errors.New("process table is full")
	// ErrInvalidPid is returned when a pid does not name a registered process
	ErrInvalidPid error = errors.New("pid does not name a registered process")
)
