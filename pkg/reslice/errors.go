package reslice

import (
	"errors"

	"dynreslice/pkg/trace"
)

var (
	// ErrInvalidPath is returned for paths with fewer than two points or a
	// length below trace.MinLength. Callers following an edited path ignore it.
	ErrInvalidPath = trace.ErrInvalidPath

	// ErrInvalidSpacing is returned when the requested slice spacing leaves no
	// slice to compute
	ErrInvalidSpacing = errors.New("output spacing too large for path")

	// ErrOutOfMemory is returned when the output volume cannot be allocated
	// within the configured limit
	ErrOutOfMemory = errors.New("not enough memory for output volume")

	// ErrCancelled is returned when a sweep is aborted between steps
	ErrCancelled = errors.New("reslice cancelled")

	// ErrStackRequired is returned for single plane volumes with a path
	// other than a rectangle
	ErrStackRequired = errors.New("stack required")
)
