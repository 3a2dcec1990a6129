package catalog

import (
	"errors"

	"github.com/cinequeue/cinequeue/internal/errs"
)

var (
	// ErrMovieNotFound is returned when a movie lookup misses.
	ErrMovieNotFound = errors.New("movie not found")
	// ErrMovieFileNotFound is returned when a file lookup misses.
	ErrMovieFileNotFound = errors.New("movie file not found")
	// ErrDuplicateExternalKey is returned when inserting a movie whose
	// external key already exists (spec.md §3 invariant).
	ErrDuplicateExternalKey = errors.New("movie with this external key already exists")
	// ErrProfileNotFound is returned when a quality profile lookup misses.
	ErrProfileNotFound = errors.New("quality profile not found")
)

func notFound(op string, err error) error  { return errs.New(errs.NotFound, op, err) }
func conflict(op string, err error) error  { return errs.New(errs.Conflict, op, err) }
func fatal(op string, err error) error     { return errs.New(errs.Fatal, op, err) }
