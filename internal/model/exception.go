package model

import (
	"errors"
	"fmt"
	"time"
)

// ExceptionType says what a per-date exception does to its occurrence.
type ExceptionType string

const (
	ExceptionSkip     ExceptionType = "skip"
	ExceptionOverride ExceptionType = "override"
)

var (
	ErrInvalidException   = errors.New("model: invalid exception")
	ErrDuplicateException = errors.New("model: duplicate exception for date")
)

// Exception is a per-date deviation from a series: either the occurrence is
// skipped outright, or its payload is partially overridden. At most one
// exception may exist per (series, date); a newer write supersedes the old
// one rather than accumulating.
type Exception struct {
	SeriesID string        `json:"series_id"`
	Date     time.Time     `json:"date"`
	Type     ExceptionType `json:"type"`

	// Patch is present iff Type is ExceptionOverride.
	Patch *Patch `json:"patch,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (e Exception) Validate() error {
	if e.SeriesID == "" {
		return fmt.Errorf("%w: series id is required", ErrInvalidException)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidException)
	}
	switch e.Type {
	case ExceptionSkip:
		if e.Patch != nil {
			return fmt.Errorf("%w: skip carries no override data", ErrInvalidException)
		}
	case ExceptionOverride:
		if e.Patch.IsZero() {
			return fmt.Errorf("%w: override requires override data", ErrInvalidException)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidException, e.Type)
	}
	return nil
}
