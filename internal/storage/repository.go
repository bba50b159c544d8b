package storage

import (
	"context"
	"errors"
	"time"

	"famcal/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

// SeriesFilter narrows ListSeries.
type SeriesFilter struct {
	FamilyID   string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// OccurrenceFilter narrows ListOccurrences (the batch pre-fill cache).
type OccurrenceFilter struct {
	SeriesID string
	FamilyID string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// Repository is the persistence boundary for series, exceptions, and the
// pre-filled occurrence cache. The recurrence core treats it as a consistent
// snapshot per invocation; it performs no retries of its own.
type Repository interface {
	CreateSeries(ctx context.Context, in model.Series) error
	GetSeries(ctx context.Context, id string) (model.Series, error)
	UpdateSeries(ctx context.Context, in model.Series) error
	ListSeries(ctx context.Context, filter SeriesFilter) ([]model.Series, error)

	// SplitSeries bounds the parent and creates the child in one
	// transaction, so a this-and-following edit can never leave the series
	// pair half-applied.
	SplitSeries(ctx context.Context, parent, child model.Series) error

	// UpsertException writes the exception for (series, date),
	// last-write-wins over any previous exception on that date.
	UpsertException(ctx context.Context, in model.Exception) error
	DeleteException(ctx context.Context, seriesID string, date time.Time) error
	ListExceptions(ctx context.Context, seriesID string) ([]model.Exception, error)

	UpsertOccurrence(ctx context.Context, in model.Instance) error
	DeleteOccurrencesFrom(ctx context.Context, seriesID string, from time.Time) error
	ListOccurrences(ctx context.Context, filter OccurrenceFilter) ([]model.Instance, error)

	Close() error
}
