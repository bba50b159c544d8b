package model

import (
	"errors"
	"fmt"
	"time"
)

// SeriesKind distinguishes task series from event series. The two are
// structurally identical; only the payload fields that matter differ.
type SeriesKind string

const (
	SeriesTask  SeriesKind = "task"
	SeriesEvent SeriesKind = "event"
)

var ErrInvalidSeries = errors.New("model: invalid series")

// ISODateLayout is the canonical calendar-date form used for instance keys
// and storage columns.
const ISODateLayout = "2006-01-02"

// Series is the template record describing a repeating task or event.
type Series struct {
	ID       string     `json:"id"`
	FamilyID string     `json:"family_id"`
	Kind     SeriesKind `json:"kind"`

	Rule  Rule       `json:"rule"`
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"` // inclusive hard stop, independent of the rule's own end

	// OriginalSeriesID points at the parent when this series was produced by
	// a this-and-following split.
	OriginalSeriesID string `json:"original_series_id,omitempty"`

	Active  bool    `json:"active"`
	Payload Payload `json:"payload"`

	CreatedAt time.Time `json:"created_at"`
}

// Payload carries the per-kind attributes projected onto every occurrence.
type Payload struct {
	Title     string   `json:"title"`
	Notes     string   `json:"notes,omitempty"`
	Points    int      `json:"points,omitempty"`
	Assignees []string `json:"assignees,omitempty"`

	// TimeOfDay is the "HH:MM" start-of-day convention for occurrences.
	// Empty means all-day.
	TimeOfDay       string `json:"time_of_day,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Location        string `json:"location,omitempty"`
}

// Patch is a partial payload. Nil fields keep the series default; non-nil
// fields replace it. Stored as JSON in override exceptions.
type Patch struct {
	Title     *string   `json:"title,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	Points    *int      `json:"points,omitempty"`
	Assignees *[]string `json:"assignees,omitempty"`

	TimeOfDay       *string `json:"time_of_day,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Location        *string `json:"location,omitempty"`
}

// Apply returns the payload with every non-nil patch field substituted.
// A nil patch returns the payload unchanged.
func (p Payload) Apply(patch *Patch) Payload {
	if patch == nil {
		return p
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Notes != nil {
		p.Notes = *patch.Notes
	}
	if patch.Points != nil {
		p.Points = *patch.Points
	}
	if patch.Assignees != nil {
		p.Assignees = *patch.Assignees
	}
	if patch.TimeOfDay != nil {
		p.TimeOfDay = *patch.TimeOfDay
	}
	if patch.DurationMinutes != nil {
		p.DurationMinutes = *patch.DurationMinutes
	}
	if patch.Location != nil {
		p.Location = *patch.Location
	}
	return p
}

// IsZero reports whether the patch changes nothing.
func (p *Patch) IsZero() bool {
	if p == nil {
		return true
	}
	return p.Title == nil && p.Notes == nil && p.Points == nil && p.Assignees == nil &&
		p.TimeOfDay == nil && p.DurationMinutes == nil && p.Location == nil
}

func (s Series) Validate() error {
	if s.FamilyID == "" {
		return fmt.Errorf("%w: family id is required", ErrInvalidSeries)
	}
	switch s.Kind {
	case SeriesTask, SeriesEvent:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSeries, s.Kind)
	}
	if s.Start.IsZero() {
		return fmt.Errorf("%w: series start is required", ErrInvalidSeries)
	}
	if s.End != nil && DateOf(*s.End).Before(DateOf(s.Start)) {
		return fmt.Errorf("%w: series end before series start", ErrInvalidSeries)
	}
	if s.Payload.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidSeries)
	}
	if s.Payload.TimeOfDay != "" {
		if _, err := time.Parse("15:04", s.Payload.TimeOfDay); err != nil {
			return fmt.Errorf("%w: bad time of day %q", ErrInvalidSeries, s.Payload.TimeOfDay)
		}
	}
	if s.Payload.DurationMinutes < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidSeries)
	}
	return s.Rule.Validate()
}

// DateOf truncates t to its calendar date, normalized to midnight UTC.
// All recurrence arithmetic works on these nominal dates so that DST shifts
// in wall-clock zones cannot move an occurrence across midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ISODate renders a calendar date in ISODateLayout.
func ISODate(t time.Time) string {
	return t.Format(ISODateLayout)
}
