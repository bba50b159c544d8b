package model

import "time"

// Instance is one concrete occurrence of a series, computed on demand and
// never persisted as truth. Identity is deterministic: the same series and
// date always materialize to the same ID, so callers may re-derive instances
// idempotently.
type Instance struct {
	ID       string     `json:"id"`
	SeriesID string     `json:"series_id"`
	FamilyID string     `json:"family_id"`
	Kind     SeriesKind `json:"kind"`

	// Date is the occurrence's calendar date (midnight UTC).
	Date     time.Time `json:"date"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`

	// Payload is the series payload with any override patch already applied.
	Payload Payload `json:"payload"`

	IsException   bool          `json:"is_exception,omitempty"`
	ExceptionType ExceptionType `json:"exception_type,omitempty"`
}

// InstanceID builds the stable identity for one occurrence of a series.
func InstanceID(seriesID string, date time.Time) string {
	return seriesID + ":" + ISODate(date)
}
