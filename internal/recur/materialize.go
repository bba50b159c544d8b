package recur

import (
	"time"

	"famcal/internal/model"
)

// Materialize projects the series payload onto one reconciled occurrence,
// producing a full virtual instance. Override patches shallow-merge on top
// of the series defaults: patched fields win, everything else keeps the
// series value. The instance ID is derived from (series, date) only, so
// materializing the same occurrence twice yields the same ID.
func Materialize(s model.Series, occ Occurrence) model.Instance {
	payload := s.Payload
	inst := model.Instance{
		ID:       model.InstanceID(s.ID, occ.Date),
		SeriesID: s.ID,
		FamilyID: s.FamilyID,
		Kind:     s.Kind,
		Date:     occ.Date,
	}

	if occ.Exception != nil {
		inst.IsException = true
		inst.ExceptionType = occ.Exception.Type
		payload = payload.Apply(occ.Exception.Patch)
	}
	inst.Payload = payload

	inst.StartsAt = combine(occ.Date, payload.TimeOfDay)
	inst.EndsAt = inst.StartsAt
	if payload.DurationMinutes > 0 {
		inst.EndsAt = inst.StartsAt.Add(time.Duration(payload.DurationMinutes) * time.Minute)
	}
	return inst
}

// combine anchors an "HH:MM" time of day onto a calendar date. An empty or
// malformed time keeps midnight (all-day semantics).
func combine(date time.Time, hhmm string) time.Time {
	if hhmm == "" {
		return date
	}
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return date
	}
	return date.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
}
