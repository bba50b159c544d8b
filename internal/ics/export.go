package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"famcal/internal/model"
)

// Export renders materialized instances as an iCalendar feed. Each instance
// becomes one VEVENT whose UID is the deterministic instance ID, so a feed
// regenerated from unchanged inputs is identical and subscribers never see
// phantom updates.
//
// Instances with an empty time of day are emitted as all-day events
// spanning their calendar date; timed instances are converted into loc.
func Export(instances []model.Instance, calName string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//famcal//recurrence feed//EN")
	if calName != "" {
		cal.SetXWRCalName(calName)
	}

	for _, inst := range instances {
		ev := cal.AddEvent(inst.ID)
		ev.SetDtStampTime(inst.Date)
		ev.SetSummary(inst.Payload.Title)
		if inst.Payload.Notes != "" {
			ev.SetDescription(inst.Payload.Notes)
		}
		if inst.Payload.Location != "" {
			ev.SetLocation(inst.Payload.Location)
		}

		if inst.Payload.TimeOfDay == "" {
			ev.SetAllDayStartAt(inst.Date)
			ev.SetAllDayEndAt(inst.Date.AddDate(0, 0, 1))
			continue
		}
		ev.SetStartAt(inst.StartsAt.In(loc))
		end := inst.EndsAt
		if !end.After(inst.StartsAt) {
			end = inst.StartsAt
		}
		ev.SetEndAt(end.In(loc))
	}

	return cal.Serialize()
}
