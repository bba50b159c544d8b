package recur

import (
	"time"

	"github.com/teambition/rrule-go"

	"famcal/internal/model"
)

// ToROption converts a validated rule plus its series start date into the
// equivalent RRULE options. The series start doubles as DTSTART, so
// after_count rules count occurrences from the series start regardless of
// the query window.
//
// Monthly on_day rules for days a month does not have (e.g. the 31st in
// February) follow the RRULE convention: the month produces no occurrence.
// The day is skipped, never clamped to the month end.
func ToROption(rule model.Rule, seriesStart time.Time) rrule.ROption {
	opt := rrule.ROption{
		Dtstart:  model.DateOf(seriesStart),
		Interval: rule.Interval,
		Wkst:     rrule.MO,
	}

	switch rule.Frequency {
	case model.FreqDaily:
		opt.Freq = rrule.DAILY
	case model.FreqWeekly:
		opt.Freq = rrule.WEEKLY
		for _, wd := range rule.Weekdays {
			opt.Byweekday = append(opt.Byweekday, rruleWeekday(wd))
		}
	case model.FreqMonthly:
		opt.Freq = rrule.MONTHLY
		switch rule.MonthlyMode {
		case model.MonthlyOnDay:
			opt.Bymonthday = []int{rule.MonthDay}
		case model.MonthlyOnWeekday:
			wd := rruleWeekday(rule.Weekday)
			opt.Byweekday = []rrule.Weekday{wd.Nth(rule.WeekdayOrdinal)}
		}
	case model.FreqYearly:
		opt.Freq = rrule.YEARLY
	}

	switch rule.EndType {
	case model.EndOnDate:
		opt.Until = model.DateOf(*rule.EndDate)
	case model.EndAfterCount:
		opt.Count = rule.EndCount
	}

	return opt
}

func rruleWeekday(wd time.Weekday) rrule.Weekday {
	switch wd {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
