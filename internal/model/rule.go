package model

import (
	"errors"
	"fmt"
	"time"
)

// Frequency is the base unit of a recurrence rule.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// MonthlyMode selects between day-of-month and ordinal-weekday recurrence
// for monthly rules.
type MonthlyMode string

const (
	MonthlyOnDay     MonthlyMode = "on_day"
	MonthlyOnWeekday MonthlyMode = "on_weekday"
)

// EndType describes how (and whether) a rule terminates on its own.
type EndType string

const (
	EndNever      EndType = "never"
	EndOnDate     EndType = "on_date"
	EndAfterCount EndType = "after_count"
)

// OrdinalLast selects the final matching weekday of a month
// (e.g. "last Friday").
const OrdinalLast = -1

var ErrInvalidRule = errors.New("model: invalid recurrence rule")

// Rule is a declarative description of a repeating pattern. It carries no
// behavior beyond validation; interpretation lives in internal/recur.
type Rule struct {
	Frequency Frequency `json:"frequency" yaml:"frequency"`
	Interval  int       `json:"interval" yaml:"interval"`

	// Weekdays applies to weekly rules only. An empty set falls back to the
	// weekday of the series start.
	Weekdays []time.Weekday `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`

	// MonthlyMode and its companions apply to monthly rules only.
	MonthlyMode    MonthlyMode  `json:"monthly_mode,omitempty" yaml:"monthly_mode,omitempty"`
	MonthDay       int          `json:"month_day,omitempty" yaml:"month_day,omitempty"`
	WeekdayOrdinal int          `json:"weekday_ordinal,omitempty" yaml:"weekday_ordinal,omitempty"`
	Weekday        time.Weekday `json:"weekday,omitempty" yaml:"weekday,omitempty"`

	EndType  EndType    `json:"end_type" yaml:"end_type"`
	EndDate  *time.Time `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	EndCount int        `json:"end_count,omitempty" yaml:"end_count,omitempty"`
}

// Validate checks the structural invariants of the rule. Expansion entry
// points call this before emitting anything, so a bad rule never produces a
// partial result.
func (r Rule) Validate() error {
	switch r.Frequency {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, r.Frequency)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidRule, r.Interval)
	}

	if len(r.Weekdays) > 0 {
		if r.Frequency != FreqWeekly {
			return fmt.Errorf("%w: weekdays set on %s rule", ErrInvalidRule, r.Frequency)
		}
		seen := make(map[time.Weekday]bool, len(r.Weekdays))
		for _, wd := range r.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, wd)
			}
			if seen[wd] {
				return fmt.Errorf("%w: duplicate weekday %s", ErrInvalidRule, wd)
			}
			seen[wd] = true
		}
	}

	if r.Frequency == FreqMonthly {
		switch r.MonthlyMode {
		case MonthlyOnDay:
			if r.MonthDay < 1 || r.MonthDay > 31 {
				return fmt.Errorf("%w: month day %d out of 1-31", ErrInvalidRule, r.MonthDay)
			}
		case MonthlyOnWeekday:
			if r.WeekdayOrdinal != OrdinalLast && (r.WeekdayOrdinal < 1 || r.WeekdayOrdinal > 4) {
				return fmt.Errorf("%w: weekday ordinal %d out of range", ErrInvalidRule, r.WeekdayOrdinal)
			}
			if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
				return fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, r.Weekday)
			}
		default:
			return fmt.Errorf("%w: monthly rule requires a monthly mode", ErrInvalidRule)
		}
	} else if r.MonthlyMode != "" {
		return fmt.Errorf("%w: monthly mode set on %s rule", ErrInvalidRule, r.Frequency)
	}

	switch r.EndType {
	case EndNever:
		if r.EndDate != nil || r.EndCount != 0 {
			return fmt.Errorf("%w: end_type never carries no end date or count", ErrInvalidRule)
		}
	case EndOnDate:
		if r.EndDate == nil {
			return fmt.Errorf("%w: end_type on_date requires an end date", ErrInvalidRule)
		}
		if r.EndCount != 0 {
			return fmt.Errorf("%w: end_type on_date carries no end count", ErrInvalidRule)
		}
	case EndAfterCount:
		if r.EndCount < 1 {
			return fmt.Errorf("%w: end_type after_count requires a positive count", ErrInvalidRule)
		}
		if r.EndDate != nil {
			return fmt.Errorf("%w: end_type after_count carries no end date", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown end type %q", ErrInvalidRule, r.EndType)
	}

	return nil
}
