package recur

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"famcal/internal/model"
)

// DefaultMaxWindowDays caps the expansion window for never-ending rules.
// Roughly three years of daily occurrences.
const DefaultMaxWindowDays = 1100

var (
	ErrRangeTooLarge = errors.New("recur: expansion window too large")
	ErrBadRange      = errors.New("recur: range end before range start")
)

// Expander turns rules into concrete occurrence dates. The zero value is
// usable and applies DefaultMaxWindowDays.
type Expander struct {
	// MaxWindowDays bounds the query window when the rule itself never ends.
	// Zero means DefaultMaxWindowDays.
	MaxWindowDays int
}

// Expand emits the occurrence dates of rule within [rangeStart, rangeEnd],
// both inclusive, as midnight-UTC calendar dates in strictly ascending
// order with no duplicates. Emission stops at the earliest of rangeEnd, the
// series end, the rule's end date, or the rule's occurrence count (counted
// from seriesStart). The result is a pure function of the inputs; repeated
// calls return identical output.
func (e Expander) Expand(rule model.Rule, seriesStart time.Time, seriesEnd *time.Time, rangeStart, rangeEnd time.Time) ([]time.Time, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	start := model.DateOf(seriesStart)
	lo := model.DateOf(rangeStart)
	hi := model.DateOf(rangeEnd)
	if hi.Before(lo) {
		return nil, fmt.Errorf("%w: %s > %s", ErrBadRange, model.ISODate(lo), model.ISODate(hi))
	}
	if lo.Before(start) {
		lo = start
	}
	if seriesEnd != nil {
		if se := model.DateOf(*seriesEnd); se.Before(hi) {
			hi = se
		}
	}
	if hi.Before(lo) {
		return []time.Time{}, nil
	}

	if rule.EndType == model.EndNever {
		maxDays := e.MaxWindowDays
		if maxDays <= 0 {
			maxDays = DefaultMaxWindowDays
		}
		if days := int(hi.Sub(lo).Hours() / 24); days > maxDays {
			return nil, fmt.Errorf("%w: %s..%s spans %d days, cap is %d",
				ErrRangeTooLarge, model.ISODate(lo), model.ISODate(hi), days, maxDays)
		}
	}

	r, err := rrule.NewRRule(ToROption(rule, start))
	if err != nil {
		return nil, fmt.Errorf("recur: build rrule: %w", err)
	}

	return r.Between(lo, hi, true), nil
}
